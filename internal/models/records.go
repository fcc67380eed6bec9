package models

import "time"

// InsightRecord comfort_insights 表记录
type InsightRecord struct {
	InsightID string    `json:"insight_id"` // UUID
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	AgentIDs  []string  `json:"agent_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionRecord comfort_actions 表记录（fan/sound/wake 历史）
type ActionRecord struct {
	ActionID   string    `json:"action_id"` // UUID
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"`
	Payload    string    `json:"payload"` // JSONB，kind 对应的指令内容
	Confidence float64   `json:"confidence"`
	AgentIDs   []string  `json:"agent_ids"`
	CreatedAt  time.Time `json:"created_at"`
}
