package models

import "fmt"

// Priority 假设优先级
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weight 仲裁权重：low=1, medium=2, high=3, critical=4
func (p Priority) Weight() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 1
	}
}

// ActionKind 动作类型
type ActionKind string

const (
	ActionSetFanSpeed         ActionKind = "SET_FAN_SPEED"
	ActionSetSoundType        ActionKind = "SET_SOUND_TYPE"
	ActionLogInsight          ActionKind = "LOG_INSIGHT"
	ActionTriggerWakeSequence ActionKind = "TRIGGER_WAKE_SEQUENCE"
)

// FanSpeedAction 风扇转速指令
type FanSpeedAction struct {
	Speed float64 `json:"speed"` // 0-100
}

// SoundAction 声景指令
type SoundAction struct {
	NoiseType string  `json:"noise_type"` // white, pink, brown, rain, off
	Volume    float64 `json:"volume"`     // 0-1
}

// InsightAction 洞察日志条目
type InsightAction struct {
	Message  string `json:"message"`
	Category string `json:"category"` // posture, thermal, sound, energy
}

// WakeAction 唤醒序列触发
type WakeAction struct {
	MinutesUntilAlarm float64 `json:"minutes_until_alarm"`
}

// Action 动作（闭合 tagged union，每个 Kind 恰好一个 payload）
type Action struct {
	Kind     ActionKind      `json:"kind"`
	FanSpeed *FanSpeedAction `json:"fan_speed,omitempty"`
	Sound    *SoundAction    `json:"sound,omitempty"`
	Insight  *InsightAction  `json:"insight,omitempty"`
	Wake     *WakeAction     `json:"wake,omitempty"`
}

// Validate 检查 Kind 已知且对应 payload 存在
func (a Action) Validate() error {
	switch a.Kind {
	case ActionSetFanSpeed:
		if a.FanSpeed == nil {
			return fmt.Errorf("action %s missing fan_speed payload", a.Kind)
		}
	case ActionSetSoundType:
		if a.Sound == nil {
			return fmt.Errorf("action %s missing sound payload", a.Kind)
		}
	case ActionLogInsight:
		if a.Insight == nil {
			return fmt.Errorf("action %s missing insight payload", a.Kind)
		}
	case ActionTriggerWakeSequence:
		if a.Wake == nil {
			return fmt.Errorf("action %s missing wake payload", a.Kind)
		}
	default:
		return fmt.Errorf("unknown action kind: %q", a.Kind)
	}
	return nil
}

// Hypothesis agent 提案
//
// 唯一性不变式：每个 (AgentID, Action.Kind) 至多一条在存的假设，
// 同键重复 post 为原地替换。过期（ExpiresAt < now）在读取时惰性过滤。
type Hypothesis struct {
	AgentID    string   `json:"agent_id"`
	Timestamp  int64    `json:"timestamp"`  // Unix ms
	Confidence float64  `json:"confidence"` // [0,1]
	Priority   Priority `json:"priority"`
	Action     Action   `json:"action"`
	Reasoning  string   `json:"reasoning"`
	ExpiresAt  int64    `json:"expires_at"` // Unix ms
}

// ResolvedAction 一个仲裁周期内某 Kind 的最终指令
type ResolvedAction struct {
	Action       Action   `json:"action"`
	SourceAgents []string `json:"source_agents"`
	Confidence   float64  `json:"confidence"`
	Timestamp    int64    `json:"timestamp"` // Unix ms
}
