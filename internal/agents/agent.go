// Package agents 提供无状态规则 agent
//
// 每个 agent 是上下文的纯函数：Run() 读取 blackboard 上下文，
// 按 (agent_id, action_kind) post 零或多条假设。agent 可插拔，
// controller 只按注册顺序逐个调用，不了解其内部规则。
package agents

import (
	"time"

	"go.uber.org/zap"

	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/models"
)

// hypothesisTTLMS 假设存活时间。略大于两个默认仲裁周期，
// agent 停摆后其旧主张很快失效。
const hypothesisTTLMS = 15000

// Agent 规则 agent 接口
type Agent interface {
	ID() string
	Run()
}

// base 各 agent 共享的依赖
type base struct {
	bb     *blackboard.Blackboard
	logger *zap.Logger
	now    func() int64 // Unix ms，测试可替换
}

func newBase(bb *blackboard.Blackboard, logger *zap.Logger) base {
	return base{
		bb:     bb,
		logger: logger,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// post 构造并提交一条假设（填充时间戳与过期时间）
func (b *base) post(agentID string, confidence float64, priority models.Priority, action models.Action, reasoning string) {
	nowMS := b.now()
	err := b.bb.PostHypothesis(models.Hypothesis{
		AgentID:    agentID,
		Timestamp:  nowMS,
		Confidence: confidence,
		Priority:   priority,
		Action:     action,
		Reasoning:  reasoning,
		ExpiresAt:  nowMS + hypothesisTTLMS,
	})
	if err != nil {
		b.logger.Error("Failed to post hypothesis",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
	}
}

// DefaultAgents 默认 agent 列表（调用顺序即注册顺序）
func DefaultAgents(bb *blackboard.Blackboard, logger *zap.Logger) []Agent {
	return []Agent{
		NewPostureAgent(bb, logger),
		NewThermalAgent(bb, logger),
		NewSoundAgent(bb, logger),
		NewEnergyAgent(bb, logger),
	}
}
