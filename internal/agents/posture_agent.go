package agents

import (
	"fmt"

	"go.uber.org/zap"

	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/models"
)

const PostureAgentID = "posture-agent"

// PostureAgent 姿态 agent
//
// 规则：
// - 侧卧/胎卧 → 风扇 25，medium（侧睡面部朝向气流，减小直吹）
// - 俯卧 → 记录洞察（俯卧与呼吸受限相关）
// - 胎卧 → 记录洞察（胎卧常与紧张相关）
// - unknown → 不发表意见
//
// 风速假设的置信度直接取分类置信度：分类器越确定，提案越有分量。
type PostureAgent struct {
	base
}

// NewPostureAgent 创建姿态 agent
func NewPostureAgent(bb *blackboard.Blackboard, logger *zap.Logger) *PostureAgent {
	return &PostureAgent{base: newBase(bb, logger)}
}

func (a *PostureAgent) ID() string { return PostureAgentID }

// Run 评估当前上下文
func (a *PostureAgent) Run() {
	ctx := a.bb.Context()

	switch ctx.CurrentPosture {
	case models.PostureLeftLateral, models.PostureRightLateral:
		a.post(PostureAgentID, ctx.PostureConfidence, models.PriorityMedium,
			fanAction(25),
			fmt.Sprintf("side sleeping (%s), reducing direct draft", ctx.CurrentPosture))

	case models.PostureFetal:
		a.post(PostureAgentID, ctx.PostureConfidence, models.PriorityMedium,
			fanAction(25),
			"fetal posture, reducing direct draft")
		a.post(PostureAgentID, 0.6, models.PriorityLow,
			insightAction("Fetal posture with restlessness detected", "posture"),
			"fetal posture insight")

	case models.PostureProne:
		a.post(PostureAgentID, 0.6, models.PriorityLow,
			insightAction("Prone sleeping position detected", "posture"),
			"prone posture insight")
	}
	// supine/unknown：无提案
}
