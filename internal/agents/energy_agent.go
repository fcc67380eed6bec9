package agents

import (
	"fmt"

	"go.uber.org/zap"

	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/models"
)

const EnergyAgentID = "energy-agent"

// wakeLeadMinutes 唤醒序列提前量
const wakeLeadMinutes = 30

// EnergyAgent 能耗/唤醒 agent
//
// 规则：
// - late + 深睡 → 风扇 20，low（后半夜环境最凉，节能让位）
// - 睡眠债 > 2h → 记录洞察，medium（提示用户延长睡眠）
// - 距计划唤醒 <= 30 分钟 → 触发唤醒序列，critical
type EnergyAgent struct {
	base
}

// NewEnergyAgent 创建能耗 agent
func NewEnergyAgent(bb *blackboard.Blackboard, logger *zap.Logger) *EnergyAgent {
	return &EnergyAgent{base: newBase(bb, logger)}
}

func (a *EnergyAgent) ID() string { return EnergyAgentID }

// Run 评估当前上下文
func (a *EnergyAgent) Run() {
	ctx := a.bb.Context()

	if ctx.TimeOfNight == models.TimeOfNightLate && ctx.CurrentSleepStage == models.StageDeep {
		a.post(EnergyAgentID, 0.6, models.PriorityLow,
			fanAction(20),
			"late night deep sleep, ambient already cool, trimming fan")
	}

	if ctx.SleepDebtHours > 2 {
		a.post(EnergyAgentID, 0.7, models.PriorityMedium,
			insightAction(fmt.Sprintf("Sleep debt of %.1f hours, consider a later alarm", ctx.SleepDebtHours), "energy"),
			"high sleep debt insight")
	}

	if ctx.AlarmTime != nil {
		minutesUntil := float64(*ctx.AlarmTime-a.now()) / 60000
		if minutesUntil > 0 && minutesUntil <= wakeLeadMinutes {
			a.post(EnergyAgentID, 0.95, models.PriorityCritical,
				models.Action{
					Kind: models.ActionTriggerWakeSequence,
					Wake: &models.WakeAction{MinutesUntilAlarm: minutesUntil},
				},
				fmt.Sprintf("%.0f minutes until alarm, starting wake sequence", minutesUntil))
		}
	}
}
