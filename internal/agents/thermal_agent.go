package agents

import (
	"fmt"

	"go.uber.org/zap"

	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/models"
)

const ThermalAgentID = "thermal-agent"

// ThermalAgent 体感温度 agent
//
// 规则（按优先级）：
// - 室温 >= 26°C → 风扇 70，high（闷热环境优先降温）
// - 室温 <= 18°C → 风扇 10，high（避免着凉）
// - 其余按睡眠阶段给基准风速，medium；自述偏热时 +15
type ThermalAgent struct {
	base
}

// NewThermalAgent 创建体感温度 agent
func NewThermalAgent(bb *blackboard.Blackboard, logger *zap.Logger) *ThermalAgent {
	return &ThermalAgent{base: newBase(bb, logger)}
}

func (a *ThermalAgent) ID() string { return ThermalAgentID }

// Run 评估当前上下文并提交风速假设
func (a *ThermalAgent) Run() {
	ctx := a.bb.Context()

	if ctx.Weather != nil && ctx.Weather.TemperatureC >= 26 {
		a.post(ThermalAgentID, 0.9, models.PriorityHigh,
			fanAction(70),
			fmt.Sprintf("room temperature %.1f°C, cooling needed", ctx.Weather.TemperatureC))
		a.post(ThermalAgentID, 0.7, models.PriorityMedium,
			insightAction("Warm night detected, running fan high", "thermal"),
			"hot room insight")
		return
	}

	if ctx.Weather != nil && ctx.Weather.TemperatureC <= 18 {
		a.post(ThermalAgentID, 0.8, models.PriorityHigh,
			fanAction(10),
			fmt.Sprintf("room temperature %.1f°C, minimal airflow", ctx.Weather.TemperatureC))
		return
	}

	// 按睡眠阶段的基准风速
	var speed float64
	switch ctx.CurrentSleepStage {
	case models.StageDeep:
		speed = 35 // 深睡期体温下降，降低风速
	case models.StageREM:
		speed = 40
	case models.StageLight:
		speed = 45
	default:
		speed = 50
	}

	confidence := 0.7
	reasoning := fmt.Sprintf("baseline airflow for stage %s", ctx.CurrentSleepStage)
	if ctx.PreSleep != nil && ctx.PreSleep.FeelingHot {
		speed += 15
		if speed > 100 {
			speed = 100
		}
		confidence = 0.85
		reasoning += ", reported feeling hot"
	}

	a.post(ThermalAgentID, confidence, models.PriorityMedium, fanAction(speed), reasoning)
}

func fanAction(speed float64) models.Action {
	return models.Action{
		Kind:     models.ActionSetFanSpeed,
		FanSpeed: &models.FanSpeedAction{Speed: speed},
	}
}

func insightAction(message, category string) models.Action {
	return models.Action{
		Kind:    models.ActionLogInsight,
		Insight: &models.InsightAction{Message: message, Category: category},
	}
}
