package agents

import (
	"fmt"

	"go.uber.org/zap"

	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/models"
)

const SoundAgentID = "sound-agent"

// 声景类型
const (
	NoiseWhite = "white"
	NoisePink  = "pink"
	NoiseBrown = "brown"
	NoiseRain  = "rain"
	NoiseOff   = "off"
)

// SoundAgent 声景 agent
//
// 规则：
// - 清醒 + 自述压力大 → rain 0.5，high（入睡安抚）
// - 清醒 + early → pink 0.4，medium
// - 清醒 + middle/late → pink 0.25，medium（夜间醒来，轻声掩蔽）
// - 浅睡 → white 0.3，medium
// - 深睡 → brown 0.2，high（保护深睡，低频掩蔽）
// - REM → white 0.15，low（REM 易被声音干扰，压到最低）
type SoundAgent struct {
	base
}

// NewSoundAgent 创建声景 agent
func NewSoundAgent(bb *blackboard.Blackboard, logger *zap.Logger) *SoundAgent {
	return &SoundAgent{base: newBase(bb, logger)}
}

func (a *SoundAgent) ID() string { return SoundAgentID }

// Run 评估当前上下文并提交声景假设
func (a *SoundAgent) Run() {
	ctx := a.bb.Context()

	var (
		noiseType  string
		volume     float64
		confidence float64
		priority   models.Priority
	)

	switch ctx.CurrentSleepStage {
	case models.StageAwake:
		if ctx.PreSleep != nil && ctx.PreSleep.Stressed {
			noiseType, volume, confidence, priority = NoiseRain, 0.5, 0.85, models.PriorityHigh
		} else if ctx.TimeOfNight == models.TimeOfNightEarly {
			noiseType, volume, confidence, priority = NoisePink, 0.4, 0.8, models.PriorityMedium
		} else {
			noiseType, volume, confidence, priority = NoisePink, 0.25, 0.7, models.PriorityMedium
		}
	case models.StageLight:
		noiseType, volume, confidence, priority = NoiseWhite, 0.3, 0.7, models.PriorityMedium
	case models.StageDeep:
		noiseType, volume, confidence, priority = NoiseBrown, 0.2, 0.9, models.PriorityHigh
	case models.StageREM:
		noiseType, volume, confidence, priority = NoiseWhite, 0.15, 0.6, models.PriorityLow
	default:
		return
	}

	a.post(SoundAgentID, confidence, priority,
		models.Action{
			Kind:  models.ActionSetSoundType,
			Sound: &models.SoundAction{NoiseType: noiseType, Volume: volume},
		},
		fmt.Sprintf("stage %s, time of night %s", ctx.CurrentSleepStage, ctx.TimeOfNight))
}
