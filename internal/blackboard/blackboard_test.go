package blackboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-comfort/internal/models"
)

func newTestBlackboard(nowMS int64) *Blackboard {
	b := New(zap.NewNop())
	b.SetNowFunc(func() int64 { return nowMS })
	return b
}

func fanHypothesis(agentID string, speed float64, expiresAt int64) models.Hypothesis {
	return models.Hypothesis{
		AgentID:    agentID,
		Timestamp:  1000,
		Confidence: 0.8,
		Priority:   models.PriorityMedium,
		Action: models.Action{
			Kind:     models.ActionSetFanSpeed,
			FanSpeed: &models.FanSpeedAction{Speed: speed},
		},
		Reasoning: "test",
		ExpiresAt: expiresAt,
	}
}

func TestPostHypothesis_ReplacesByAgentAndKind(t *testing.T) {
	b := newTestBlackboard(1000)

	require.NoError(t, b.PostHypothesis(fanHypothesis("thermal", 40, 60000)))
	require.NoError(t, b.PostHypothesis(fanHypothesis("thermal", 70, 60000)))

	live := b.Hypotheses()
	require.Len(t, live, 1, "second post must replace the first in place")
	assert.Equal(t, 70.0, live[0].Action.FanSpeed.Speed)
}

func TestPostHypothesis_DifferentAgentsOrKindsRetained(t *testing.T) {
	b := newTestBlackboard(1000)

	require.NoError(t, b.PostHypothesis(fanHypothesis("thermal", 40, 60000)))
	require.NoError(t, b.PostHypothesis(fanHypothesis("energy", 20, 60000)))

	// 同 agent 不同 kind
	require.NoError(t, b.PostHypothesis(models.Hypothesis{
		AgentID:    "thermal",
		Timestamp:  1000,
		Confidence: 0.5,
		Priority:   models.PriorityLow,
		Action: models.Action{
			Kind:    models.ActionLogInsight,
			Insight: &models.InsightAction{Message: "warm night", Category: "thermal"},
		},
		ExpiresAt: 60000,
	}))

	assert.Len(t, b.Hypotheses(), 3)
}

func TestPostHypothesis_RejectsMalformedAction(t *testing.T) {
	b := newTestBlackboard(1000)

	// 未知 kind
	err := b.PostHypothesis(models.Hypothesis{
		AgentID:   "rogue",
		Action:    models.Action{Kind: "SPIN_MATTRESS"},
		ExpiresAt: 60000,
	})
	assert.Error(t, err)

	// 已知 kind 但缺 payload
	err = b.PostHypothesis(models.Hypothesis{
		AgentID:   "rogue",
		Action:    models.Action{Kind: models.ActionSetFanSpeed},
		ExpiresAt: 60000,
	})
	assert.Error(t, err)

	assert.Empty(t, b.Hypotheses())
}

func TestPostHypothesis_ClampsConfidence(t *testing.T) {
	b := newTestBlackboard(1000)

	h := fanHypothesis("thermal", 40, 60000)
	h.Confidence = 1.7
	require.NoError(t, b.PostHypothesis(h))

	live := b.Hypotheses()
	require.Len(t, live, 1)
	assert.Equal(t, 1.0, live[0].Confidence)
}

func TestHypotheses_LazyExpiryFiltering(t *testing.T) {
	now := int64(1000)
	b := New(zap.NewNop())
	b.SetNowFunc(func() int64 { return now })

	require.NoError(t, b.PostHypothesis(fanHypothesis("thermal", 40, 5000)))
	require.NoError(t, b.PostHypothesis(fanHypothesis("energy", 20, 2000)))

	assert.Len(t, b.Hypotheses(), 2)

	// 时间越过 energy 假设的 expires_at：无需显式删除即被排除
	now = 3000
	live := b.Hypotheses()
	require.Len(t, live, 1)
	assert.Equal(t, "thermal", live[0].AgentID)

	now = 5000 // expires_at == now 也视为过期（要求严格大于）
	assert.Empty(t, b.Hypotheses())
}

func TestUpdateContext_ShallowMerge(t *testing.T) {
	b := newTestBlackboard(1000)

	stage := models.StageDeep
	debt := 1.5
	b.UpdateContext(models.ContextPatch{
		CurrentSleepStage: &stage,
		SleepDebtHours:    &debt,
	})

	ctx := b.Context()
	assert.Equal(t, models.StageDeep, ctx.CurrentSleepStage)
	assert.Equal(t, 1.5, ctx.SleepDebtHours)
	// 未 patch 的字段保持默认值
	assert.Equal(t, models.PostureUnknown, ctx.CurrentPosture)
	assert.Equal(t, models.TimeOfNightEarly, ctx.TimeOfNight)
	assert.Nil(t, ctx.Weather)

	posture := models.PostureProne
	b.UpdateContext(models.ContextPatch{CurrentPosture: &posture})
	ctx = b.Context()
	assert.Equal(t, models.PostureProne, ctx.CurrentPosture)
	assert.Equal(t, models.StageDeep, ctx.CurrentSleepStage, "earlier patch must survive")
}

func TestSubscribe_NotifiedOnEveryMutation(t *testing.T) {
	b := newTestBlackboard(1000)

	count := 0
	unsubscribe := b.Subscribe(func() { count++ })

	require.NoError(t, b.PostHypothesis(fanHypothesis("thermal", 40, 60000)))
	stage := models.StageLight
	b.UpdateContext(models.ContextPatch{CurrentSleepStage: &stage})
	b.Resolve(nil)
	b.Reset()
	assert.Equal(t, 4, count)

	unsubscribe()
	b.Resolve(nil)
	assert.Equal(t, 4, count, "no notification after unsubscribe")

	unsubscribe() // 幂等
}

func TestSubscribe_OrderAndIndependence(t *testing.T) {
	b := newTestBlackboard(1000)

	var order []string
	unsubA := b.Subscribe(func() { order = append(order, "a") })
	b.Subscribe(func() { order = append(order, "b") })

	b.Resolve(nil)
	assert.Equal(t, []string{"a", "b"}, order)

	// 退订 a 不影响 b
	unsubA()
	order = order[:0]
	b.Resolve(nil)
	assert.Equal(t, []string{"b"}, order)
}

func TestReset_ClearsEverything(t *testing.T) {
	b := newTestBlackboard(1000)

	require.NoError(t, b.PostHypothesis(fanHypothesis("thermal", 40, 60000)))
	stage := models.StageREM
	duration := int64(3600000)
	b.UpdateContext(models.ContextPatch{
		CurrentSleepStage: &stage,
		SessionDurationMS: &duration,
		Weather:           &models.WeatherSnapshot{TemperatureC: 28},
	})
	b.Resolve([]models.ResolvedAction{{
		Action:       models.Action{Kind: models.ActionSetFanSpeed, FanSpeed: &models.FanSpeedAction{Speed: 30}},
		SourceAgents: []string{"thermal"},
		Confidence:   0.8,
		Timestamp:    1000,
	}})

	b.Reset()

	assert.Empty(t, b.Hypotheses())
	assert.Empty(t, b.ResolvedActions())
	assert.Equal(t, models.DefaultContext(), b.Context())
}

func TestSnapshot_CombinedReadOnlyView(t *testing.T) {
	b := newTestBlackboard(1000)

	require.NoError(t, b.PostHypothesis(fanHypothesis("thermal", 40, 60000)))
	b.Resolve([]models.ResolvedAction{{
		Action:    models.Action{Kind: models.ActionSetFanSpeed, FanSpeed: &models.FanSpeedAction{Speed: 30}},
		Timestamp: 1000,
	}})

	snap := b.Snapshot()
	assert.Len(t, snap.Hypotheses, 1)
	assert.Len(t, snap.ResolvedActions, 1)
	assert.Equal(t, models.PostureUnknown, snap.Context.CurrentPosture)
	assert.Equal(t, int64(1000), snap.Timestamp)

	// 读取方修改快照不影响存储
	snap.ResolvedActions[0].Confidence = 0.99
	assert.Equal(t, 0.0, b.ResolvedActions()[0].Confidence)
}
