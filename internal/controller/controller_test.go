package controller

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-comfort/internal/agents"
	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/models"
)

// recordingCallbacks 记录回调调用（跨 goroutine 安全）
type recordingCallbacks struct {
	mu        sync.Mutex
	fanSpeeds []int
	sounds    []models.SoundAction
	insights  []models.InsightAction
	wakeCalls []float64
}

func (r *recordingCallbacks) callbacks() Callbacks {
	return Callbacks{
		OnFanSpeed: func(speed int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.fanSpeeds = append(r.fanSpeeds, speed)
		},
		OnSoundChange: func(noiseType string, volume float64) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.sounds = append(r.sounds, models.SoundAction{NoiseType: noiseType, Volume: volume})
		},
		OnInsight: func(message, category string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.insights = append(r.insights, models.InsightAction{Message: message, Category: category})
		},
		OnWakeSequence: func(minutes float64) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.wakeCalls = append(r.wakeCalls, minutes)
		},
	}
}

func (r *recordingCallbacks) lastFan() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fanSpeeds) == 0 {
		return 0, false
	}
	return r.fanSpeeds[len(r.fanSpeeds)-1], true
}

func newTestBlackboard() *blackboard.Blackboard {
	bb := blackboard.New(zap.NewNop())
	bb.SetNowFunc(func() int64 { return 1000 })
	return bb
}

func postFan(t *testing.T, bb *blackboard.Blackboard, agentID string, speed, confidence float64, priority models.Priority) {
	t.Helper()
	require.NoError(t, bb.PostHypothesis(models.Hypothesis{
		AgentID:    agentID,
		Timestamp:  1000,
		Confidence: confidence,
		Priority:   priority,
		Action: models.Action{
			Kind:     models.ActionSetFanSpeed,
			FanSpeed: &models.FanSpeedAction{Speed: speed},
		},
		ExpiresAt: 60000,
	}))
}

func postSound(t *testing.T, bb *blackboard.Blackboard, agentID, noiseType string, confidence float64, priority models.Priority) {
	t.Helper()
	require.NoError(t, bb.PostHypothesis(models.Hypothesis{
		AgentID:    agentID,
		Timestamp:  1000,
		Confidence: confidence,
		Priority:   priority,
		Action: models.Action{
			Kind:  models.ActionSetSoundType,
			Sound: &models.SoundAction{NoiseType: noiseType, Volume: 0.3},
		},
		ExpiresAt: 60000,
	}))
}

func TestResolveFanSpeed_WeightedAverageThenClamp(t *testing.T) {
	bb := newTestBlackboard()
	rec := &recordingCallbacks{}
	c := New(Config{CycleInterval: time.Hour}, bb, nil, rec.callbacks(), zap.NewNop())

	// (60·0.8·3 + 40·0.6·2) / (0.8·3 + 0.6·2) = 192/3.6 ≈ 53
	postFan(t, bb, "a", 60, 0.8, models.PriorityHigh)
	postFan(t, bb, "b", 40, 0.6, models.PriorityMedium)

	c.runCycle()

	// 从 0 起步，限速 ±5：本周期仅下发 5
	fan, ok := rec.lastFan()
	require.True(t, ok)
	assert.Equal(t, 5, fan)

	resolved := bb.ResolvedActions()
	require.Len(t, resolved, 1)
	assert.Equal(t, 5.0, resolved[0].Action.FanSpeed.Speed)
	assert.Equal(t, []string{"a", "b"}, resolved[0].SourceAgents)
}

func TestResolveFanSpeed_MonotonicConvergence(t *testing.T) {
	bb := newTestBlackboard()
	rec := &recordingCallbacks{}
	c := New(Config{CycleInterval: time.Hour}, bb, nil, rec.callbacks(), zap.NewNop())

	postFan(t, bb, "a", 50, 1.0, models.PriorityMedium)

	for i := 0; i < 12; i++ {
		c.runCycle()
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	// 5, 10, 15, ... 每周期恰好 +5，到达目标后稳定
	expected := []int{5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 50, 50}
	assert.Equal(t, expected, rec.fanSpeeds)
}

func TestResolveFanSpeed_NoHypothesesSkipsKind(t *testing.T) {
	bb := newTestBlackboard()
	rec := &recordingCallbacks{}
	c := New(Config{CycleInterval: time.Hour}, bb, nil, rec.callbacks(), zap.NewNop())

	c.runCycle()

	_, ok := rec.lastFan()
	assert.False(t, ok, "no fan hypotheses, no fan callback")
	assert.Empty(t, bb.ResolvedActions())
}

func TestResolveSound_PriorityBeatsRawConfidence(t *testing.T) {
	bb := newTestBlackboard()
	rec := &recordingCallbacks{}
	c := New(Config{CycleInterval: time.Hour}, bb, nil, rec.callbacks(), zap.NewNop())

	// 0.7·2 = 1.4 vs 0.6·3 = 1.8 → high 优先级胜出
	postSound(t, bb, "a", "pink", 0.7, models.PriorityMedium)
	postSound(t, bb, "b", "brown", 0.6, models.PriorityHigh)

	c.runCycle()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.sounds, 1)
	assert.Equal(t, "brown", rec.sounds[0].NoiseType)
}

func TestResolveSound_EqualScoreTieBreaksOnConfidence(t *testing.T) {
	bb := newTestBlackboard()
	rec := &recordingCallbacks{}
	c := New(Config{CycleInterval: time.Hour}, bb, nil, rec.callbacks(), zap.NewNop())

	// 0.9·2 = 1.8 vs 0.6·3 = 1.8 → 同分，置信度高者胜
	postSound(t, bb, "a", "pink", 0.9, models.PriorityMedium)
	postSound(t, bb, "b", "brown", 0.6, models.PriorityHigh)

	c.runCycle()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.sounds, 1)
	assert.Equal(t, "pink", rec.sounds[0].NoiseType)
}

func TestInsights_EachHypothesisFansOut(t *testing.T) {
	bb := newTestBlackboard()
	rec := &recordingCallbacks{}
	c := New(Config{CycleInterval: time.Hour}, bb, nil, rec.callbacks(), zap.NewNop())

	for _, agentID := range []string{"a", "b", "c"} {
		require.NoError(t, bb.PostHypothesis(models.Hypothesis{
			AgentID:    agentID,
			Timestamp:  1000,
			Confidence: 0.5,
			Priority:   models.PriorityLow,
			Action: models.Action{
				Kind:    models.ActionLogInsight,
				Insight: &models.InsightAction{Message: "note from " + agentID, Category: "test"},
			},
			ExpiresAt: 60000,
		}))
	}

	c.runCycle()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.insights, 3, "insights are not merged or deduplicated")
}

func TestWakeSequence_LatestTimestampWins(t *testing.T) {
	bb := newTestBlackboard()
	rec := &recordingCallbacks{}
	c := New(Config{CycleInterval: time.Hour}, bb, nil, rec.callbacks(), zap.NewNop())

	for i, agentID := range []string{"a", "b"} {
		require.NoError(t, bb.PostHypothesis(models.Hypothesis{
			AgentID:    agentID,
			Timestamp:  int64(1000 + i),
			Confidence: 0.9,
			Priority:   models.PriorityCritical,
			Action: models.Action{
				Kind: models.ActionTriggerWakeSequence,
				Wake: &models.WakeAction{MinutesUntilAlarm: float64(10 + i)},
			},
			ExpiresAt: 60000,
		}))
	}

	c.runCycle()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.wakeCalls, 1)
	assert.Equal(t, 11.0, rec.wakeCalls[0])
}

func TestRunCycle_MissingCallbacksAreNoOps(t *testing.T) {
	bb := newTestBlackboard()
	c := New(Config{CycleInterval: time.Hour}, bb, nil, Callbacks{}, zap.NewNop())

	postFan(t, bb, "a", 60, 0.8, models.PriorityHigh)
	postSound(t, bb, "a", "pink", 0.7, models.PriorityMedium)

	assert.NotPanics(t, func() { c.runCycle() })
	assert.Len(t, bb.ResolvedActions(), 2, "resolution still recorded without callbacks")
}

// cycleAgent 每周期提交固定风速假设
type cycleAgent struct {
	bb *blackboard.Blackboard
}

func (a *cycleAgent) ID() string { return "cycle-agent" }

func (a *cycleAgent) Run() {
	_ = a.bb.PostHypothesis(models.Hypothesis{
		AgentID:    "cycle-agent",
		Timestamp:  1000,
		Confidence: 1,
		Priority:   models.PriorityMedium,
		Action: models.Action{
			Kind:     models.ActionSetFanSpeed,
			FanSpeed: &models.FanSpeedAction{Speed: 50},
		},
		ExpiresAt: 60000,
	})
}

func TestController_AgentsInvokedEachCycle(t *testing.T) {
	bb := newTestBlackboard()
	rec := &recordingCallbacks{}
	c := New(Config{CycleInterval: time.Hour}, bb, []agents.Agent{&cycleAgent{bb: bb}}, rec.callbacks(), zap.NewNop())

	c.runCycle()
	c.runCycle()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int{5, 10}, rec.fanSpeeds)
}

func TestController_IdempotentStartStop(t *testing.T) {
	bb := newTestBlackboard()
	c := New(Config{CycleInterval: 100 * time.Millisecond}, bb, nil, Callbacks{}, zap.NewNop())

	c.Start()
	assert.Equal(t, int64(1), c.CycleCount(), "first cycle runs immediately")

	// 重复 Start 不得产生第二个调度
	c.Start()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(2), c.CycleCount(), "exactly one recurring schedule")

	c.Stop()
	assert.Equal(t, int64(0), c.CycleCount(), "stop resets cycle count")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(0), c.CycleCount(), "no cycle may run after stop returns")

	// 重复 Stop 与未启动时 Stop 均安全
	c.Stop()
}

func TestController_RestartResetsFanSmoothing(t *testing.T) {
	bb := newTestBlackboard()
	rec := &recordingCallbacks{}
	c := New(Config{CycleInterval: time.Hour}, bb, nil, rec.callbacks(), zap.NewNop())

	postFan(t, bb, "a", 50, 1.0, models.PriorityMedium)

	c.Start()
	c.Stop()
	c.Start()
	defer c.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	// 两次启动都从 lastApplied=0 起步
	assert.Equal(t, []int{5, 5}, rec.fanSpeeds)
}
