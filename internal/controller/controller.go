// Package controller 提供仲裁控制器
//
// 决策周期（定时驱动，周期内无并发）：
// 1. 依次调用所有注册 agent（其假设被 post/替换到 blackboard）
// 2. 读取未过期假设
// 3. SET_FAN_SPEED：置信度×优先级加权平均 → 四舍五入
// 4. 限速：相对上次实际下发值的变化截断到 ±MaxFanStep
// 5. SET_SOUND_TYPE：confidence×priorityWeight 最大者胜出，同分比置信度
// 6. LOG_INSIGHT：逐条回调，不合并不去重
// 7. TRIGGER_WAKE_SEQUENCE：取最新一条，回调一次
// 8. 仲裁结果写回 blackboard 供 UI 观察
//
// 缺省回调按 no-op 处理；某 Kind 无假设时静默跳过该 Kind。
package controller

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-comfort/internal/agents"
	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/models"
)

// DefaultMaxFanStep 风扇单周期最大变化量
const DefaultMaxFanStep = 5

// Config 控制器配置
type Config struct {
	CycleInterval time.Duration // 决策周期
	MaxFanStep    float64       // 风扇限速步长，0 取默认值 5
}

// Callbacks 各 Kind 的外部执行回调，任意字段可为 nil
type Callbacks struct {
	OnFanSpeed     func(speed int)
	OnSoundChange  func(noiseType string, volume float64)
	OnInsight      func(message, category string)
	OnWakeSequence func(minutesUntilAlarm float64)
}

// Controller 仲裁控制器
//
// 运行态：lastAppliedFanSpeed 跨周期保留使限速有状态；
// Stop 后 cycleCount 与 lastAppliedFanSpeed 归零。
type Controller struct {
	cfg       Config
	bb        *blackboard.Blackboard
	agents    []agents.Agent
	callbacks Callbacks
	logger    *zap.Logger

	mu                  sync.Mutex
	running             bool
	stopChan            chan struct{}
	doneChan            chan struct{}
	cycleCount          int64
	lastAppliedFanSpeed float64

	now func() int64 // Unix ms，测试可替换
}

// New 创建控制器
func New(cfg Config, bb *blackboard.Blackboard, agentList []agents.Agent, callbacks Callbacks, logger *zap.Logger) *Controller {
	if cfg.MaxFanStep <= 0 {
		cfg.MaxFanStep = DefaultMaxFanStep
	}
	return &Controller{
		cfg:       cfg,
		bb:        bb,
		agents:    agentList,
		callbacks: callbacks,
		logger:    logger,
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Start 启动周期调度（幂等）
//
// 立即同步执行第一个周期（首个指令不等待完整间隔），
// 之后每 CycleInterval 执行一次，直到 Stop。
func (c *Controller) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.doneChan = make(chan struct{})
	stopChan, doneChan := c.stopChan, c.doneChan
	c.mu.Unlock()

	c.logger.Info("Arbitration controller started",
		zap.Duration("cycle_interval", c.cfg.CycleInterval),
	)

	c.runCycle()

	go func() {
		defer close(doneChan)
		ticker := time.NewTicker(c.cfg.CycleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.runCycle()
			case <-stopChan:
				return
			}
		}
	}()
}

// Stop 取消周期调度（幂等，未 Start 时调用安全）
//
// 返回后保证不再有新周期执行；运行态归零。
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	doneChan := c.doneChan
	c.mu.Unlock()

	<-doneChan

	c.mu.Lock()
	c.cycleCount = 0
	c.lastAppliedFanSpeed = 0
	c.mu.Unlock()

	c.logger.Info("Arbitration controller stopped")
}

// CycleCount 已执行的周期数（首个周期后为 1，Stop 后归零）
func (c *Controller) CycleCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycleCount
}

// runCycle 执行一个决策周期
func (c *Controller) runCycle() {
	c.mu.Lock()
	c.cycleCount++
	cycle := c.cycleCount
	c.mu.Unlock()

	// 1. 调用所有 agent
	for _, a := range c.agents {
		a.Run()
	}

	// 2. 读取未过期假设并按 Kind 分组
	var fanHyps, soundHyps, insightHyps, wakeHyps []models.Hypothesis
	for _, h := range c.bb.Hypotheses() {
		switch h.Action.Kind {
		case models.ActionSetFanSpeed:
			fanHyps = append(fanHyps, h)
		case models.ActionSetSoundType:
			soundHyps = append(soundHyps, h)
		case models.ActionLogInsight:
			insightHyps = append(insightHyps, h)
		case models.ActionTriggerWakeSequence:
			wakeHyps = append(wakeHyps, h)
		}
	}

	nowMS := c.now()
	var resolved []models.ResolvedAction

	// 3-4. 风速：加权平均 + 限速
	if len(fanHyps) > 0 {
		resolved = append(resolved, c.resolveFanSpeed(fanHyps, nowMS, cycle))
	}

	// 5. 声景：最佳得分胜出
	if len(soundHyps) > 0 {
		resolved = append(resolved, c.resolveSound(soundHyps, nowMS))
	}

	// 6. 洞察：逐条回调
	for _, h := range insightHyps {
		if c.callbacks.OnInsight != nil {
			c.callbacks.OnInsight(h.Action.Insight.Message, h.Action.Insight.Category)
		}
		resolved = append(resolved, models.ResolvedAction{
			Action:       h.Action,
			SourceAgents: []string{h.AgentID},
			Confidence:   h.Confidence,
			Timestamp:    nowMS,
		})
	}

	// 7. 唤醒序列：取最新一条
	if len(wakeHyps) > 0 {
		winner := wakeHyps[0]
		for _, h := range wakeHyps[1:] {
			if h.Timestamp > winner.Timestamp {
				winner = h
			}
		}
		if c.callbacks.OnWakeSequence != nil {
			c.callbacks.OnWakeSequence(winner.Action.Wake.MinutesUntilAlarm)
		}
		resolved = append(resolved, models.ResolvedAction{
			Action:       winner.Action,
			SourceAgents: []string{winner.AgentID},
			Confidence:   winner.Confidence,
			Timestamp:    nowMS,
		})
	}

	// 8. 仲裁结果写回 blackboard
	c.bb.Resolve(resolved)
}

// resolveFanSpeed 置信度×优先级加权平均，随后对上次下发值限速
func (c *Controller) resolveFanSpeed(hyps []models.Hypothesis, nowMS int64, cycle int64) models.ResolvedAction {
	var weightedSum, weightSum float64
	sources := make([]string, 0, len(hyps))
	for _, h := range hyps {
		w := h.Confidence * float64(h.Priority.Weight())
		weightedSum += h.Action.FanSpeed.Speed * w
		weightSum += w
		sources = append(sources, h.AgentID)
	}
	sort.Strings(sources)

	target := 0.0
	if weightSum > 0 {
		target = math.Round(weightedSum / weightSum)
	}

	c.mu.Lock()
	applied := clampStep(c.lastAppliedFanSpeed, target, c.cfg.MaxFanStep)
	c.lastAppliedFanSpeed = applied
	c.mu.Unlock()

	if c.callbacks.OnFanSpeed != nil {
		c.callbacks.OnFanSpeed(int(math.Round(applied)))
	}

	c.logger.Debug("Fan speed resolved",
		zap.Int64("cycle", cycle),
		zap.Float64("target", target),
		zap.Float64("applied", applied),
		zap.Strings("source_agents", sources),
	)

	return models.ResolvedAction{
		Action: models.Action{
			Kind:     models.ActionSetFanSpeed,
			FanSpeed: &models.FanSpeedAction{Speed: applied},
		},
		SourceAgents: sources,
		Confidence:   weightSum / float64(sumWeights(hyps)),
		Timestamp:    nowMS,
	}
}

// resolveSound confidence×priorityWeight 最大者胜出，同分取更高置信度
func (c *Controller) resolveSound(hyps []models.Hypothesis, nowMS int64) models.ResolvedAction {
	winner := hyps[0]
	winnerScore := winner.Confidence * float64(winner.Priority.Weight())
	for _, h := range hyps[1:] {
		score := h.Confidence * float64(h.Priority.Weight())
		if score > winnerScore || (score == winnerScore && h.Confidence > winner.Confidence) {
			winner = h
			winnerScore = score
		}
	}

	if c.callbacks.OnSoundChange != nil {
		c.callbacks.OnSoundChange(winner.Action.Sound.NoiseType, winner.Action.Sound.Volume)
	}

	return models.ResolvedAction{
		Action:       winner.Action,
		SourceAgents: []string{winner.AgentID},
		Confidence:   winner.Confidence,
		Timestamp:    nowMS,
	}
}

// clampStep 将 target 相对 last 的变化截断到 ±maxStep
func clampStep(last, target, maxStep float64) float64 {
	delta := target - last
	if delta > maxStep {
		delta = maxStep
	}
	if delta < -maxStep {
		delta = -maxStep
	}
	return last + delta
}

func sumWeights(hyps []models.Hypothesis) int {
	total := 0
	for _, h := range hyps {
		total += h.Priority.Weight()
	}
	return total
}
