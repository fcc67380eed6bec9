// Package blackboard 提供共享的假设/上下文存储
//
// 主要职责：
// - 维护会话上下文（姿态、睡眠阶段、天气、问卷、睡眠债等）
// - 按 (agent_id, action_kind) 键维护 agent 假设，重复 post 原地替换
// - 保存最近一次仲裁结果，供 UI 拉取
// - 同步变更通知（post/update/resolve/reset 之后按订阅顺序回调）
//
// 过期语义：假设过期采用读取时惰性过滤，存储不做主动清扫；
// 仅 Reset 整体清空底层集合。
package blackboard

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-comfort/internal/models"
)

// hypothesisKey 假设唯一键
type hypothesisKey struct {
	agentID string
	kind    models.ActionKind
}

// Snapshot 只读快照（UI/调试用）
type Snapshot struct {
	Context         models.SleepContext     `json:"context"`
	Hypotheses      []models.Hypothesis     `json:"hypotheses"`
	ResolvedActions []models.ResolvedAction `json:"resolved_actions"`
	Timestamp       int64                   `json:"timestamp"` // Unix ms
}

// Blackboard 共享假设/上下文存储
//
// 由会话生命周期显式创建和销毁，通过依赖注入传给 agents 和
// controller，避免进程级单例。内部互斥锁保护所有可变状态；
// 通知在锁外同步触发，监听器不得在回调内再调用可变方法
// （文档化的调用方责任，存在递归通知风险）。
type Blackboard struct {
	mu         sync.Mutex
	context    models.SleepContext
	hypotheses map[hypothesisKey]models.Hypothesis
	resolved   []models.ResolvedAction

	nextListenerID int
	listenerIDs    []int // 保持订阅顺序
	listeners      map[int]func()

	logger *zap.Logger
	now    func() int64 // Unix ms，测试可替换
}

// New 创建 blackboard，上下文为文档化默认值
func New(logger *zap.Logger) *Blackboard {
	return &Blackboard{
		context:    models.DefaultContext(),
		hypotheses: make(map[hypothesisKey]models.Hypothesis),
		listeners:  make(map[int]func()),
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// PostHypothesis 插入/替换假设并通知订阅者
//
// 校验：Action.Kind 必须是四种已知类型且 payload 存在，否则拒绝；
// Confidence 截断到 [0,1]。同 (agent_id, kind) 的旧假设被原地替换。
func (b *Blackboard) PostHypothesis(h models.Hypothesis) error {
	if err := h.Action.Validate(); err != nil {
		b.logger.Warn("Malformed hypothesis rejected",
			zap.String("agent_id", h.AgentID),
			zap.Error(err),
		)
		return err
	}
	if h.Confidence < 0 {
		h.Confidence = 0
	}
	if h.Confidence > 1 {
		h.Confidence = 1
	}

	b.mu.Lock()
	b.hypotheses[hypothesisKey{agentID: h.AgentID, kind: h.Action.Kind}] = h
	b.mu.Unlock()

	b.notify()
	return nil
}

// Hypotheses 返回所有未过期的假设（expires_at > now）
//
// 惰性过滤：过期条目仅从本次读取中排除，底层存储不变。
func (b *Blackboard) Hypotheses() []models.Hypothesis {
	b.mu.Lock()
	defer b.mu.Unlock()

	nowMS := b.now()
	live := make([]models.Hypothesis, 0, len(b.hypotheses))
	for _, h := range b.hypotheses {
		if h.ExpiresAt > nowMS {
			live = append(live, h)
		}
	}
	return live
}

// UpdateContext 浅合并上下文（nil 字段不变）并通知订阅者
func (b *Blackboard) UpdateContext(patch models.ContextPatch) {
	b.mu.Lock()
	if patch.CurrentPosture != nil {
		b.context.CurrentPosture = *patch.CurrentPosture
	}
	if patch.PostureConfidence != nil {
		b.context.PostureConfidence = *patch.PostureConfidence
	}
	if patch.CurrentSleepStage != nil {
		b.context.CurrentSleepStage = *patch.CurrentSleepStage
	}
	if patch.SessionDurationMS != nil {
		b.context.SessionDurationMS = *patch.SessionDurationMS
	}
	if patch.Weather != nil {
		b.context.Weather = patch.Weather
	}
	if patch.PreSleep != nil {
		b.context.PreSleep = patch.PreSleep
	}
	if patch.TimeOfNight != nil {
		b.context.TimeOfNight = *patch.TimeOfNight
	}
	if patch.SleepDebtHours != nil {
		b.context.SleepDebtHours = *patch.SleepDebtHours
	}
	if patch.AlarmTime != nil {
		b.context.AlarmTime = patch.AlarmTime
	}
	b.mu.Unlock()

	b.notify()
}

// Context 当前上下文副本
func (b *Blackboard) Context() models.SleepContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.context
}

// Resolve 覆盖仲裁结果列表并通知订阅者（仅 controller 调用）
func (b *Blackboard) Resolve(actions []models.ResolvedAction) {
	b.mu.Lock()
	b.resolved = append(b.resolved[:0:0], actions...)
	b.mu.Unlock()

	b.notify()
}

// ResolvedActions 最近一次仲裁结果副本
func (b *Blackboard) ResolvedActions() []models.ResolvedAction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.ResolvedAction{}, b.resolved...)
}

// Snapshot 组合只读视图（假设部分已做过期过滤）
func (b *Blackboard) Snapshot() Snapshot {
	hypotheses := b.Hypotheses()

	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Context:         b.context,
		Hypotheses:      hypotheses,
		ResolvedActions: append([]models.ResolvedAction{}, b.resolved...),
		Timestamp:       b.now(),
	}
}

// Subscribe 注册变更回调，返回幂等的退订函数
//
// 回调在每次 post/update/resolve/reset 之后按订阅顺序同步触发。
func (b *Blackboard) Subscribe(listener func()) func() {
	b.mu.Lock()
	id := b.nextListenerID
	b.nextListenerID++
	b.listenerIDs = append(b.listenerIDs, id)
	b.listeners[id] = listener
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.listeners[id]; !ok {
			return // 幂等
		}
		delete(b.listeners, id)
		for i, lid := range b.listenerIDs {
			if lid == id {
				b.listenerIDs = append(b.listenerIDs[:i], b.listenerIDs[i+1:]...)
				break
			}
		}
	}
}

// Reset 清空假设与仲裁结果，恢复上下文默认值，并通知订阅者
func (b *Blackboard) Reset() {
	b.mu.Lock()
	b.context = models.DefaultContext()
	b.hypotheses = make(map[hypothesisKey]models.Hypothesis)
	b.resolved = nil
	b.mu.Unlock()

	b.logger.Debug("Blackboard reset")
	b.notify()
}

// notify 按订阅顺序同步触发所有监听器（在状态锁之外）
func (b *Blackboard) notify() {
	b.mu.Lock()
	callbacks := make([]func(), 0, len(b.listenerIDs))
	for _, id := range b.listenerIDs {
		if l, ok := b.listeners[id]; ok {
			callbacks = append(callbacks, l)
		}
	}
	b.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// SetNowFunc 替换时间源（仅测试使用）
func (b *Blackboard) SetNowFunc(now func() int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}
