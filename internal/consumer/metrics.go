package consumer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Metrics 消费侧监控指标
type Metrics struct {
	mu sync.RWMutex

	// 采样处理统计
	SamplesProcessed int64 // 处理的采样总数
	SamplesDropped   int64 // 丢弃的采样数（校验失败）
	BatchesProcessed int64 // 处理的批次总数

	// 会话流统计
	UpdatesApplied int64 // 应用的上下文更新数
	UpdatesFailed  int64 // 失败的上下文更新数
	ErrorsParse    int64 // 解析错误

	// 时间
	LastProcessTime time.Time
	StartTime       time.Time
}

// NewMetrics 创建指标
func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		SamplesProcessed: m.SamplesProcessed,
		SamplesDropped:   m.SamplesDropped,
		BatchesProcessed: m.BatchesProcessed,
		UpdatesApplied:   m.UpdatesApplied,
		UpdatesFailed:    m.UpdatesFailed,
		ErrorsParse:      m.ErrorsParse,
		LastProcessTime:  m.LastProcessTime,
		StartTime:        m.StartTime,
	}
}

// AddSamples 累加采样计数
func (m *Metrics) AddSamples(processed, dropped int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SamplesProcessed += processed
	m.SamplesDropped += dropped
	m.BatchesProcessed++
	m.LastProcessTime = time.Now()
}

// IncrementBatch 增加批次计数
func (m *Metrics) IncrementBatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchesProcessed++
	m.LastProcessTime = time.Now()
}

// IncrementUpdateApplied 增加上下文更新计数
func (m *Metrics) IncrementUpdateApplied() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdatesApplied++
	m.LastProcessTime = time.Now()
}

// IncrementUpdateFailed 增加失败计数
func (m *Metrics) IncrementUpdateFailed(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdatesFailed++
	if errorType == "parse" {
		m.ErrorsParse++
	}
}

// Report 输出一次指标日志
func (m *Metrics) Report(logger *zap.Logger) {
	s := m.GetSnapshot()
	logger.Info("Consumer metrics",
		zap.Int64("samples_processed", s.SamplesProcessed),
		zap.Int64("samples_dropped", s.SamplesDropped),
		zap.Int64("batches_processed", s.BatchesProcessed),
		zap.Int64("updates_applied", s.UpdatesApplied),
		zap.Int64("updates_failed", s.UpdatesFailed),
		zap.Duration("uptime", time.Since(s.StartTime)),
	)
}
