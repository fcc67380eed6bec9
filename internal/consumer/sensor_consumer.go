// Package consumer 提供传感器与会话数据的消费侧
//
// - SensorConsumer: 订阅可穿戴网关的 MQTT 加速度采样，喂给分类器，
//   把去抖后的姿态写入 blackboard 上下文
// - SessionConsumer: 消费 Redis Streams 的会话上下文更新
//   （睡眠阶段、问卷、睡眠债、闹钟等）
// - CacheManager: 把 blackboard 快照写入 Redis 供 UI 拉取
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/classifier"
	"wisefido-comfort/internal/config"
	"wisefido-comfort/internal/models"
	"wisefido-comfort/internal/mqtt"
)

// 夜间时段边界
const (
	middleOfNightMS = 2 * 60 * 60 * 1000 // 2h
	lateOfNightMS   = 5 * 60 * 60 * 1000 // 5h
)

// SensorConsumer 加速度采样消费者
//
// 处理流程（每条 MQTT 消息）：
// 1. 解析采样批次（JSON）
// 2. 会话切换时重置分类器与 blackboard
// 3. 按到达顺序逐条 Classify
// 4. 将最后一次结果 patch 进上下文（姿态、置信度、会话时长、时段）
type SensorConsumer struct {
	config     *config.Config
	mqttClient *mqtt.Client
	clf        *classifier.Classifier
	bb         *blackboard.Blackboard
	logger     *zap.Logger
	metrics    *Metrics

	mu             sync.Mutex
	sessionID      string
	sessionStartMS int64
}

// NewSensorConsumer 创建采样消费者
func NewSensorConsumer(
	cfg *config.Config,
	mqttClient *mqtt.Client,
	clf *classifier.Classifier,
	bb *blackboard.Blackboard,
	logger *zap.Logger,
) *SensorConsumer {
	return &SensorConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		clf:        clf,
		bb:         bb,
		logger:     logger,
		metrics:    NewMetrics(),
	}
}

// Start 订阅加速度主题并启动指标报告
func (c *SensorConsumer) Start(ctx context.Context) error {
	topic := c.config.Comfort.AccelTopic
	if err := c.mqttClient.Subscribe(topic, c.config.MQTT.QoS, c.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to accel topic: %w", err)
	}

	c.logger.Info("Sensor consumer started",
		zap.String("topic", topic),
	)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.metrics.Report(c.logger)
			}
		}
	}()

	return nil
}

// Metrics 指标快照
func (c *SensorConsumer) Metrics() Metrics {
	return c.metrics.GetSnapshot()
}

// SessionID 当前会话 ID（尚无会话时为空串）
func (c *SensorConsumer) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// HandleMessage 处理一条加速度采样消息
func (c *SensorConsumer) HandleMessage(topic string, payload []byte) error {
	var msg models.SampleMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.metrics.IncrementUpdateFailed("parse")
		return fmt.Errorf("failed to unmarshal sample message: %w", err)
	}
	if msg.SessionID == "" {
		c.metrics.IncrementUpdateFailed("parse")
		return fmt.Errorf("sample message missing sessionId")
	}
	if len(msg.Samples) == 0 {
		return nil
	}

	c.ensureSession(msg.SessionID, msg.Samples[0].Timestamp)

	// 按到达顺序逐条分类（分类器自行丢弃 NaN/Inf 采样）
	var result models.PostureResult
	var processed, dropped int64
	for _, sample := range msg.Samples {
		if !sampleUsable(sample) {
			dropped++
		} else {
			processed++
		}
		result = c.clf.Classify(sample)
	}
	c.metrics.AddSamples(processed, dropped)

	lastTS := msg.Samples[len(msg.Samples)-1].Timestamp
	c.mu.Lock()
	durationMS := lastTS - c.sessionStartMS
	c.mu.Unlock()
	if durationMS < 0 {
		durationMS = 0
	}
	tod := timeOfNight(durationMS)

	c.bb.UpdateContext(models.ContextPatch{
		CurrentPosture:    &result.Posture,
		PostureConfidence: &result.Confidence,
		SessionDurationMS: &durationMS,
		TimeOfNight:       &tod,
	})

	return nil
}

// ensureSession 会话切换时重置分类器与 blackboard
func (c *SensorConsumer) ensureSession(sessionID string, firstTS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == sessionID {
		return
	}

	if c.sessionID != "" {
		c.logger.Info("Sleep session changed, resetting state",
			zap.String("previous_session", c.sessionID),
			zap.String("session_id", sessionID),
		)
		c.clf.Reset()
		c.bb.Reset()
	} else {
		c.logger.Info("Sleep session started",
			zap.String("session_id", sessionID),
		)
	}

	c.sessionID = sessionID
	c.sessionStartMS = firstTS
}

// sampleUsable 指标口径上的有效采样
func sampleUsable(s models.AccelerometerSample) bool {
	for _, v := range []float64{s.X, s.Y, s.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return s.Timestamp > 0
}

// timeOfNight 由会话时长推出粗粒度时段
func timeOfNight(durationMS int64) models.TimeOfNight {
	switch {
	case durationMS >= lateOfNightMS:
		return models.TimeOfNightLate
	case durationMS >= middleOfNightMS:
		return models.TimeOfNightMiddle
	default:
		return models.TimeOfNightEarly
	}
}
