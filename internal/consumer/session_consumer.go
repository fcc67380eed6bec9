package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/classifier"
	"wisefido-comfort/internal/config"
	"wisefido-comfort/internal/models"
	"wisefido-comfort/internal/redisx"
)

// SessionConsumer 会话上下文更新消费者（Redis Streams consumer group）
//
// 上游（问卷服务、睡眠分期服务、闹钟服务）把更新写入
// comfort:session:updates，本消费者按 dataKey 分发：
// - contextPatch: 合并进 blackboard 上下文
// - sessionReset: 重置 blackboard 与分类器
type SessionConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	bb          *blackboard.Blackboard
	clf         *classifier.Classifier
	logger      *zap.Logger
	metrics     *Metrics
	started     bool
	stopChan    chan struct{}
	doneChan    chan struct{}
}

// NewSessionConsumer 创建会话更新消费者
func NewSessionConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	bb *blackboard.Blackboard,
	clf *classifier.Classifier,
	logger *zap.Logger,
) *SessionConsumer {
	return &SessionConsumer{
		config:      cfg,
		redisClient: redisClient,
		bb:          bb,
		clf:         clf,
		logger:      logger,
		metrics:     NewMetrics(),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

// Start 创建 consumer group 并启动消费循环
func (c *SessionConsumer) Start(ctx context.Context) error {
	stream := c.config.Comfort.SessionStream
	group := c.config.Comfort.ConsumerGroup

	if err := redisx.CreateConsumerGroup(ctx, c.redisClient, stream, group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Session consumer started",
		zap.String("stream", stream),
		zap.String("group", group),
		zap.String("consumer", c.config.Comfort.ConsumerName),
	)

	c.started = true
	go c.consumeLoop(ctx)
	return nil
}

// Stop 停止消费循环并等待退出
func (c *SessionConsumer) Stop() {
	if !c.started {
		return
	}
	c.started = false
	close(c.stopChan)
	<-c.doneChan
	c.logger.Info("Session consumer stopped")
}

// Metrics 指标快照
func (c *SessionConsumer) Metrics() Metrics {
	return c.metrics.GetSnapshot()
}

// consumeLoop 消费循环，读取失败时指数退避（1s → 30s）
func (c *SessionConsumer) consumeLoop(ctx context.Context) {
	defer close(c.doneChan)

	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		default:
		}

		messages, err := redisx.ReadFromStream(ctx, c.redisClient,
			c.config.Comfort.SessionStream,
			c.config.Comfort.ConsumerGroup,
			c.config.Comfort.ConsumerName,
			c.config.Comfort.StreamBatchSize,
		)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to read from session stream",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		if len(messages) == 0 {
			continue
		}

		for _, msg := range messages {
			if err := c.ProcessMessage(msg); err != nil {
				c.logger.Error("Failed to process session update",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
				c.metrics.IncrementUpdateFailed("process")
			} else {
				c.metrics.IncrementUpdateApplied()
			}

			// 处理失败也 ACK，坏消息重投不会变好
			if err := redisx.AckMessage(ctx, c.redisClient,
				c.config.Comfort.SessionStream,
				c.config.Comfort.ConsumerGroup,
				msg.ID,
			); err != nil {
				c.logger.Error("Failed to ack message",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
		c.metrics.IncrementBatch()
	}
}

// ProcessMessage 处理一条会话更新
func (c *SessionConsumer) ProcessMessage(msg redisx.StreamMessage) error {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("message %s missing data field", msg.ID)
	}

	var update models.SessionUpdateMessage
	if err := json.Unmarshal([]byte(raw), &update); err != nil {
		return fmt.Errorf("failed to unmarshal session update: %w", err)
	}

	switch update.DataKey {
	case models.DataKeyContextPatch:
		var patch models.ContextPatch
		if err := json.Unmarshal(update.Data, &patch); err != nil {
			return fmt.Errorf("failed to unmarshal context patch: %w", err)
		}
		c.bb.UpdateContext(patch)
		c.logger.Debug("Context patch applied",
			zap.String("session_id", update.SessionID),
		)
		return nil

	case models.DataKeySessionReset:
		c.bb.Reset()
		c.clf.Reset()
		c.logger.Info("Session reset applied",
			zap.String("session_id", update.SessionID),
		)
		return nil

	default:
		return fmt.Errorf("unknown dataKey: %s", update.DataKey)
	}
}
