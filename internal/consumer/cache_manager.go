package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/config"
)

// CacheManager 把 blackboard 快照写入 Redis 供 UI / API 拉取
//
// key: comfort:session:<sessionID>:snapshot，TTL 见配置
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建快照缓存管理器
func NewCacheManager(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// SnapshotKey 会话对应的快照 key
func (m *CacheManager) SnapshotKey(sessionID string) string {
	return m.config.Comfort.SnapshotKeyPrefix + sessionID + m.config.Comfort.SnapshotSuffix
}

// WriteSnapshot 序列化快照并写入 Redis
func (m *CacheManager) WriteSnapshot(ctx context.Context, sessionID string, snap blackboard.Snapshot) error {
	if sessionID == "" {
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := m.SnapshotKey(sessionID)
	ttl := time.Duration(m.config.Comfort.SnapshotTTL) * time.Second
	if err := m.redisClient.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot to redis: %w", err)
	}

	m.logger.Debug("Snapshot cached",
		zap.String("key", key),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// ReadSnapshot 读取缓存的快照（不存在时返回 found=false）
func (m *CacheManager) ReadSnapshot(ctx context.Context, sessionID string) (blackboard.Snapshot, bool, error) {
	var snap blackboard.Snapshot

	data, err := m.redisClient.Get(ctx, m.SnapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("failed to read snapshot from redis: %w", err)
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}
