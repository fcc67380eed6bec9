package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN 数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT 配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config comfort 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	Comfort struct {
		// 仲裁周期
		CycleInterval time.Duration // 默认 5s
		MaxFanStep    float64       // 风扇单周期最大变化量，默认 5

		// MQTT 主题
		AccelTopic     string // 加速度采样订阅主题，默认 "wisefido/comfort/+/accel"
		FanTopicPrefix string // 风扇指令发布前缀，默认 "wisefido/comfort/"

		// Redis
		SessionStream   string // 会话上下文更新 Stream
		ConsumerGroup   string
		ConsumerName    string
		StreamBatchSize int64

		// 快照缓存
		SnapshotKeyPrefix string // "comfort:session:"
		SnapshotSuffix    string // ":snapshot"
		SnapshotTTL       int    // 秒
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置（带默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-comfort")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.Comfort.CycleInterval = time.Duration(getEnvInt("COMFORT_CYCLE_INTERVAL_MS", 5000)) * time.Millisecond
	cfg.Comfort.MaxFanStep = 5

	cfg.Comfort.AccelTopic = getEnv("COMFORT_ACCEL_TOPIC", "wisefido/comfort/+/accel")
	cfg.Comfort.FanTopicPrefix = getEnv("COMFORT_TOPIC_PREFIX", "wisefido/comfort/")

	cfg.Comfort.SessionStream = getEnv("COMFORT_SESSION_STREAM", "comfort:session:updates")
	cfg.Comfort.ConsumerGroup = getEnv("COMFORT_CONSUMER_GROUP", "comfort-service")
	cfg.Comfort.ConsumerName = getEnv("COMFORT_CONSUMER_NAME", "comfort-1")
	cfg.Comfort.StreamBatchSize = 10

	cfg.Comfort.SnapshotKeyPrefix = getEnv("COMFORT_SNAPSHOT_PREFIX", "comfort:session:")
	cfg.Comfort.SnapshotSuffix = ":snapshot"
	cfg.Comfort.SnapshotTTL = 30 // 30 秒

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
