package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"wisefido-comfort/internal/actuator"
	"wisefido-comfort/internal/agents"
	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/classifier"
	"wisefido-comfort/internal/config"
	"wisefido-comfort/internal/consumer"
	"wisefido-comfort/internal/controller"
	"wisefido-comfort/internal/mqtt"
	"wisefido-comfort/internal/redisx"
	"wisefido-comfort/internal/repository"
)

// ComfortService 舒适度服务（整合各层）
//
// 数据流：
//   MQTT 加速度采样 → 分类器 → blackboard 上下文
//   Redis Stream 会话更新 → blackboard 上下文
//   仲裁控制器周期 → agents → 仲裁 → 执行器（MQTT 指令 + 落库）
//   blackboard 变更 → 快照缓存（Redis）
type ComfortService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	bb              *blackboard.Blackboard
	clf             *classifier.Classifier
	insightsRepo    *repository.InsightsRepository
	actionsRepo     *repository.ActionsRepository
	cacheManager    *consumer.CacheManager
	sensorConsumer  *consumer.SensorConsumer
	sessionConsumer *consumer.SessionConsumer
	act             *actuator.Actuator
	ctrl            *controller.Controller

	unsubscribe func()
}

// NewComfortService 创建舒适度服务
func NewComfortService(cfg *config.Config, logger *zap.Logger) (*ComfortService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redisx.NewClient(&cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mqtt: %w", err)
	}

	// 4. 核心状态
	bb := blackboard.New(logger)
	clf := classifier.NewClassifier(logger)

	// 5. Repository 层
	insightsRepo := repository.NewInsightsRepository(db, logger)
	actionsRepo := repository.NewActionsRepository(db, logger)

	// 6. Consumer 层
	cacheManager := consumer.NewCacheManager(cfg, redisClient, logger)
	sensorConsumer := consumer.NewSensorConsumer(cfg, mqttClient, clf, bb, logger)
	sessionConsumer := consumer.NewSessionConsumer(cfg, redisClient, bb, clf, logger)

	// 7. 执行器与仲裁控制器
	act := actuator.New(cfg, mqttClient, bb, insightsRepo, actionsRepo,
		sensorConsumer.SessionID, logger)
	ctrl := controller.New(
		controller.Config{
			CycleInterval: cfg.Comfort.CycleInterval,
			MaxFanStep:    cfg.Comfort.MaxFanStep,
		},
		bb,
		agents.DefaultAgents(bb, logger),
		act.Callbacks(),
		logger,
	)

	return &ComfortService{
		config:          cfg,
		db:              db,
		redisClient:     redisClient,
		mqttClient:      mqttClient,
		logger:          logger,
		bb:              bb,
		clf:             clf,
		insightsRepo:    insightsRepo,
		actionsRepo:     actionsRepo,
		cacheManager:    cacheManager,
		sensorConsumer:  sensorConsumer,
		sessionConsumer: sessionConsumer,
		act:             act,
		ctrl:            ctrl,
	}, nil
}

// Start 启动服务
func (s *ComfortService) Start(ctx context.Context) error {
	s.logger.Info("Starting comfort service")

	// blackboard 变更 → 落库 + 快照缓存
	s.unsubscribe = s.bb.Subscribe(func() {
		s.act.SyncResolved(ctx)

		sessionID := s.sensorConsumer.SessionID()
		if sessionID == "" {
			return
		}
		if err := s.cacheManager.WriteSnapshot(ctx, sessionID, s.bb.Snapshot()); err != nil {
			s.logger.Error("Failed to cache snapshot",
				zap.Error(err),
			)
		}
	})

	if err := s.sensorConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sensor consumer: %w", err)
	}
	if err := s.sessionConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session consumer: %w", err)
	}
	s.ctrl.Start()

	return nil
}

// Stop 停止服务
func (s *ComfortService) Stop() error {
	s.logger.Info("Stopping comfort service")

	s.ctrl.Stop()
	s.sessionConsumer.Stop()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	s.mqttClient.Disconnect()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}
