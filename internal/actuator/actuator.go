// Package actuator 把仲裁结果下发到设备并落库
//
// - 回调侧：fan/sound/wake 指令以 JSON 发布到会话 MQTT 主题
// - 持久化侧：订阅 blackboard，按 Timestamp 去重后把仲裁结果
//   写入 comfort_actions / comfort_insights
package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-comfort/internal/blackboard"
	"wisefido-comfort/internal/config"
	"wisefido-comfort/internal/controller"
	"wisefido-comfort/internal/models"
	"wisefido-comfort/internal/repository"
)

// Publisher MQTT 发布能力（mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// FanCommand 风扇指令载荷
type FanCommand struct {
	Speed     int   `json:"speed"` // 0-100
	Timestamp int64 `json:"timestamp,omitempty"`
}

// SoundCommand 声景指令载荷
type SoundCommand struct {
	NoiseType string  `json:"noise_type"`
	Volume    float64 `json:"volume"` // 0.0-1.0
	Timestamp int64   `json:"timestamp,omitempty"`
}

// WakeCommand 唤醒序列指令载荷
type WakeCommand struct {
	MinutesUntilAlarm float64 `json:"minutes_until_alarm"`
	Timestamp         int64   `json:"timestamp,omitempty"`
}

// Actuator 执行器
type Actuator struct {
	config    *config.Config
	publisher Publisher
	bb        *blackboard.Blackboard
	insights  *repository.InsightsRepository
	actions   *repository.ActionsRepository
	sessionID func() string
	logger    *zap.Logger
	now       func() int64

	mu              sync.Mutex
	lastPersistedTS int64
}

// New 创建执行器
//
// sessionID 返回当前睡眠会话 ID；为空串时跳过发布与落库
func New(
	cfg *config.Config,
	publisher Publisher,
	bb *blackboard.Blackboard,
	insights *repository.InsightsRepository,
	actions *repository.ActionsRepository,
	sessionID func() string,
	logger *zap.Logger,
) *Actuator {
	return &Actuator{
		config:    cfg,
		publisher: publisher,
		bb:        bb,
		insights:  insights,
		actions:   actions,
		sessionID: sessionID,
		logger:    logger,
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Callbacks 供仲裁控制器使用的回调集合
func (a *Actuator) Callbacks() controller.Callbacks {
	return controller.Callbacks{
		OnFanSpeed:     a.publishFanSpeed,
		OnSoundChange:  a.publishSound,
		OnWakeSequence: a.publishWake,
		// 洞察不下发设备，仅落库（见 SyncResolved）
	}
}

func (a *Actuator) publishFanSpeed(speed int) {
	a.publishCommand("fan", FanCommand{
		Speed:     speed,
		Timestamp: a.now(),
	})
}

func (a *Actuator) publishSound(noiseType string, volume float64) {
	a.publishCommand("sound", SoundCommand{
		NoiseType: noiseType,
		Volume:    volume,
		Timestamp: a.now(),
	})
}

func (a *Actuator) publishWake(minutesUntilAlarm float64) {
	a.publishCommand("wake", WakeCommand{
		MinutesUntilAlarm: minutesUntilAlarm,
		Timestamp:         a.now(),
	})
}

// publishCommand 发布一条会话范围的设备指令
func (a *Actuator) publishCommand(suffix string, cmd interface{}) {
	sessionID := a.sessionID()
	if sessionID == "" {
		return
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		a.logger.Error("Failed to marshal device command",
			zap.String("command", suffix),
			zap.Error(err),
		)
		return
	}

	topic := a.config.Comfort.FanTopicPrefix + sessionID + "/" + suffix
	if err := a.publisher.Publish(topic, a.config.MQTT.QoS, false, payload); err != nil {
		a.logger.Error("Failed to publish device command",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	a.logger.Debug("Device command published",
		zap.String("topic", topic),
	)
}

// SyncResolved 把 blackboard 上新出现的仲裁结果落库
//
// 以 ResolvedAction.Timestamp 为水位线去重，可安全地在每次
// blackboard 通知时调用
func (a *Actuator) SyncResolved(ctx context.Context) {
	sessionID := a.sessionID()
	if sessionID == "" {
		return
	}

	resolved := a.bb.ResolvedActions()

	a.mu.Lock()
	watermark := a.lastPersistedTS
	a.mu.Unlock()

	var maxTS int64 = watermark
	for _, ra := range resolved {
		if ra.Timestamp <= watermark {
			continue
		}
		if ra.Timestamp > maxTS {
			maxTS = ra.Timestamp
		}

		if err := a.persistResolved(ctx, sessionID, ra); err != nil {
			a.logger.Error("Failed to persist resolved action",
				zap.String("kind", string(ra.Action.Kind)),
				zap.Error(err),
			)
		}
	}

	a.mu.Lock()
	if maxTS > a.lastPersistedTS {
		a.lastPersistedTS = maxTS
	}
	a.mu.Unlock()
}

// persistResolved 单条仲裁结果落库
func (a *Actuator) persistResolved(ctx context.Context, sessionID string, ra models.ResolvedAction) error {
	createdAt := time.UnixMilli(ra.Timestamp)

	if ra.Action.Kind == models.ActionLogInsight {
		return a.insights.CreateInsight(ctx, &models.InsightRecord{
			InsightID: uuid.New().String(),
			SessionID: sessionID,
			Message:   ra.Action.Insight.Message,
			Category:  ra.Action.Insight.Category,
			AgentIDs:  ra.SourceAgents,
			CreatedAt: createdAt,
		})
	}

	payload, err := marshalActionPayload(ra.Action)
	if err != nil {
		return err
	}

	return a.actions.CreateAction(ctx, &models.ActionRecord{
		ActionID:   uuid.New().String(),
		SessionID:  sessionID,
		Kind:       string(ra.Action.Kind),
		Payload:    payload,
		Confidence: ra.Confidence,
		AgentIDs:   ra.SourceAgents,
		CreatedAt:  createdAt,
	})
}

// marshalActionPayload 动作载荷 → JSONB 字符串
func marshalActionPayload(action models.Action) (string, error) {
	var payload interface{}
	switch action.Kind {
	case models.ActionSetFanSpeed:
		payload = FanCommand{Speed: int(math.Round(action.FanSpeed.Speed))}
	case models.ActionSetSoundType:
		payload = SoundCommand{NoiseType: action.Sound.NoiseType, Volume: action.Sound.Volume}
	case models.ActionTriggerWakeSequence:
		payload = WakeCommand{MinutesUntilAlarm: action.Wake.MinutesUntilAlarm}
	default:
		return "", fmt.Errorf("unsupported action kind: %s", action.Kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal action payload: %w", err)
	}
	return string(data), nil
}
