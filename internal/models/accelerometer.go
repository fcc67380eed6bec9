package models

import "encoding/json"

// AccelerometerSample 单条三轴加速度采样 / one calibrated 3-axis accelerometer sample
type AccelerometerSample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Timestamp int64   `json:"timestamp"` // Unix ms
}

// SampleMessage MQTT 采样消息（wearable gateway → wisefido/comfort/<session>/accel）
type SampleMessage struct {
	SessionID string                `json:"sessionId"` // sleep session ID
	DeviceID  string                `json:"deviceId"`  // device code of the wearable
	Samples   []AccelerometerSample `json:"samples"`   // batch, oldest first
}

// SessionUpdateMessage 会话上下文更新消息（Redis Stream: comfort:session:updates）
//
// dataKey 取值：
// - contextPatch: Data 为 ContextPatch
// - sessionReset: 重置 blackboard（no payload）
type SessionUpdateMessage struct {
	SessionID string          `json:"sessionId"`
	DataKey   string          `json:"dataKey"`
	TimeStamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

const (
	DataKeyContextPatch = "contextPatch"
	DataKeySessionReset = "sessionReset"
)
