package models

// SleepStage 睡眠阶段（外部 epoch 估计器提供，本服务不推导）
type SleepStage string

const (
	StageAwake SleepStage = "awake"
	StageLight SleepStage = "light"
	StageDeep  SleepStage = "deep"
	StageREM   SleepStage = "rem"
)

// TimeOfNight 粗粒度夜间时段
type TimeOfNight string

const (
	TimeOfNightEarly  TimeOfNight = "early"  // 会话时长 < 2h
	TimeOfNightMiddle TimeOfNight = "middle" // 2h - 5h
	TimeOfNightLate   TimeOfNight = "late"   // >= 5h
)

// WeatherSnapshot 天气快照（由外部服务写入，本服务不抓取）
type WeatherSnapshot struct {
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	Condition    string  `json:"condition"` // clear, cloudy, rain 等
}

// PreSleepContext 睡前问卷
type PreSleepContext struct {
	FeelingHot    bool `json:"feeling_hot"`    // 自述偏热
	Stressed      bool `json:"stressed"`       // 自述压力大
	CaffeineLate  bool `json:"caffeine_late"`  // 晚间摄入咖啡因
	ExercisedLate bool `json:"exercised_late"` // 晚间运动
}

// SleepContext blackboard 共享上下文
//
// 不变式：所有字段始终有定义（Reset 恢复默认值）；任意调用方可随时
// patch 任意字段子集，last write wins。
type SleepContext struct {
	CurrentPosture    Posture          `json:"current_posture"`
	PostureConfidence float64          `json:"posture_confidence"`
	CurrentSleepStage SleepStage       `json:"current_sleep_stage"`
	SessionDurationMS int64            `json:"session_duration_ms"`
	Weather           *WeatherSnapshot `json:"weather"`            // 可为 null
	PreSleep          *PreSleepContext `json:"pre_sleep_context"`  // 可为 null
	TimeOfNight       TimeOfNight      `json:"time_of_night"`
	SleepDebtHours    float64          `json:"sleep_debt_hours"`
	AlarmTime         *int64           `json:"alarm_time,omitempty"` // 计划唤醒时间 Unix ms，可为 null
}

// DefaultContext 文档化的上下文默认值
func DefaultContext() SleepContext {
	return SleepContext{
		CurrentPosture:    PostureUnknown,
		PostureConfidence: 0,
		CurrentSleepStage: StageAwake,
		SessionDurationMS: 0,
		Weather:           nil,
		PreSleep:          nil,
		TimeOfNight:       TimeOfNightEarly,
		SleepDebtHours:    0,
		AlarmTime:         nil,
	}
}

// ContextPatch 上下文部分更新（浅合并，nil 字段不变）
type ContextPatch struct {
	CurrentPosture    *Posture         `json:"current_posture,omitempty"`
	PostureConfidence *float64         `json:"posture_confidence,omitempty"`
	CurrentSleepStage *SleepStage      `json:"current_sleep_stage,omitempty"`
	SessionDurationMS *int64           `json:"session_duration_ms,omitempty"`
	Weather           *WeatherSnapshot `json:"weather,omitempty"`
	PreSleep          *PreSleepContext `json:"pre_sleep_context,omitempty"`
	TimeOfNight       *TimeOfNight     `json:"time_of_night,omitempty"`
	SleepDebtHours    *float64         `json:"sleep_debt_hours,omitempty"`
	AlarmTime         *int64           `json:"alarm_time,omitempty"`
}
