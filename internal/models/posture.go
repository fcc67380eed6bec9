package models

// Posture 姿态标签 / debounced body posture label
type Posture string

const (
	PostureSupine       Posture = "supine"
	PostureProne        Posture = "prone"
	PostureLeftLateral  Posture = "left_lateral"
	PostureRightLateral Posture = "right_lateral"
	PostureFetal        Posture = "fetal"
	PostureUnknown      Posture = "unknown"
)

// RawAngles 姿态角（度）。Yaw 无磁航向参考，仅用于显示。
type RawAngles struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// PostureResult 一次 classify 调用的输出
type PostureResult struct {
	Posture    Posture   `json:"posture"`    // 去抖后的姿态（滞后于原始分类最多 10 秒）
	Confidence float64   `json:"confidence"` // 原始分类置信度 [0,1]
	RawAngles  RawAngles `json:"raw_angles"`
}
