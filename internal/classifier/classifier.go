// Package classifier 将原始加速度采样流转换为去抖后的睡姿判定
//
// 处理流程：
// 1. 滚动窗口（最近 50 条采样，FIFO 淘汰）
// 2. 窗口均值向量 → 归一化 → pitch/roll/yaw
// 3. 原始 x/y 总体标准差 → 体动方差信号
// 4. 固定顺序规则分类（首个命中生效）
// 5. 滞回状态机去抖（新姿态需持续 >= 10 秒才被提交）
package classifier

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"wisefido-comfort/internal/models"
)

const (
	// WindowSize 滚动窗口容量
	WindowSize = 50
	// MinSamples 最少采样数，不足时返回 unknown
	MinSamples = 5
	// DwellMS 新姿态提交前的最短持续时间（按采样时间戳计）
	DwellMS = 10000
)

// hysteresisState 滞回状态机状态
//
// 不变式：raw 分类与 current 一致时 pending 被清除；pending 仅在同一
// raw 姿态持续 >= DwellMS 后提升为 current。
type hysteresisState struct {
	current        models.Posture
	lastChangeTime int64
	pending        models.Posture // "" 表示无待定转换
	pendingStart   int64
}

// Classifier 姿态分类器
//
// 单持有者结构：窗口与滞回状态仅由本实例修改。跨 goroutine 调用
// （MQTT 回调 + 测试）由内部互斥锁保护，采样按到达顺序处理。
type Classifier struct {
	mu     sync.Mutex
	window []models.AccelerometerSample
	state  hysteresisState
	logger *zap.Logger
}

// NewClassifier 创建分类器
func NewClassifier(logger *zap.Logger) *Classifier {
	return &Classifier{
		window: make([]models.AccelerometerSample, 0, WindowSize),
		state:  hysteresisState{current: models.PostureUnknown},
		logger: logger,
	}
}

// Classify 处理一条采样并返回去抖后的姿态结果
//
// 失败语义：任何输入都降级为 unknown/低置信度，不返回错误。
// NaN/Inf 采样被丢弃，不进入窗口。
func (c *Classifier) Classify(sample models.AccelerometerSample) models.PostureResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !validSample(sample) {
		c.logger.Debug("Invalid accelerometer sample dropped",
			zap.Int64("timestamp", sample.Timestamp),
		)
		return models.PostureResult{Posture: models.PostureUnknown, Confidence: 0}
	}

	// 1. 滑动窗口追加（超出容量淘汰最旧采样）
	c.window = append(c.window, sample)
	if len(c.window) > WindowSize {
		c.window = c.window[1:]
	}

	// 冷启动：历史不足时不信任任何信号
	if len(c.window) < MinSamples {
		return models.PostureResult{Posture: models.PostureUnknown, Confidence: 0}
	}

	// 2. 窗口均值向量（时间平滑）
	var sumX, sumY, sumZ float64
	for _, s := range c.window {
		sumX += s.X
		sumY += s.Y
		sumZ += s.Z
	}
	n := float64(len(c.window))
	avgX, avgY, avgZ := sumX/n, sumY/n, sumZ/n

	magnitude := math.Sqrt(avgX*avgX + avgY*avgY + avgZ*avgZ)
	if magnitude < 1e-9 {
		// 均值向量退化，无法归一化
		return models.PostureResult{Posture: c.state.current, Confidence: 0}
	}
	nx, ny, nz := avgX/magnitude, avgY/magnitude, avgZ/magnitude

	angles := models.RawAngles{
		Pitch: toDegrees(math.Atan2(ny, math.Sqrt(nx*nx+nz*nz))),
		Roll:  toDegrees(math.Atan2(-nx, nz)),
		// yaw 无磁航向参考，仅供显示，不参与分类
		Yaw: toDegrees(math.Atan2(ny, nx)),
	}

	// 3. 体动方差信号：原始 x/y 总体标准差的均值
	variance := (populationStdDev(c.window, func(s models.AccelerometerSample) float64 { return s.X }) +
		populationStdDev(c.window, func(s models.AccelerometerSample) float64 { return s.Y })) / 2

	// 4. 原始分类（固定顺序，首个命中生效）
	raw, confidence := classifyRaw(nz, angles.Pitch, angles.Roll, variance)

	// 5. 滞回去抖
	stable := c.stepHysteresis(raw, sample.Timestamp)

	return models.PostureResult{
		Posture:    stable,
		Confidence: confidence,
		RawAngles:  angles,
	}
}

// Reset 清空窗口和滞回状态（会话重启）
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = c.window[:0]
	c.state = hysteresisState{current: models.PostureUnknown}
}

// CurrentPosture 当前已提交的姿态
func (c *Classifier) CurrentPosture() models.Posture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.current
}

// classifyRaw 瞬时姿态分类规则
//
// 判定顺序（首个命中生效）：
// - nz < -0.3 → prone
// - |roll| > 20° 且 variance > 0.15 → fetal（侧卷 + 高体动）
// - roll > 20° → left_lateral
// - roll < -20° → right_lateral
// - |roll| <= 20° 且 |pitch| <= 20° → supine
// - 其余（倾斜但不明确）→ unknown，保底置信度 0.3
func classifyRaw(nz, pitch, roll, variance float64) (models.Posture, float64) {
	absRoll := math.Abs(roll)

	switch {
	case nz < -0.3:
		return models.PostureProne, math.Min(1, math.Abs(nz)*1.2)
	case absRoll > 20 && variance > 0.15:
		return models.PostureFetal, math.Min(1, 0.5+variance*2)
	case roll > 20:
		return models.PostureLeftLateral, math.Min(1, (absRoll-20)/40+0.5)
	case roll < -20:
		return models.PostureRightLateral, math.Min(1, (absRoll-20)/40+0.5)
	case absRoll <= 20 && math.Abs(pitch) <= 20:
		return models.PostureSupine, math.Min(1, 0.6+0.4*(1-(absRoll+math.Abs(pitch))/40))
	default:
		return models.PostureUnknown, 0.3
	}
}

// stepHysteresis 滞回状态机单步
//
// - 首条采样（current 尚为 unknown）：直接接受 raw，无需去抖
// - raw == current：清除待定转换，维持现状
// - raw 与待定姿态不同：重启待定计时
// - 同一 raw 持续 >= DwellMS：提升为 current
// - 其余情况：维持旧姿态（显示值最多滞后传感器 10 秒）
func (c *Classifier) stepHysteresis(raw models.Posture, ts int64) models.Posture {
	s := &c.state

	if s.current == models.PostureUnknown {
		s.current = raw
		s.lastChangeTime = ts
		s.pending = ""
		return s.current
	}

	if raw == s.current {
		s.pending = ""
		return s.current
	}

	if s.pending != raw {
		s.pending = raw
		s.pendingStart = ts
		return s.current
	}

	if ts-s.pendingStart >= DwellMS {
		c.logger.Debug("Posture transition committed",
			zap.String("from", string(s.current)),
			zap.String("to", string(raw)),
			zap.Int64("dwell_ms", ts-s.pendingStart),
		)
		s.current = raw
		s.lastChangeTime = ts
		s.pending = ""
	}
	return s.current
}

func validSample(s models.AccelerometerSample) bool {
	for _, v := range []float64{s.X, s.Y, s.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return s.Timestamp > 0
}

func populationStdDev(window []models.AccelerometerSample, value func(models.AccelerometerSample) float64) float64 {
	n := float64(len(window))
	var sum float64
	for _, s := range window {
		sum += value(s)
	}
	mean := sum / n

	var sqDiff float64
	for _, s := range window {
		d := value(s) - mean
		sqDiff += d * d
	}
	return math.Sqrt(sqDiff / n)
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
