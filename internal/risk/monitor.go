package risk

import (
	"tapesim/internal/portfolio"
)

const (
	KindMaxDrawdownExceeded = "MAX_DRAWDOWN_EXCEEDED"
	KindHighRiskUtilization = "HIGH_RISK_UTILIZATION"

	DefaultMaxDrawdownLimit = 0.20
	DefaultMaxExposureLimit = 0.95
)

// Event 一次限额突破的不可变记录；仅供观察，不影响后续决策。
type Event struct {
	Timestamp int64   `json:"timestamp"`
	Kind      string  `json:"kind"`
	Observed  float64 `json:"observed"`
	Limit     float64 `json:"limit"`
}

// Monitor 每个 tick 在成交后检查账本状态。
type Monitor struct {
	MaxDrawdownLimit float64
	MaxExposureLimit float64
}

func NewMonitor(maxDrawdown, maxExposure float64) *Monitor {
	if maxDrawdown <= 0 {
		maxDrawdown = DefaultMaxDrawdownLimit
	}
	if maxExposure <= 0 {
		maxExposure = DefaultMaxExposureLimit
	}
	return &Monitor{MaxDrawdownLimit: maxDrawdown, MaxExposureLimit: maxExposure}
}

// Check 返回本 tick 触发的风险事件（可能为空）。
// 这里的回撤以初始本金为基准，与绩效统计的峰值回撤口径不同。
func (m *Monitor) Check(ts int64, initialCapital float64, pf *portfolio.Portfolio, symbol string) []Event {
	if pf == nil || initialCapital <= 0 {
		return nil
	}
	var events []Event
	drawdown := (initialCapital - pf.TotalValue) / initialCapital
	if drawdown > m.MaxDrawdownLimit {
		events = append(events, Event{
			Timestamp: ts,
			Kind:      KindMaxDrawdownExceeded,
			Observed:  drawdown,
			Limit:     m.MaxDrawdownLimit,
		})
	}
	exposure := pf.Exposure(symbol)
	if exposure > m.MaxExposureLimit {
		events = append(events, Event{
			Timestamp: ts,
			Kind:      KindHighRiskUtilization,
			Observed:  exposure,
			Limit:     m.MaxExposureLimit,
		})
	}
	return events
}
