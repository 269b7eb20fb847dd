package analytics

import (
	"math"

	"tapesim/internal/portfolio"
)

// Snapshot 运行中逐 tick 更新的绩效指标；完赛后补齐胜率/盈亏比等收尾字段。
type Snapshot struct {
	TotalTrades   int       `json:"total_trades"`
	WinningTrades int       `json:"winning_trades"`
	CumulativePnL float64   `json:"cumulative_pnl"`
	AverageReturn float64   `json:"average_return"`
	StdDevReturn  float64   `json:"std_dev_return"`
	SharpeRatio   float64   `json:"sharpe_ratio"` // 未年化、无无风险利率的简化口径
	MaxDrawdown   float64   `json:"max_drawdown"`
	WinRate       float64   `json:"win_rate"` // 百分比，完赛后有效
	AverageWin    float64   `json:"average_win"`
	AverageLoss   float64   `json:"average_loss"`
	ProfitFactor  float64   `json:"profit_factor"`
	Finalized     bool      `json:"finalized"`
	EquityCurve   []float64 `json:"equity_curve"`
}

// Tracker 维护单个会话的资金曲线与增量统计。
type Tracker struct {
	equity   []float64
	peak     float64
	maxDD    float64
	sumRet   float64
	sumRetSq float64
	nRet     int

	totalTrades int
	wins        int
	cumPnL      float64
	sellPnLs    []float64

	finalized Snapshot
	done      bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// ObserveEquity 追加一个资金曲线点并更新收益/回撤统计。
func (t *Tracker) ObserveEquity(value float64) {
	if n := len(t.equity); n > 0 {
		prev := t.equity[n-1]
		if prev != 0 {
			r := (value - prev) / prev
			t.sumRet += r
			t.sumRetSq += r * r
			t.nRet++
		}
	}
	t.equity = append(t.equity, value)
	if value > t.peak {
		t.peak = value
	}
	if t.peak > 0 {
		if dd := (t.peak - value) / t.peak; dd > t.maxDD {
			t.maxDD = dd
		}
	}
}

// ObserveTrade 记录一次成交尝试；只有成交的 SELL 计入盈亏分布。
func (t *Tracker) ObserveTrade(trade portfolio.Trade) {
	t.totalTrades++
	if !trade.Filled() || trade.Action != "SELL" {
		return
	}
	t.cumPnL += trade.PnL
	t.sellPnLs = append(t.sellPnLs, trade.PnL)
	if trade.PnL > 0 {
		t.wins++
	}
}

// Metrics 返回当前运行指标快照。
func (t *Tracker) Metrics() Snapshot {
	if t.done {
		return t.finalized
	}
	snap := Snapshot{
		TotalTrades:   t.totalTrades,
		WinningTrades: t.wins,
		CumulativePnL: t.cumPnL,
		MaxDrawdown:   t.maxDD,
		EquityCurve:   append([]float64(nil), t.equity...),
	}
	if t.nRet > 0 {
		mean := t.sumRet / float64(t.nRet)
		variance := t.sumRetSq/float64(t.nRet) - mean*mean
		if variance < 0 {
			variance = 0
		}
		std := math.Sqrt(variance)
		snap.AverageReturn = mean
		snap.StdDevReturn = std
		if std > 0 {
			snap.SharpeRatio = mean / std
		}
	}
	return snap
}

// Finalize 会话完成时收尾：胜率、平均盈亏与盈亏比。幂等。
func (t *Tracker) Finalize() Snapshot {
	if t.done {
		return t.finalized
	}
	snap := t.Metrics()
	sells := len(t.sellPnLs)
	if sells > 0 {
		snap.WinRate = float64(t.wins) / float64(sells) * 100
		var winSum, lossSum float64
		var winN, lossN int
		for _, pnl := range t.sellPnLs {
			if pnl > 0 {
				winSum += pnl
				winN++
			} else if pnl < 0 {
				lossSum += -pnl
				lossN++
			}
		}
		if winN > 0 {
			snap.AverageWin = winSum / float64(winN)
		}
		if lossN > 0 {
			snap.AverageLoss = lossSum / float64(lossN)
			if snap.AverageLoss > 0 {
				snap.ProfitFactor = snap.AverageWin / snap.AverageLoss
			}
		}
	}
	snap.Finalized = true
	t.finalized = snap
	t.done = true
	return snap
}
