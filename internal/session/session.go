package session

import (
	"sync"

	"tapesim/internal/analytics"
	"tapesim/internal/market"
	"tapesim/internal/portfolio"
	"tapesim/internal/risk"
	"tapesim/internal/strategy"
)

// DecisionRecord 决策日志条目。
type DecisionRecord struct {
	Timestamp int64 `json:"timestamp"`
	strategy.Decision
}

// Session 一次隔离的回测运行。
// 约束：ticks/portfolio/cursor 等回放状态只由回放循环写；
// 控制操作仅翻转 status/stop 标志，在下一个 tick 边界生效。
type Session struct {
	ID        string
	Config    Config
	CreatedAt int64

	mu          sync.RWMutex
	status      Status
	stop        bool
	cursor      int
	currentTS   int64
	completedAt int64
	ticks       []market.Tick
	engine      *strategy.Engine
	pf          *portfolio.Portfolio
	monitor     *risk.Monitor
	tracker     *analytics.Tracker
	trades      []portfolio.Trade
	riskEvents  []risk.Event
	decisions   []DecisionRecord

	done chan struct{}
}

// Done 在会话进入 COMPLETED 后关闭。
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Status 返回当前状态。
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// View 会话的只读全量快照。
type View struct {
	ID          string              `json:"id"`
	Config      Config              `json:"config"`
	Status      Status              `json:"status"`
	CreatedAt   int64               `json:"created_at"`
	CompletedAt int64               `json:"completed_at,omitempty"`
	Cursor      int                 `json:"cursor"`
	TotalTicks  int                 `json:"total_ticks"`
	CurrentTS   int64               `json:"current_ts"`
	Portfolio   portfolio.Snapshot  `json:"portfolio"`
	Trades      []portfolio.Trade   `json:"trades"`
	RiskEvents  []risk.Event        `json:"risk_events"`
	Decisions   []DecisionRecord    `json:"decisions"`
	Metrics     analytics.Snapshot  `json:"metrics"`
}

// Summary 摘要投影，供列表/通知使用。
type Summary struct {
	ID             string  `json:"id"`
	Symbol         string  `json:"symbol"`
	Strategy       string  `json:"strategy"`
	Status         Status  `json:"status"`
	InitialCapital float64 `json:"initial_capital"`
	TotalValue     float64 `json:"total_value"`
	TotalReturnPct float64 `json:"total_return_pct"`
	TotalTrades    int     `json:"total_trades"`
	WinRate        float64 `json:"win_rate"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	RiskEvents     int     `json:"risk_events"`
}

// Snapshot 加读锁导出 View。
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() View {
	return View{
		ID:          s.ID,
		Config:      s.Config,
		Status:      s.status,
		CreatedAt:   s.CreatedAt,
		CompletedAt: s.completedAt,
		Cursor:      s.cursor,
		TotalTicks:  len(s.ticks),
		CurrentTS:   s.currentTS,
		Portfolio:   s.pf.Snapshot(),
		Trades:      append([]portfolio.Trade(nil), s.trades...),
		RiskEvents:  append([]risk.Event(nil), s.riskEvents...),
		Decisions:   append([]DecisionRecord(nil), s.decisions...),
		Metrics:     s.tracker.Metrics(),
	}
}

// Summarize 计算摘要；总收益 = (总值-本金)/本金*100。
func (s *Session) Summarize() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaryLocked()
}

func (s *Session) summaryLocked() Summary {
	metrics := s.tracker.Metrics()
	totalReturn := 0.0
	if s.Config.InitialCapital > 0 {
		totalReturn = (s.pf.TotalValue - s.Config.InitialCapital) / s.Config.InitialCapital * 100
	}
	return Summary{
		ID:             s.ID,
		Symbol:         s.Config.Symbol,
		Strategy:       s.Config.Strategy,
		Status:         s.status,
		InitialCapital: s.Config.InitialCapital,
		TotalValue:     s.pf.TotalValue,
		TotalReturnPct: totalReturn,
		TotalTrades:    metrics.TotalTrades,
		WinRate:        metrics.WinRate,
		MaxDrawdown:    metrics.MaxDrawdown,
		SharpeRatio:    metrics.SharpeRatio,
		RiskEvents:     len(s.riskEvents),
	}
}
