package session

import (
	"sync"

	"tapesim/internal/analytics"
	"tapesim/internal/market"
	"tapesim/internal/portfolio"
	"tapesim/internal/risk"
	"tapesim/internal/strategy"
)

const (
	EventSessionStarted   = "sessionStarted"
	EventTickProcessed    = "tickProcessed"
	EventTradeExecuted    = "tradeExecuted"
	EventSessionPaused    = "sessionPaused"
	EventSessionResumed   = "sessionResumed"
	EventSessionCompleted = "sessionCompleted"
)

// Event 会话生命周期/回放过程中对外发布的事件。
// 字段按事件类型选择性填充。
type Event struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id"`
	Timestamp int64                `json:"timestamp"`
	Tick      *market.Tick         `json:"tick,omitempty"`
	Portfolio *portfolio.Snapshot  `json:"portfolio,omitempty"`
	Decision  *strategy.Decision   `json:"decision,omitempty"`
	Trade     *portfolio.Trade     `json:"trade,omitempty"`
	RiskEvent *risk.Event          `json:"risk_event,omitempty"`
	Metrics   *analytics.Snapshot  `json:"metrics,omitempty"`
	Summary   *Summary             `json:"summary,omitempty"`
}

// Sink 事件出口。实现方不得阻塞回放循环。
type Sink interface {
	Publish(Event)
}

// Fanout 显式的订阅式分发器，替代全局广播单例。
type Fanout struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func NewFanout() *Fanout {
	return &Fanout{}
}

// Subscribe 注册监听回调；回调在发布 goroutine 内同步执行。
func (f *Fanout) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
}

func (f *Fanout) Publish(evt Event) {
	f.mu.RLock()
	subs := f.subs
	f.mu.RUnlock()
	for _, fn := range subs {
		fn(evt)
	}
}
