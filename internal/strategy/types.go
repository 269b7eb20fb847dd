package strategy

import (
	"tapesim/internal/market"
	"tapesim/internal/portfolio"
)

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// MarketContext 决策所见的市场切面：当前 tick + 最近 N 条已处理 tick。
type MarketContext struct {
	Symbol  string
	Tick    market.Tick
	History []market.Tick
}

// Prices 返回历史收盘价 + 当前价，时间升序。
func (m MarketContext) Prices() []float64 {
	return append(market.Closes(m.History), m.Tick.Price)
}

// PortfolioContext 决策所见的账户切面。
type PortfolioContext struct {
	Cash       float64
	Position   *portfolio.Position // 当前标的持仓，可能为 nil
	TotalValue float64
	Exposure   float64
}

// HeldQuantity 当前持仓数量（无持仓为 0）。
func (p PortfolioContext) HeldQuantity() float64 {
	if p.Position == nil {
		return 0
	}
	return p.Position.Quantity
}

// Decision 单个 tick 的决策输出，不跨 tick 持久。
type Decision struct {
	Action     string  `json:"action"`
	Quantity   float64 `json:"quantity"`
	Confidence float64 `json:"confidence"` // 0~1
	Rationale  string  `json:"rationale"`
	Strategy   string  `json:"strategy"`
}

func hold(strategyID, rationale string) Decision {
	return Decision{Action: ActionHold, Rationale: rationale, Strategy: strategyID}
}

// Strategy 对给定窗口的纯函数决策；内建实现不得携带隐藏状态。
type Strategy interface {
	Name() string
	Decide(m MarketContext, p PortfolioContext) Decision
}
