package strategy

import (
	"math"
)

// DefaultHardCap 单笔买入数量上限（股）。
const DefaultHardCap = 1000

// SizeBuy 计算买入股数：floor(min(可用现金, 风险预算, 硬上限))。
func SizeBuy(cash, price, riskPerTrade, totalValue, hardCap float64) float64 {
	if price <= 0 {
		return 0
	}
	if hardCap <= 0 {
		hardCap = DefaultHardCap
	}
	byCash := cash / price
	byRisk := riskPerTrade * totalValue / price
	qty := math.Floor(math.Min(byCash, math.Min(byRisk, hardCap)))
	if qty < 0 {
		return 0
	}
	return qty
}

// Engine 组合策略输出与仓位规模：BUY 定量、SELL 兜底全仓、0 量退化为 HOLD。
type Engine struct {
	strategy     Strategy
	riskPerTrade float64
	hardCap      float64
}

func NewEngine(s Strategy, riskPerTrade float64) *Engine {
	return &Engine{strategy: s, riskPerTrade: riskPerTrade, hardCap: DefaultHardCap}
}

func (e *Engine) Strategy() string { return e.strategy.Name() }

// Decide 产生最终可执行决策。
func (e *Engine) Decide(m MarketContext, p PortfolioContext) Decision {
	d := e.strategy.Decide(m, p)
	switch d.Action {
	case ActionBuy:
		qty := SizeBuy(p.Cash, m.Tick.Price, e.riskPerTrade, p.TotalValue, e.hardCap)
		if qty <= 0 {
			return hold(d.Strategy, "sized quantity is zero")
		}
		d.Quantity = qty
	case ActionSell:
		if d.Quantity <= 0 {
			d.Quantity = p.HeldQuantity()
		}
		if d.Quantity <= 0 {
			return hold(d.Strategy, "no position to sell")
		}
	}
	return d
}
