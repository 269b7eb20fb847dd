package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"
)

// Breakout 区间突破：价格突破近期高点+缓冲买入，跌破低点-缓冲清仓。
type Breakout struct {
	params Params
}

func NewBreakout(params Params) *Breakout {
	return &Breakout{params: params.Normalize()}
}

func (s *Breakout) Name() string { return "breakout" }

func (s *Breakout) Decide(m MarketContext, p PortfolioContext) Decision {
	prices := m.Prices()
	// 区间取不含当前价的最近 Window 条，当前价再与区间边界比较。
	if len(prices) <= s.params.Window {
		return hold(s.Name(), "insufficient data")
	}
	price := m.Tick.Price
	window := prices[:len(prices)-1]
	high := lastOf(talib.Max(window, s.params.Window))
	low := lastOf(talib.Min(window, s.params.Window))
	pad := (high - low) * s.params.BreakoutPad

	switch {
	case price > high+pad:
		return Decision{
			Action:     ActionBuy,
			Confidence: clamp01(0.5 + (price-high)/high*10),
			Rationale:  fmt.Sprintf("price %.4f broke above range high %.4f (+%.4f pad)", price, high, pad),
			Strategy:   s.Name(),
		}
	case price < low-pad:
		if p.HeldQuantity() <= 0 {
			return hold(s.Name(), "sell signal without position")
		}
		return Decision{
			Action:     ActionSell,
			Quantity:   p.HeldQuantity(),
			Confidence: clamp01(0.5 + (low-price)/low*10),
			Rationale:  fmt.Sprintf("price %.4f broke below range low %.4f (-%.4f pad)", price, low, pad),
			Strategy:   s.Name(),
		}
	default:
		return hold(s.Name(), "price inside range")
	}
}
