package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"
)

// Momentum 双均线动量：短均线上穿长均线带宽时做多，下穿时清仓。
type Momentum struct {
	params Params
}

func NewMomentum(params Params) *Momentum {
	return &Momentum{params: params.Normalize()}
}

func (s *Momentum) Name() string { return "momentum" }

func (s *Momentum) Decide(m MarketContext, p PortfolioContext) Decision {
	prices := m.Prices()
	if len(prices) < s.params.LongWindow {
		return hold(s.Name(), "insufficient data")
	}
	price := m.Tick.Price
	shortMA := lastOf(talib.Sma(prices, s.params.ShortWindow))
	longMA := lastOf(talib.Sma(prices, s.params.LongWindow))

	switch {
	case price > shortMA && shortMA > longMA*s.params.UpperBand:
		return Decision{
			Action:     ActionBuy,
			Confidence: clamp01(0.5 + (shortMA-longMA)/longMA*10),
			Rationale:  fmt.Sprintf("price %.4f above shortMA %.4f, shortMA above longMA %.4f band", price, shortMA, longMA),
			Strategy:   s.Name(),
		}
	case price < shortMA && shortMA < longMA*s.params.LowerBand:
		if p.HeldQuantity() <= 0 {
			return hold(s.Name(), "sell signal without position")
		}
		return Decision{
			Action:     ActionSell,
			Quantity:   p.HeldQuantity(),
			Confidence: clamp01(0.5 + (longMA-shortMA)/longMA*10),
			Rationale:  fmt.Sprintf("price %.4f below shortMA %.4f, shortMA below longMA %.4f band", price, shortMA, longMA),
			Strategy:   s.Name(),
		}
	default:
		return hold(s.Name(), "no crossover signal")
	}
}

func lastOf(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
