package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"
)

// MeanReversion 均值回归：价格跌破均值-2σ买入，突破均值+2σ清仓。
type MeanReversion struct {
	params Params
}

func NewMeanReversion(params Params) *MeanReversion {
	return &MeanReversion{params: params.Normalize()}
}

func (s *MeanReversion) Name() string { return "mean_reversion" }

func (s *MeanReversion) Decide(m MarketContext, p PortfolioContext) Decision {
	prices := m.Prices()
	if len(prices) < s.params.Window {
		return hold(s.Name(), "insufficient data")
	}
	price := m.Tick.Price
	mean := lastOf(talib.Sma(prices, s.params.Window))
	std := lastOf(talib.StdDev(prices, s.params.Window, 1.0))
	lower := mean - s.params.BandStd*std
	upper := mean + s.params.BandStd*std

	switch {
	case price < lower:
		return Decision{
			Action:     ActionBuy,
			Confidence: clamp01(0.5 + (lower-price)/mean*10),
			Rationale:  fmt.Sprintf("price %.4f below lower band %.4f (mean %.4f, std %.4f)", price, lower, mean, std),
			Strategy:   s.Name(),
		}
	case price > upper:
		if p.HeldQuantity() <= 0 {
			return hold(s.Name(), "sell signal without position")
		}
		return Decision{
			Action:     ActionSell,
			Quantity:   p.HeldQuantity(),
			Confidence: clamp01(0.5 + (price-upper)/mean*10),
			Rationale:  fmt.Sprintf("price %.4f above upper band %.4f (mean %.4f, std %.4f)", price, upper, mean, std),
			Strategy:   s.Name(),
		}
	default:
		return hold(s.Name(), "price inside bands")
	}
}
