package session

import (
	"fmt"
	"strings"

	"tapesim/internal/risk"
	"tapesim/internal/strategy"
)

const (
	DefaultSpeedFactor   = 1.0
	DefaultRiskPerTrade  = 0.02
	DefaultHistoryWindow = 20
)

// Config 会话的不可变配置；创建后不再修改。
type Config struct {
	Symbol           string          `json:"symbol"`
	StartTS          int64           `json:"start_ts"`
	EndTS            int64           `json:"end_ts"`
	Strategy         string          `json:"strategy"`
	InitialCapital   float64         `json:"initial_capital"`
	SpeedFactor      float64         `json:"speed_factor"`
	RiskPerTrade     float64         `json:"risk_per_trade"`
	MaxDrawdownLimit float64         `json:"max_drawdown_limit"`
	MaxExposureLimit float64         `json:"max_exposure_limit"`
	HistoryWindow    int             `json:"history_window"`
	Params           strategy.Params `json:"params"`
}

// normalize 校验必填项并填默认值；返回规整后的副本。
func (c Config) normalize() (Config, error) {
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	if c.Symbol == "" {
		return c, fmt.Errorf("symbol 不能为空")
	}
	if c.StartTS >= c.EndTS {
		return c, fmt.Errorf("start 必须早于 end")
	}
	if c.InitialCapital <= 0 {
		return c, fmt.Errorf("initial capital 必须大于 0")
	}
	if c.Strategy == "" {
		c.Strategy = "momentum"
	}
	if c.SpeedFactor <= 0 {
		c.SpeedFactor = DefaultSpeedFactor
	}
	if c.RiskPerTrade <= 0 {
		c.RiskPerTrade = DefaultRiskPerTrade
	}
	if c.MaxDrawdownLimit <= 0 {
		c.MaxDrawdownLimit = risk.DefaultMaxDrawdownLimit
	}
	if c.MaxExposureLimit <= 0 {
		c.MaxExposureLimit = risk.DefaultMaxExposureLimit
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	c.Params = c.Params.Normalize()
	return c, nil
}
