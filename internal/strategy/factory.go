package strategy

import (
	"fmt"
	"strings"

	"tapesim/internal/logger"
)

// AdvisorFunc 外部顾问回调：实现方可自带超时与重试，返回错误不会向上传播。
type AdvisorFunc func(m MarketContext, p PortfolioContext) (Decision, error)

// AdvisorStrategyID 外部顾问在策略集合中的标识。
const AdvisorStrategyID = "advisor"

// advisorStrategy 把外部顾问包装成 Strategy：任何失败（错误/越界/panic）都退化为 HOLD。
type advisorStrategy struct {
	fn AdvisorFunc
}

func NewAdvisor(fn AdvisorFunc) Strategy {
	return &advisorStrategy{fn: fn}
}

func (s *advisorStrategy) Name() string { return AdvisorStrategyID }

func (s *advisorStrategy) Decide(m MarketContext, p PortfolioContext) (out Decision) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("[strategy] advisor panic: %v", r)
			out = hold(AdvisorStrategyID, "decision source error")
		}
	}()
	if s.fn == nil {
		return hold(AdvisorStrategyID, "decision source error")
	}
	d, err := s.fn(m, p)
	if err != nil {
		logger.Debugf("[strategy] advisor error: %v", err)
		return hold(AdvisorStrategyID, "decision source error")
	}
	return sanitizeAdvisorDecision(d)
}

func sanitizeAdvisorDecision(d Decision) Decision {
	switch strings.ToUpper(strings.TrimSpace(d.Action)) {
	case ActionBuy:
		d.Action = ActionBuy
	case ActionSell:
		d.Action = ActionSell
	case ActionHold, "WAIT", "":
		d.Action = ActionHold
	default:
		return hold(AdvisorStrategyID, "decision source error")
	}
	if d.Quantity < 0 {
		return hold(AdvisorStrategyID, "decision source error")
	}
	d.Confidence = clamp01(d.Confidence)
	d.Strategy = AdvisorStrategyID
	return d
}

// New 按名称构建内建策略；advisor 需通过 NewAdvisor 注入回调。
func New(name string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "momentum":
		return NewMomentum(params), nil
	case "mean_reversion", "meanreversion":
		return NewMeanReversion(params), nil
	case "breakout":
		return NewBreakout(params), nil
	default:
		return nil, fmt.Errorf("未知策略: %s", name)
	}
}

// BuiltinNames 返回内建策略名（顺序固定）。
func BuiltinNames() []string {
	return []string{"momentum", "mean_reversion", "breakout"}
}
