package session

import (
	"time"

	"tapesim/internal/logger"
	"tapesim/internal/portfolio"
	"tapesim/internal/strategy"
)

// effectiveInterval 回放节奏 = max(minTick, base/speed)。
func effectiveInterval(base, minTick time.Duration, speed float64) time.Duration {
	if speed <= 0 {
		speed = DefaultSpeedFactor
	}
	interval := time.Duration(float64(base) / speed)
	if interval < minTick {
		interval = minTick
	}
	return interval
}

// runLoop 驱动单个会话直至完成。并发上限由信号量控制，
// 超出上限的会话在此排队，不占用 CPU。
func (m *Manager) runLoop(s *Session) {
	select {
	case m.sem <- struct{}{}:
	default:
		logger.Warnf("[session] %s 等待空闲回放槽位", s.ID)
		select {
		case m.sem <- struct{}{}:
		case <-m.ctx().Done():
			return
		}
	}
	defer func() { <-m.sem }()

	interval := effectiveInterval(m.baseInterval, m.minTickInterval, s.Config.SpeedFactor)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-m.ctx().Done():
			logger.Warnf("[session] %s 因宿主关停而中止", s.ID)
			return
		case <-timer.C:
		}
		if m.step(s) {
			return
		}
		timer.Reset(interval)
	}
}

// step 推进一个 tick；返回 true 表示会话已收尾。
// 整个管线在会话锁内完成，单个 tick 的处理是原子的；
// 暂停时不推进游标，原地等待下一次触发。
func (m *Manager) step(s *Session) bool {
	s.mu.Lock()
	if s.stop || s.cursor >= len(s.ticks) {
		return m.finalizeLocked(s)
	}
	if s.status != StatusRunning {
		s.mu.Unlock()
		return false
	}
	events := s.processTickLocked()
	s.mu.Unlock()
	m.publish(events...)
	return false
}

// processTickLocked 执行单 tick 管线：
// 行情更新 -> 决策 -> 成交 -> 风控 -> 指标。调用方必须持有写锁。
func (s *Session) processTickLocked() []Event {
	tick := s.ticks[s.cursor]
	symbol := s.Config.Symbol
	s.pf.MarkToMarket(symbol, tick.Price)

	histStart := s.cursor - s.Config.HistoryWindow
	if histStart < 0 {
		histStart = 0
	}
	mctx := strategy.MarketContext{
		Symbol:  symbol,
		Tick:    tick,
		History: s.ticks[histStart:s.cursor],
	}
	pctx := strategy.PortfolioContext{
		Cash:       s.pf.Cash,
		Position:   s.pf.Position(symbol),
		TotalValue: s.pf.TotalValue,
		Exposure:   s.pf.Exposure(symbol),
	}
	decision := s.engine.Decide(mctx, pctx)
	s.decisions = append(s.decisions, DecisionRecord{Timestamp: tick.Timestamp, Decision: decision})

	var events []Event
	switch decision.Action {
	case strategy.ActionBuy:
		trade := s.pf.ExecuteBuy(tick.Timestamp, symbol, decision.Quantity, tick.Price)
		events = append(events, s.recordTradeLocked(trade))
	case strategy.ActionSell:
		trade := s.pf.ExecuteSell(tick.Timestamp, symbol, decision.Quantity, tick.Price)
		events = append(events, s.recordTradeLocked(trade))
	}

	for _, re := range s.monitor.Check(tick.Timestamp, s.Config.InitialCapital, s.pf, symbol) {
		s.riskEvents = append(s.riskEvents, re)
		logger.Warnf("[risk] %s 触发 %s：observed=%.4f limit=%.4f", s.ID, re.Kind, re.Observed, re.Limit)
	}

	s.tracker.ObserveEquity(s.pf.TotalValue)
	metrics := s.tracker.Metrics()
	pfSnap := s.pf.Snapshot()
	events = append(events, Event{
		Type:      EventTickProcessed,
		SessionID: s.ID,
		Timestamp: tick.Timestamp,
		Tick:      &tick,
		Portfolio: &pfSnap,
		Decision:  &decision,
		Metrics:   &metrics,
	})

	s.currentTS = tick.Timestamp
	s.cursor++
	return events
}

func (s *Session) recordTradeLocked(trade portfolio.Trade) Event {
	s.trades = append(s.trades, trade)
	s.tracker.ObserveTrade(trade)
	if trade.Filled() {
		logger.Infof("[trade] %s %s %s %.0f@%.2f pnl=%.2f", s.ID, trade.Action, trade.Symbol, trade.Quantity, trade.Price, trade.PnL)
	} else {
		logger.Warnf("[trade] %s %s %s 被拒绝：%s", s.ID, trade.Action, trade.Symbol, trade.Reason)
	}
	return Event{
		Type:      EventTradeExecuted,
		SessionID: s.ID,
		Timestamp: trade.Timestamp,
		Trade:     &trade,
	}
}

// finalizeLocked 收尾：定稿指标、迁入历史注册表、归档、关闭 done。
// 进入时持有会话写锁，内部负责解锁；返回 true。
func (m *Manager) finalizeLocked(s *Session) bool {
	final := s.tracker.Finalize()
	s.status = StatusCompleted
	s.completedAt = time.Now().UnixMilli()
	completedAt := s.completedAt
	summary := s.summaryLocked()
	view := s.snapshotLocked()
	s.mu.Unlock()

	m.mu.Lock()
	delete(m.active, s.ID)
	m.history[s.ID] = s
	m.mu.Unlock()

	m.publish(Event{
		Type:      EventSessionCompleted,
		SessionID: s.ID,
		Timestamp: completedAt,
		Metrics:   &final,
		Summary:   &summary,
	})
	if m.archiver != nil {
		if err := m.archiver.ArchiveSession(m.ctx(), view); err != nil {
			logger.Errorf("[session] %s 归档失败: %v", s.ID, err)
		}
	}
	logger.Infof("[session] %s 完成：总值=%.2f 收益=%.2f%% 交易数=%d",
		s.ID, summary.TotalValue, summary.TotalReturnPct, summary.TotalTrades)
	close(s.done)
	return true
}
