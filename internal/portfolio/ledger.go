package portfolio

// ExecuteBuy 执行买入：现金不足则拒单，账本保持不变。
// 成本按 quantity*price 计，持仓采用加权平均成本。
func (p *Portfolio) ExecuteBuy(ts int64, symbol string, quantity, price float64) Trade {
	trade := newTrade(ts, symbol, "BUY", quantity, price)
	cost := mul(quantity, price)
	if !gte(p.Cash, cost) {
		trade.Status = TradeStatusRejected
		trade.Reason = RejectInsufficientCash
		return trade
	}

	p.Cash = toFloat(dec(p.Cash).Sub(dec(cost)))
	pos := p.Positions[symbol]
	if pos == nil {
		pos = &Position{Symbol: symbol, CurrentPrice: price}
		p.Positions[symbol] = pos
	}
	newQty := pos.Quantity + quantity
	newCost := toFloat(dec(pos.TotalCost).Add(dec(cost)))
	pos.Quantity = newQty
	pos.TotalCost = newCost
	pos.AveragePrice = toFloat(dec(newCost).Div(dec(newQty)))
	pos.CurrentPrice = price
	p.recompute()

	trade.Status = TradeStatusFilled
	return trade
}

// ExecuteSell 执行卖出：数量超过持仓（或无持仓）则拒单。
// 成本基准按平均成本等比例扣减；数量归零时移除持仓记录。
func (p *Portfolio) ExecuteSell(ts int64, symbol string, quantity, price float64) Trade {
	trade := newTrade(ts, symbol, "SELL", quantity, price)
	pos := p.Positions[symbol]
	if pos == nil || gt(quantity, pos.Quantity) {
		trade.Status = TradeStatusRejected
		trade.Reason = RejectInsufficientShares
		return trade
	}

	saleValue := mul(quantity, price)
	costBasis := toFloat(dec(pos.TotalCost).Div(dec(pos.Quantity)).Mul(dec(quantity)))
	pnl := toFloat(dec(saleValue).Sub(dec(costBasis)))

	p.Cash = toFloat(dec(p.Cash).Add(dec(saleValue)))
	pos.Quantity = toFloat(dec(pos.Quantity).Sub(dec(quantity)))
	pos.TotalCost = toFloat(dec(pos.TotalCost).Sub(dec(costBasis)))
	pos.CurrentPrice = price
	if pos.Quantity <= 0 {
		delete(p.Positions, symbol)
	} else {
		pos.AveragePrice = toFloat(dec(pos.TotalCost).Div(dec(pos.Quantity)))
	}
	p.recompute()

	trade.Status = TradeStatusFilled
	trade.PnL = pnl
	return trade
}
