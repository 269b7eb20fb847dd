package portfolio

// Position 某一标的的持仓；数量为 0 时整条记录会被移除。
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
	TotalCost    float64 `json:"total_cost"`
	CurrentPrice float64 `json:"current_price"`
}

// Value 按最近标记价计算持仓市值。
func (p *Position) Value() float64 {
	if p == nil {
		return 0
	}
	return mul(p.Quantity, p.CurrentPrice)
}

// Portfolio 单个会话的资金账本：现金 + 持仓。
// 只允许回放循环单写；读侧通过 Snapshot 拿拷贝。
type Portfolio struct {
	Cash       float64              `json:"cash"`
	Positions  map[string]*Position `json:"positions"`
	TotalValue float64              `json:"total_value"`
}

func New(initialCash float64) *Portfolio {
	return &Portfolio{
		Cash:       initialCash,
		Positions:  make(map[string]*Position),
		TotalValue: initialCash,
	}
}

// Position 返回指定标的持仓，不存在时为 nil。
func (p *Portfolio) Position(symbol string) *Position {
	return p.Positions[symbol]
}

// MarkToMarket 用最新 tick 价刷新标记价并重算总值。
func (p *Portfolio) MarkToMarket(symbol string, price float64) {
	if pos, ok := p.Positions[symbol]; ok {
		pos.CurrentPrice = price
	}
	p.recompute()
}

// Exposure 持仓市值占总值比例；无持仓或总值为 0 时为 0。
func (p *Portfolio) Exposure(symbol string) float64 {
	pos := p.Positions[symbol]
	if pos == nil || p.TotalValue <= 0 {
		return 0
	}
	return pos.Value() / p.TotalValue
}

func (p *Portfolio) recompute() {
	total := dec(p.Cash)
	for _, pos := range p.Positions {
		total = total.Add(dec(pos.Quantity).Mul(dec(pos.CurrentPrice)))
	}
	p.TotalValue = toFloat(total)
}

// Snapshot 拷贝当前账本状态，供事件/接口层安全读取。
type Snapshot struct {
	Cash       float64             `json:"cash"`
	Positions  map[string]Position `json:"positions"`
	TotalValue float64             `json:"total_value"`
}

func (p *Portfolio) Snapshot() Snapshot {
	snap := Snapshot{
		Cash:       p.Cash,
		TotalValue: p.TotalValue,
		Positions:  make(map[string]Position, len(p.Positions)),
	}
	for sym, pos := range p.Positions {
		snap.Positions[sym] = *pos
	}
	return snap
}
