package portfolio

import "github.com/google/uuid"

const (
	TradeStatusFilled   = "FILLED"
	TradeStatusRejected = "REJECTED"

	RejectInsufficientCash   = "insufficient cash"
	RejectInsufficientShares = "insufficient shares"
)

// Trade 一次成交尝试的不可变记录；创建后不再修改。
type Trade struct {
	ID        string  `json:"id"`
	Timestamp int64   `json:"timestamp"`
	Symbol    string  `json:"symbol"`
	Action    string  `json:"action"` // BUY/SELL
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	Status    string  `json:"status"` // FILLED/REJECTED
	Reason    string  `json:"reason,omitempty"`
	PnL       float64 `json:"pnl,omitempty"` // 仅 SELL 成交时有意义
}

func newTrade(ts int64, symbol, action string, qty, price float64) Trade {
	return Trade{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Symbol:    symbol,
		Action:    action,
		Quantity:  qty,
		Price:     price,
	}
}

func (t Trade) Filled() bool {
	return t.Status == TradeStatusFilled
}
