package market

// Tick 一条带时间戳的价格观测（毫秒时间戳，OHLC 为该观测所属柱的聚合值）。
type Tick struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}

// Closes 提取收盘价序列，供指标计算使用。
func Closes(ticks []Tick) []float64 {
	out := make([]float64, len(ticks))
	for i, t := range ticks {
		out[i] = t.Close
	}
	return out
}
