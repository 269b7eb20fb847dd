package history

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"

	"tapesim/internal/market"
)

// DefaultTickIntervalMS 合成序列的采样间隔（1 分钟）。
const DefaultTickIntervalMS int64 = 60_000

// GenParams 合成行情的形状参数。
type GenParams struct {
	BasePrice  float64 `json:"base_price"`
	Amplitude  float64 `json:"amplitude"`
	PeriodMS   int64   `json:"period_ms"`
	Volatility float64 `json:"volatility"`
	BaseVolume float64 `json:"base_volume"`
	IntervalMS int64   `json:"interval_ms"`
}

// Generator 纯函数式的合成行情源：价格只由 symbol 和时间戳决定，
// 同一 (symbol, ts) 在任何区间请求下都得到同一根 tick。
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// ParamsFor 由 symbol 派生该品种的形状参数，保证跨进程稳定。
func (g *Generator) ParamsFor(symbol string) GenParams {
	seed := hashSymbol(symbol)
	return GenParams{
		BasePrice:  20 + float64(seed%9800)/10, // [20, 1000)
		Amplitude:  0.03 + float64((seed>>16)%50)/1000,
		PeriodMS:   int64(6+(seed>>24)%18) * 3_600_000, // 6~24 小时一个周期
		Volatility: 0.004 + float64((seed>>32)%60)/10000,
		BaseVolume: 1000 + float64((seed>>40)%9000),
		IntervalMS: DefaultTickIntervalMS,
	}
}

// Generate 生成 [start,end] 区间内按 interval 对齐的 tick 序列，时间升序。
func (g *Generator) Generate(symbol string, start, end int64) []market.Tick {
	params := g.ParamsFor(symbol)
	if start > end {
		return nil
	}
	interval := params.IntervalMS
	first := start
	if rem := first % interval; rem != 0 {
		first += interval - rem
	}
	var ticks []market.Tick
	for ts := first; ts <= end; ts += interval {
		close := g.priceAt(symbol, params, ts)
		open := g.priceAt(symbol, params, ts-interval)
		spread := math.Abs(unitNoise(symbol, ts, 1)) * params.Volatility * close
		high := math.Max(open, close) + spread
		low := math.Min(open, close) - spread
		volume := params.BaseVolume * (1 + math.Abs(unitNoise(symbol, ts, 2)))
		ticks = append(ticks, market.Tick{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Price:     close,
			Volume:    volume,
		})
	}
	return ticks
}

// priceAt = 基准价 * 周期波动 * 确定性噪声。
func (g *Generator) priceAt(symbol string, params GenParams, ts int64) float64 {
	cycle := math.Sin(2 * math.Pi * float64(ts) / float64(params.PeriodMS))
	noise := unitNoise(symbol, ts, 0)
	return params.BasePrice * (1 + params.Amplitude*cycle) * (1 + params.Volatility*noise)
}

// unitNoise 把 (symbol, ts, salt) 散列到 [-1,1)。
func unitNoise(symbol string, ts int64, salt uint64) float64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToUpper(symbol)))
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(ts))
	binary.LittleEndian.PutUint64(buf[8:], salt)
	h.Write(buf[:])
	return float64(h.Sum64()%2_000_000)/1_000_000 - 1
}

func hashSymbol(symbol string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToUpper(strings.TrimSpace(symbol))))
	return h.Sum64()
}
