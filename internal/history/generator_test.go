package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorDeterminism(t *testing.T) {
	g := NewGenerator()
	first := g.Generate("BTCUSDT", 0, 60*60_000)
	second := g.Generate("BTCUSDT", 0, 60*60_000)
	assert.Equal(t, first, second)
}

func TestGeneratorRangeConsistency(t *testing.T) {
	g := NewGenerator()
	full := g.Generate("ETHUSDT", 0, 120*60_000)
	sub := g.Generate("ETHUSDT", 30*60_000, 90*60_000)
	require.NotEmpty(t, sub)

	byTS := make(map[int64]int, len(full))
	for i, tick := range full {
		byTS[tick.Timestamp] = i
	}
	// 子区间的每根 tick 必须与全量序列中同一时间戳的 tick 完全一致
	for _, tick := range sub {
		idx, ok := byTS[tick.Timestamp]
		require.True(t, ok, "子区间出现全量序列没有的时间戳 %d", tick.Timestamp)
		assert.Equal(t, full[idx], tick)
	}
}

func TestGeneratorAlignment(t *testing.T) {
	g := NewGenerator()

	t.Run("First Tick Aligned Up", func(t *testing.T) {
		ticks := g.Generate("AAPL", 61_000, 300_000)
		require.NotEmpty(t, ticks)
		assert.Equal(t, int64(120_000), ticks[0].Timestamp)
		for _, tick := range ticks {
			assert.Zero(t, tick.Timestamp%DefaultTickIntervalMS)
		}
	})

	t.Run("Ascending Fixed Interval", func(t *testing.T) {
		ticks := g.Generate("AAPL", 0, 10*60_000)
		for i := 1; i < len(ticks); i++ {
			assert.Equal(t, DefaultTickIntervalMS, ticks[i].Timestamp-ticks[i-1].Timestamp)
		}
	})

	t.Run("Inverted Range Empty", func(t *testing.T) {
		assert.Empty(t, g.Generate("AAPL", 100, 50))
	})
}

func TestGeneratorShape(t *testing.T) {
	g := NewGenerator()
	params := g.ParamsFor("AAPL")
	assert.GreaterOrEqual(t, params.BasePrice, 20.0)
	assert.Less(t, params.BasePrice, 1000.0)
	assert.Equal(t, DefaultTickIntervalMS, params.IntervalMS)
	// 大小写与首尾空白不影响派生参数
	assert.Equal(t, params, g.ParamsFor("  aapl "))

	for _, tick := range g.Generate("AAPL", 0, 60*60_000) {
		assert.Positive(t, tick.Close)
		assert.GreaterOrEqual(t, tick.High, tick.Close)
		assert.LessOrEqual(t, tick.Low, tick.Close)
		assert.GreaterOrEqual(t, tick.High, tick.Open)
		assert.LessOrEqual(t, tick.Low, tick.Open)
		assert.InDelta(t, tick.Close, tick.Price, 1e-12)
		assert.Positive(t, tick.Volume)
	}
}

func TestExpectedCount(t *testing.T) {
	assert.Equal(t, 11, expectedCount(0, 10*60_000, DefaultTickIntervalMS))
	assert.Equal(t, 10, expectedCount(1, 10*60_000, DefaultTickIntervalMS))
	assert.Equal(t, 0, expectedCount(61_000, 100_000, DefaultTickIntervalMS))
}

func TestServicePureMode(t *testing.T) {
	svc, err := NewService("")
	require.NoError(t, err)
	defer svc.Close()

	ticks, err := svc.GetHistoricalData(context.Background(), "btcusdt", 0, 10*60_000)
	require.NoError(t, err)
	assert.Len(t, ticks, 11)

	t.Run("Empty Symbol Errors", func(t *testing.T) {
		_, err := svc.GetHistoricalData(context.Background(), "  ", 0, 100)
		assert.Error(t, err)
	})

	t.Run("Inverted Range Errors", func(t *testing.T) {
		_, err := svc.GetHistoricalData(context.Background(), "BTCUSDT", 100, 50)
		assert.Error(t, err)
	})
}

func TestServiceCacheRoundTrip(t *testing.T) {
	path := t.TempDir() + "/ticks.db"
	svc, err := NewService(path)
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()
	first, err := svc.GetHistoricalData(ctx, "ETHUSDT", 0, 30*60_000)
	require.NoError(t, err)
	require.Len(t, first, 31)

	// 二次请求命中缓存，内容一致
	second, err := svc.GetHistoricalData(ctx, "ETHUSDT", 0, 30*60_000)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 更大的区间触发重新生成，重叠部分仍一致
	wider, err := svc.GetHistoricalData(ctx, "ETHUSDT", 0, 60*60_000)
	require.NoError(t, err)
	require.Len(t, wider, 61)
	assert.Equal(t, first, wider[:31])
}
