package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tapesim/internal/market"
	"tapesim/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := NewClient(Config{Endpoint: endpoint, Timeout: time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("Empty Endpoint Errors", func(t *testing.T) {
		_, err := NewClient(Config{})
		assert.Error(t, err)
	})

	t.Run("Default Timeout Applied", func(t *testing.T) {
		c := newTestClient(t, "http://localhost:1")
		assert.NotNil(t, c.schema)
	})
}

func TestParse(t *testing.T) {
	c := newTestClient(t, "http://localhost:1")

	t.Run("Plain Decision Object", func(t *testing.T) {
		d, err := c.Parse(`{"action":"BUY","quantity":10,"confidence":0.8,"rationale":"trend up"}`)
		require.NoError(t, err)
		assert.Equal(t, "BUY", d.Action)
		assert.InDelta(t, 10, d.Quantity, 1e-9)
		assert.InDelta(t, 0.8, d.Confidence, 1e-9)
		assert.Equal(t, "trend up", d.Rationale)
		assert.Equal(t, strategy.AdvisorStrategyID, d.Strategy)
	})

	t.Run("Wrapped Decision Object", func(t *testing.T) {
		d, err := c.Parse(`{"decision":{"action":"sell","quantity":5}}`)
		require.NoError(t, err)
		assert.Equal(t, "SELL", d.Action)
		assert.InDelta(t, 5, d.Quantity, 1e-9)
	})

	t.Run("Lowercase Wait Uppercased", func(t *testing.T) {
		d, err := c.Parse(`{"action":"wait"}`)
		require.NoError(t, err)
		assert.Equal(t, "WAIT", d.Action)
	})

	t.Run("Missing Action Errors", func(t *testing.T) {
		_, err := c.Parse(`{"quantity":10}`)
		assert.Error(t, err)
	})

	t.Run("Invalid JSON Errors", func(t *testing.T) {
		_, err := c.Parse(`{"action":"BUY"`)
		assert.Error(t, err)
	})

	t.Run("Array Root Errors", func(t *testing.T) {
		_, err := c.Parse(`[{"action":"BUY"}]`)
		assert.Error(t, err)
	})

	t.Run("Unknown Action Fails Schema", func(t *testing.T) {
		_, err := c.Parse(`{"action":"SHORT"}`)
		assert.ErrorContains(t, err, "schema")
	})

	t.Run("Negative Quantity Fails Schema", func(t *testing.T) {
		_, err := c.Parse(`{"action":"BUY","quantity":-3}`)
		assert.Error(t, err)
	})

	t.Run("Confidence Out Of Range Fails Schema", func(t *testing.T) {
		_, err := c.Parse(`{"action":"BUY","confidence":1.5}`)
		assert.Error(t, err)
	})

	t.Run("Non Object Decision Errors", func(t *testing.T) {
		_, err := c.Parse(`{"decision":"BUY"}`)
		assert.Error(t, err)
	})
}

func TestAdvise(t *testing.T) {
	mctx := strategy.MarketContext{
		Symbol: "AAPL",
		Tick:   market.Tick{Timestamp: 60_000, Price: 103},
		History: []market.Tick{
			{Timestamp: 0, Close: 100, Price: 100},
		},
	}
	pctx := strategy.PortfolioContext{Cash: 100000, TotalValue: 100000}

	t.Run("Round Trip", func(t *testing.T) {
		var got adviceRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{"action":"BUY","quantity":10,"confidence":0.9}`))
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL)
		d, err := c.Advise(context.Background(), mctx, pctx)
		require.NoError(t, err)
		assert.Equal(t, "BUY", d.Action)
		assert.Equal(t, "AAPL", got.Symbol)
		assert.InDelta(t, 103, got.Price, 1e-9)
		assert.Equal(t, []float64{100, 103}, got.Prices)
	})

	t.Run("Bearer Header Sent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			w.Write([]byte(`{"action":"HOLD"}`))
		}))
		defer srv.Close()

		c, err := NewClient(Config{Endpoint: srv.URL, APIKey: "secret"})
		require.NoError(t, err)
		_, err = c.Advise(context.Background(), mctx, pctx)
		assert.NoError(t, err)
	})

	t.Run("Non 200 Errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL)
		_, err := c.Advise(context.Background(), mctx, pctx)
		assert.ErrorContains(t, err, "503")
	})

	t.Run("Unreachable Endpoint Errors", func(t *testing.T) {
		c := newTestClient(t, "http://127.0.0.1:1")
		_, err := c.Advise(context.Background(), mctx, pctx)
		assert.Error(t, err)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}
