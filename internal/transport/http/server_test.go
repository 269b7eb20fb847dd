package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tapesim/internal/market"
	"tapesim/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	ticks []market.Tick
}

func (s *stubSource) GetHistoricalData(ctx context.Context, symbol string, start, end int64) ([]market.Tick, error) {
	return s.ticks, nil
}

func newTestServer(t *testing.T, src session.TickSource) *Server {
	t.Helper()
	m, err := session.NewManager(session.ManagerConfig{Source: src, BaseInterval: time.Millisecond})
	require.NoError(t, err)
	srv, err := NewServer(Config{Manager: m})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	var payload map[string]json.RawMessage
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func createBody() string {
	return `{"symbol":"AAPL","start_ts":60000,"end_ts":3600000,"strategy":"momentum","initial_capital":100000}`
}

func createSession(t *testing.T, srv *Server) string {
	t.Helper()
	rec, payload := doJSON(t, srv, http.MethodPost, "/api/sessions", createBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var view session.View
	require.NoError(t, json.Unmarshal(payload["session"], &view))
	require.NotEmpty(t, view.ID)
	return view.ID
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestCreateSessionEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubSource{})

	t.Run("Created", func(t *testing.T) {
		rec, payload := doJSON(t, srv, http.MethodPost, "/api/sessions", createBody())
		assert.Equal(t, http.StatusCreated, rec.Code)
		var view session.View
		require.NoError(t, json.Unmarshal(payload["session"], &view))
		assert.Equal(t, session.StatusCreated, view.Status)
		assert.Equal(t, "AAPL", view.Config.Symbol)
	})

	t.Run("Missing Required Field", func(t *testing.T) {
		rec, _ := doJSON(t, srv, http.MethodPost, "/api/sessions", `{"symbol":"AAPL"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Malformed Body", func(t *testing.T) {
		rec, _ := doJSON(t, srv, http.MethodPost, "/api/sessions", `{"symbol":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unknown Strategy", func(t *testing.T) {
		body := `{"symbol":"AAPL","start_ts":60000,"end_ts":3600000,"strategy":"martingale","initial_capital":100000}`
		rec, _ := doJSON(t, srv, http.MethodPost, "/api/sessions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestControlEndpoints(t *testing.T) {
	t.Run("Start Unknown 404", func(t *testing.T) {
		srv := newTestServer(t, &stubSource{})
		rec, _ := doJSON(t, srv, http.MethodPost, "/api/sessions/missing/start", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Pause Before Start 409", func(t *testing.T) {
		srv := newTestServer(t, &stubSource{})
		id := createSession(t, srv)
		rec, _ := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/pause", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Start Without Data 422", func(t *testing.T) {
		srv := newTestServer(t, &stubSource{})
		id := createSession(t, srv)
		rec, _ := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/start", "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		// 启动失败后状态保持 CREATED
		rec, payload := doJSON(t, srv, http.MethodGet, "/api/sessions/"+id, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var view session.View
		require.NoError(t, json.Unmarshal(payload["session"], &view))
		assert.Equal(t, session.StatusCreated, view.Status)
	})

	t.Run("Start Pause Resume Stop", func(t *testing.T) {
		ticks := make([]market.Tick, 2000)
		for i := range ticks {
			ticks[i] = market.Tick{Timestamp: int64(i+1) * 60_000, Close: 100, Price: 100, Volume: 1}
		}
		srv := newTestServer(t, &stubSource{ticks: ticks})
		id := createSession(t, srv)

		rec, payload := doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/start", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var view session.View
		require.NoError(t, json.Unmarshal(payload["session"], &view))
		assert.Equal(t, session.StatusRunning, view.Status)

		rec, payload = doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/pause", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(payload["session"], &view))
		assert.Equal(t, session.StatusPaused, view.Status)

		rec, payload = doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/resume", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(payload["session"], &view))
		assert.Equal(t, session.StatusRunning, view.Status)

		rec, _ = doJSON(t, srv, http.MethodPost, "/api/sessions/"+id+"/stop", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestQueryEndpoints(t *testing.T) {
	srv := newTestServer(t, &stubSource{})
	id := createSession(t, srv)

	t.Run("List Active", func(t *testing.T) {
		rec, payload := doJSON(t, srv, http.MethodGet, "/api/sessions", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var summaries []session.Summary
		require.NoError(t, json.Unmarshal(payload["sessions"], &summaries))
		require.Len(t, summaries, 1)
		assert.Equal(t, id, summaries[0].ID)
	})

	t.Run("History Empty", func(t *testing.T) {
		rec, payload := doJSON(t, srv, http.MethodGet, "/api/sessions/history", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var summaries []session.Summary
		require.NoError(t, json.Unmarshal(payload["sessions"], &summaries))
		assert.Empty(t, summaries)
	})

	t.Run("Summary", func(t *testing.T) {
		rec, payload := doJSON(t, srv, http.MethodGet, "/api/sessions/"+id+"/summary", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var summary session.Summary
		require.NoError(t, json.Unmarshal(payload["summary"], &summary))
		assert.Equal(t, "AAPL", summary.Symbol)
		assert.InDelta(t, 100000, summary.InitialCapital, 1e-9)
	})

	t.Run("Trades Empty", func(t *testing.T) {
		rec, _ := doJSON(t, srv, http.MethodGet, "/api/sessions/"+id+"/trades", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Equity Has Seed Point", func(t *testing.T) {
		rec, payload := doJSON(t, srv, http.MethodGet, "/api/sessions/"+id+"/equity", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var equity []float64
		require.NoError(t, json.Unmarshal(payload["equity"], &equity))
		require.Len(t, equity, 1)
		assert.InDelta(t, 100000, equity[0], 1e-9)
	})

	t.Run("Detail Unknown 404", func(t *testing.T) {
		rec, _ := doJSON(t, srv, http.MethodGet, "/api/sessions/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Report Without Trades Still Renders", func(t *testing.T) {
		rec, _ := doJSON(t, srv, http.MethodGet, "/api/sessions/"+id+"/report", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	})
}

func TestStrategiesEndpoint(t *testing.T) {
	t.Run("Builtins Only", func(t *testing.T) {
		srv := newTestServer(t, &stubSource{})
		rec, payload := doJSON(t, srv, http.MethodGet, "/api/strategies", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var names []string
		require.NoError(t, json.Unmarshal(payload["strategies"], &names))
		assert.Contains(t, names, "momentum")
		assert.NotContains(t, names, "advisor")
	})

	t.Run("Advisor Listed When Enabled", func(t *testing.T) {
		m, err := session.NewManager(session.ManagerConfig{Source: &stubSource{}})
		require.NoError(t, err)
		srv, err := NewServer(Config{Manager: m, AdvisorEnabled: true})
		require.NoError(t, err)
		rec, payload := doJSON(t, srv, http.MethodGet, "/api/strategies", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var names []string
		require.NoError(t, json.Unmarshal(payload["strategies"], &names))
		assert.Contains(t, names, "advisor")
	})
}

func TestDisabledSubsystems(t *testing.T) {
	srv := newTestServer(t, &stubSource{})

	t.Run("Profiles 503", func(t *testing.T) {
		rec, _ := doJSON(t, srv, http.MethodGet, "/api/profiles", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("Archive 503", func(t *testing.T) {
		for _, path := range []string{"/api/archive", "/api/archive/x", "/api/archive/x/equity"} {
			rec, _ := doJSON(t, srv, http.MethodGet, path, "")
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		}
	})
}
