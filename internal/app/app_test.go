package app

import (
	"testing"
	"time"

	"tapesim/internal/config"
	"tapesim/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8087},
		Log:    config.LogConfig{Level: "error"},
		Replay: config.ReplayConfig{BaseIntervalMS: 1, MinTickIntervalMS: 0, MaxConcurrent: 4},
	}
}

func waitCompleted(t *testing.T, m *session.Manager, id string) session.View {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		view, err := m.GetSession(id)
		require.NoError(t, err)
		if view.Status == session.StatusCompleted {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("会话 %s 超时未完成", id)
	return session.View{}
}

func TestNewApp(t *testing.T) {
	t.Run("Nil Config Errors", func(t *testing.T) {
		_, err := NewApp(nil)
		assert.Error(t, err)
	})

	t.Run("Builds Without Optional Subsystems", func(t *testing.T) {
		// 缓存/归档/顾问/预设全部关闭也要能装配
		a, err := NewApp(minimalConfig())
		require.NoError(t, err)
		defer a.Close()
		assert.NotNil(t, a.Manager())
	})
}

func TestSessionCompletesWithoutArchive(t *testing.T) {
	a, err := NewApp(minimalConfig())
	require.NoError(t, err)
	defer a.Close()

	m := a.Manager()
	view, err := m.CreateSession(session.Config{
		Symbol:         "BTCUSDT",
		StartTS:        0,
		EndTS:          5 * 60_000,
		Strategy:       "momentum",
		InitialCapital: 100000,
		SpeedFactor:    1000,
	})
	require.NoError(t, err)
	require.NoError(t, m.StartSession(view.ID))

	// 归档未启用时收尾流程不得崩溃，会话正常迁入历史
	got := waitCompleted(t, m, view.ID)
	assert.Equal(t, session.StatusCompleted, got.Status)
	assert.Equal(t, got.TotalTicks, got.Cursor)
	require.Len(t, m.ListHistory(), 1)
	assert.Equal(t, view.ID, m.ListHistory()[0].ID)
}
