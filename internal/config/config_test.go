package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults Fill Missing Keys", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "data/ticks.db", cfg.Data.CacheDB)
		assert.Equal(t, "data/archive", cfg.Data.ArchiveDir)
		assert.Equal(t, time.Second, cfg.Replay.BaseInterval())
		assert.Equal(t, 10*time.Millisecond, cfg.Replay.MinTickInterval())
		assert.Equal(t, 8, cfg.Replay.MaxConcurrent)
		assert.Equal(t, 10*time.Second, cfg.Advisor.Timeout())
		assert.Equal(t, "configs/profiles.yaml", cfg.Profiles.Path)
		assert.False(t, cfg.Advisor.Enabled)
	})

	t.Run("Full File Parses", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `server:
  host: 127.0.0.1
  port: 8087
log:
  level: debug
  file: logs/tapesim.log
data:
  cache_db: /tmp/ticks.db
  archive_dir: /tmp/archive
replay:
  base_interval_ms: 500
  min_tick_interval_ms: 5
  max_concurrent: 4
advisor:
  enabled: true
  endpoint: http://localhost:9000/advise
  api_key: secret
  timeout_ms: 2000
profiles:
  path: /tmp/profiles.yaml
`))
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:8087", cfg.Server.Addr())
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 500*time.Millisecond, cfg.Replay.BaseInterval())
		assert.Equal(t, 4, cfg.Replay.MaxConcurrent)
		assert.True(t, cfg.Advisor.Enabled)
		assert.Equal(t, 2*time.Second, cfg.Advisor.Timeout())
		assert.Equal(t, "/tmp/profiles.yaml", cfg.Profiles.Path)
	})

	t.Run("Empty Path Errors", func(t *testing.T) {
		_, err := Load(" ")
		assert.Error(t, err)
	})

	t.Run("Missing File Errors", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("Bad Port", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server:\n  port: 70000\n"))
		assert.Error(t, err)
	})

	t.Run("Bad Log Level", func(t *testing.T) {
		_, err := Load(writeConfig(t, "log:\n  level: verbose\n"))
		assert.Error(t, err)
	})

	t.Run("Bad Base Interval", func(t *testing.T) {
		_, err := Load(writeConfig(t, "replay:\n  base_interval_ms: 0\n"))
		assert.Error(t, err)
	})

	t.Run("Negative Min Tick Interval", func(t *testing.T) {
		_, err := Load(writeConfig(t, "replay:\n  min_tick_interval_ms: -1\n"))
		assert.Error(t, err)
	})

	t.Run("Advisor Enabled Needs Endpoint", func(t *testing.T) {
		_, err := Load(writeConfig(t, "advisor:\n  enabled: true\n"))
		assert.Error(t, err)
	})
}
