package profile

import (
	"os"
	"path/filepath"
	"testing"

	"tapesim/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfiles = `profiles:
  momentum_fast:
    description: 短线动量
    strategy: Momentum
    params:
      short_window: 3
      long_window: 7
      upper_band: 1.005
  reversion_default:
    id: reversion_custom
    strategy: mean_reversion
    params:
      window: 15
      band_std: 2.5
`

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistry(t *testing.T) {
	t.Run("Empty Path Errors", func(t *testing.T) {
		_, err := NewRegistry("  ")
		assert.Error(t, err)
	})

	t.Run("Missing File Errors", func(t *testing.T) {
		_, err := NewRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("Unknown Field Errors", func(t *testing.T) {
		path := writeProfiles(t, "profiles:\n  p1:\n    strateg: momentum\n")
		_, err := NewRegistry(path)
		assert.Error(t, err)
	})
}

func TestRegistrySnapshot(t *testing.T) {
	r, err := NewRegistry(writeProfiles(t, sampleProfiles))
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Len(t, snap.Profiles, 2)

	t.Run("Key Becomes ID When Unset", func(t *testing.T) {
		p, ok := r.Profile("momentum_fast")
		require.True(t, ok)
		assert.Equal(t, "momentum", p.Strategy) // 策略名归一为小写
		assert.Equal(t, 3, p.Params.ShortWindow)
		assert.Equal(t, 7, p.Params.LongWindow)
		// 未给出的参数回填默认值
		assert.Equal(t, strategy.DefaultParams().Window, p.Params.Window)
	})

	t.Run("Explicit ID Wins Over Key", func(t *testing.T) {
		_, ok := r.Profile("reversion_default")
		assert.False(t, ok)
		p, ok := r.Profile("reversion_custom")
		require.True(t, ok)
		assert.Equal(t, 15, p.Params.Window)
		assert.InDelta(t, 2.5, p.Params.BandStd, 1e-9)
	})

	t.Run("Unknown ID Misses", func(t *testing.T) {
		_, ok := r.Profile("nope")
		assert.False(t, ok)
	})

	t.Run("Snapshot Is A Copy", func(t *testing.T) {
		snap := r.Snapshot()
		delete(snap.Profiles, "momentum_fast")
		_, ok := r.Profile("momentum_fast")
		assert.True(t, ok)
	})
}

func TestParamsFor(t *testing.T) {
	r, err := NewRegistry(writeProfiles(t, sampleProfiles))
	require.NoError(t, err)

	t.Run("Matches Strategy Case Insensitive", func(t *testing.T) {
		params := r.ParamsFor("MOMENTUM")
		assert.Equal(t, 3, params.ShortWindow)
	})

	t.Run("Falls Back To Defaults", func(t *testing.T) {
		assert.Equal(t, strategy.DefaultParams(), r.ParamsFor("breakout"))
	})
}
