package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alejandrodnm/polyflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- tests ---

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://data-api.polymarket.com", cfg.API.DataBase)
	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.API.GammaBase)
	assert.Equal(t, "polyflow.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.InDelta(t, 0.6, cfg.Optimizer.TrainRatio, 1e-9)
	assert.InDelta(t, 72.0, cfg.Freshness.WindowHours, 1e-9)
	assert.Equal(t, 12, cfg.Freshness.MaxTrades)

	det := cfg.ToDetector()
	assert.Equal(t, 30, det.HorizonMinutes)
	assert.Equal(t, 40, det.LookbackTrades)
	assert.False(t, det.LongOnly)

	bt := cfg.ToBacktest()
	assert.Equal(t, 60, bt.HoldingMinutes)
	assert.True(t, bt.AllowShort)
	assert.Nil(t, cfg.Grid())
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.Load")
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
detector:
  horizon_minutes: 10
  signal_threshold: 0.2
  long_only: true
backtest:
  holding_minutes: 20
  take_profit: 0.15
  allow_short: false
optimizer:
  train_ratio: 0.7
  grid:
    signal_threshold: [0.2, 0.3]
freshness:
  window_hours: -1
log:
  level: debug
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	det := cfg.ToDetector()
	assert.Equal(t, 10, det.HorizonMinutes)
	assert.InDelta(t, 0.2, det.SignalThreshold, 1e-9)
	assert.True(t, det.LongOnly)
	// lo no especificado conserva el default
	assert.Equal(t, 40, det.LookbackTrades)

	bt := cfg.ToBacktest()
	assert.Equal(t, 20, bt.HoldingMinutes)
	assert.InDelta(t, 0.15, bt.TakeProfit, 1e-9)
	assert.False(t, bt.AllowShort)
	assert.InDelta(t, 0.08, bt.StopLoss, 1e-9)

	assert.InDelta(t, 0.7, cfg.Optimizer.TrainRatio, 1e-9)
	assert.InDelta(t, -1.0, cfg.Freshness.WindowHours, 1e-9)
	assert.Equal(t, "debug", cfg.Log.Level)

	grid := cfg.Grid()
	require.NotNil(t, grid)
	assert.Len(t, grid["signal_threshold"], 2)
}

func TestLoad_WeightsReplacedAsGroup(t *testing.T) {
	path := writeConfig(t, `
detector:
  flow_weight: 1.0
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	det := cfg.ToDetector()
	assert.InDelta(t, 1.0, det.FlowWeight, 1e-9)
	// al tocar un peso, el resto del grupo se toma literal (cero incluido)
	assert.Zero(t, det.SkillWeight)
	assert.Zero(t, det.ConvictionWeight)
	assert.Zero(t, det.BurstWeight)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n")

	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("POLYFLOW_DSN", ":memory:")
	t.Setenv("POLYFLOW_DATA_API", "http://localhost:9999")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "http://localhost:9999", cfg.API.DataBase)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	path := writeConfig(t, "detector: [not a map\n")
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse YAML")
}

func TestSnapshot_RoundTripsThroughYAML(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	snap := cfg.Snapshot()
	require.NotEmpty(t, snap)
	assert.Contains(t, snap, "detector:")
	assert.Contains(t, snap, "data_base: https://data-api.polymarket.com")
}
