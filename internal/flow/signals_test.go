package flow_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func makeFeatureRow(ts time.Time, asset string, score float64, eligible bool) domain.FeatureRow {
	side := domain.SideLong
	if score < 0 {
		side = domain.SideShort
	}
	abs := score
	if abs < 0 {
		abs = -abs
	}
	return domain.FeatureRow{
		Trade: domain.Trade{
			Timestamp:   ts,
			Asset:       asset,
			ConditionID: "cond_" + asset,
			Wallet:      "0xw",
			Price:       0.5,
			Notional:    500,
		},
		DirectionScore: score,
		InformedScore:  abs,
		SignalSide:     side,
		EligibleSignal: eligible,
	}
}

// --- tests ---

func TestDetectSignals_ThresholdAndEligibility(t *testing.T) {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	cfg := flow.DefaultDetectorConfig()
	cfg.SignalThreshold = 0.30
	cfg.CooldownMinutes = 0

	features := []domain.FeatureRow{
		makeFeatureRow(base, "tok", 0.50, true),
		makeFeatureRow(base.Add(time.Minute), "tok", 0.10, true),   // bajo umbral
		makeFeatureRow(base.Add(2*time.Minute), "tok", 0.90, false), // no elegible
		makeFeatureRow(base.Add(3*time.Minute), "tok", -0.40, true), // short válido
	}

	signals := flow.DetectSignals(features, cfg)
	require.Len(t, signals, 2)
	assert.Equal(t, domain.SideLong, signals[0].Side)
	assert.InDelta(t, 0.50, signals[0].Score, 1e-9)
	assert.Equal(t, domain.SideShort, signals[1].Side)
	assert.InDelta(t, -0.40, signals[1].Direction, 1e-9)
}

func TestDetectSignals_CooldownPerAsset(t *testing.T) {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	cfg := flow.DefaultDetectorConfig()
	cfg.SignalThreshold = 0.20
	cfg.CooldownMinutes = 30

	features := []domain.FeatureRow{
		makeFeatureRow(base, "tok_a", 0.50, true),
		makeFeatureRow(base.Add(10*time.Minute), "tok_a", 0.60, true), // dentro del cooldown
		makeFeatureRow(base.Add(15*time.Minute), "tok_b", 0.60, true), // otro asset, no bloquea
		makeFeatureRow(base.Add(30*time.Minute), "tok_a", 0.70, true), // justo en el límite
	}

	signals := flow.DetectSignals(features, cfg)
	require.Len(t, signals, 3)
	assert.Equal(t, "tok_a", signals[0].Asset)
	assert.Equal(t, "tok_b", signals[1].Asset)
	assert.Equal(t, "tok_a", signals[2].Asset)
	assert.True(t, signals[2].Timestamp.Sub(signals[0].Timestamp) >= 30*time.Minute)
}

func TestDetectSignals_LongOnlyDropsShorts(t *testing.T) {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	cfg := flow.DefaultDetectorConfig()
	cfg.SignalThreshold = 0.20
	cfg.CooldownMinutes = 0
	cfg.LongOnly = true

	features := []domain.FeatureRow{
		makeFeatureRow(base, "tok", -0.80, true),
		makeFeatureRow(base.Add(time.Minute), "tok", 0.80, true),
	}

	signals := flow.DetectSignals(features, cfg)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.SideLong, signals[0].Side)
}

func TestDetectSignals_EmptyFrame(t *testing.T) {
	assert.Empty(t, flow.DetectSignals(nil, flow.DefaultDetectorConfig()))
}
