package flow_test

import (
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func maturedRow(ts time.Time, cid, asset, wallet string, signedReturn, skill, notional float64) domain.FeatureRow {
	return domain.FeatureRow{
		Trade: domain.Trade{
			Timestamp:   ts,
			Asset:       asset,
			ConditionID: cid,
			Wallet:      wallet,
			Notional:    notional,
			Price:       0.5,
			Slug:        "slug-" + cid,
		},
		SignedForwardReturn: signedReturn,
		WalletSkill:         skill,
	}
}

func unmaturedRow(ts time.Time, cid, asset, wallet string) domain.FeatureRow {
	row := maturedRow(ts, cid, asset, wallet, 0, 0, 100)
	row.SignedForwardReturn = math.NaN()
	return row
}

// --- tests ---

func TestRankWallets_OrdersByRealizedEdge(t *testing.T) {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	features := []domain.FeatureRow{
		maturedRow(base, "c1", "tok", "0xsharp", 0.30, 0.5, 2000),
		maturedRow(base.Add(time.Minute), "c1", "tok", "0xsharp", 0.20, 0.6, 2000),
		maturedRow(base.Add(2*time.Minute), "c1", "tok", "0xdull", -0.10, -0.2, 2000),
		maturedRow(base.Add(3*time.Minute), "c1", "tok", "0xdull", -0.05, -0.3, 2000),
		unmaturedRow(base.Add(4*time.Minute), "c1", "tok", "0xunmatured"),
	}

	cfg := flow.DefaultDetectorConfig()
	ranking := flow.RankWallets(features, cfg, 20, nil)
	require.Len(t, ranking, 2, "unmatured-only wallets are excluded")

	assert.Equal(t, "0xsharp", ranking[0].Wallet)
	assert.InDelta(t, 0.25, ranking[0].RealizedEdge, 1e-9)
	assert.InDelta(t, 1.0, ranking[0].RealizedWinRate, 1e-9)
	assert.InDelta(t, 0.6, ranking[0].RecentSkill, 1e-9)
	assert.Equal(t, 2, ranking[0].Trades)

	assert.Equal(t, "0xdull", ranking[1].Wallet)
	assert.Zero(t, ranking[1].RealizedWinRate)
	// Skill y edge negativos no puntúan: solo queda el término de notional.
	assert.InDelta(t, 0.20*math.Log1p(4000), ranking[1].RankScore, 1e-9)
}

func TestRankWallets_FiltersByHistoryAndTopN(t *testing.T) {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	var features []domain.FeatureRow
	for i := 0; i < 3; i++ {
		features = append(features, maturedRow(base.Add(time.Duration(i)*time.Minute), "c1", "tok", "0xbusy", 0.1, 0.2, 500))
	}
	features = append(features, maturedRow(base.Add(time.Hour), "c1", "tok", "0xonce", 0.9, 0.9, 9000))

	cfg := flow.DefaultDetectorConfig()
	cfg.MinWalletHistory = 2
	ranking := flow.RankWallets(features, cfg, 20, nil)
	require.Len(t, ranking, 1)
	assert.Equal(t, "0xbusy", ranking[0].Wallet)

	cfg.MinWalletHistory = 0
	ranking = flow.RankWallets(features, cfg, 1, nil)
	require.Len(t, ranking, 1, "topN trims the tail")
}

func TestRankWallets_AnnotatesFreshness(t *testing.T) {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	features := []domain.FeatureRow{
		maturedRow(base, "c1", "tok", "0xnew", 0.2, 0.3, 800),
	}
	freshness := map[string]domain.WalletFreshness{
		"0xnew": {Wallet: "0xnew", Fresh: true, Source: domain.FreshnessSample},
	}

	ranking := flow.RankWallets(features, flow.DefaultDetectorConfig(), 20, freshness)
	require.Len(t, ranking, 1)
	assert.True(t, ranking[0].Fresh)
	assert.Equal(t, domain.FreshnessSample, ranking[0].FreshnessSource)
}

func TestMarketMetricsReport_SharesAndOrder(t *testing.T) {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	features := []domain.FeatureRow{
		maturedRow(base, "c1", "tok1", "0xa", 0.1, 0.1, 100),
		maturedRow(base.Add(time.Minute), "c1", "tok1", "0xb", 0.1, 0.1, 100),
		maturedRow(base.Add(2*time.Minute), "c1", "tok2", "0xc", 0.1, 0.1, 100),
		maturedRow(base.Add(3*time.Minute), "c2", "tok3", "0xd", 0.1, 0.1, 100),
	}
	signals := []domain.Signal{
		{ConditionID: "c1", Asset: "tok1", TriggerWallet: "0xa"},
		{ConditionID: "c1", Asset: "tok1", TriggerWallet: "0xa"},
		{ConditionID: "c1", Asset: "tok2", TriggerWallet: "0xc"},
	}
	freshness := map[string]domain.WalletFreshness{
		"0xa": {Wallet: "0xa", Fresh: true, Source: domain.FreshnessSample},
	}

	metrics := flow.MarketMetricsReport(features, signals, freshness)
	require.Len(t, metrics, 2)

	// c1 primero: más wallets informados
	m := metrics[0]
	assert.Equal(t, "c1", m.ConditionID)
	assert.Equal(t, 3, m.Trades)
	assert.Equal(t, 2, m.Assets)
	assert.Equal(t, 3, m.MarketWallets)
	assert.Equal(t, 2, m.InformedWallets)
	assert.InDelta(t, 2.0/3.0, m.InformedWalletShare, 1e-9)
	assert.Equal(t, 3, m.InformedSignals)
	assert.InDelta(t, 1.5, m.SignalsPerInformed, 1e-9)
	assert.Equal(t, 1, m.FreshInformedWallets)
	assert.InDelta(t, 0.5, m.FreshInformedShare, 1e-9)
	assert.Equal(t, "slug-c1", m.Slug)

	assert.Equal(t, "c2", metrics[1].ConditionID)
	assert.Zero(t, metrics[1].InformedWallets)
}

func TestWalletFreshnessReport_SampleHeuristic(t *testing.T) {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	features := []domain.FeatureRow{
		maturedRow(base, "c1", "tok", "0xveteran", 0.1, 0.1, 100),
		maturedRow(base.Add(90*time.Hour), "c1", "tok", "0xveteran", 0.1, 0.1, 100),
		maturedRow(base.Add(95*time.Hour), "c1", "tok", "0xnew", 0.1, 0.1, 100),
		maturedRow(base.Add(96*time.Hour), "c1", "tok", "0xnew", 0.1, 0.1, 100),
	}

	report := flow.WalletFreshnessReport(features, 72, 12, nil)
	require.Len(t, report, 2)

	assert.False(t, report["0xveteran"].Fresh, "first trade outside the window")
	assert.True(t, report["0xnew"].Fresh)
	assert.Equal(t, domain.FreshnessSample, report["0xnew"].Source)
	assert.Equal(t, 2, report["0xnew"].TradesInSpan)
}

func TestWalletFreshnessReport_MaxTradesCap(t *testing.T) {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	var features []domain.FeatureRow
	for i := 0; i < 5; i++ {
		features = append(features, maturedRow(base.Add(time.Duration(i)*time.Hour), "c1", "tok", "0xchurner", 0.1, 0.1, 100))
	}

	report := flow.WalletFreshnessReport(features, 72, 3, nil)
	assert.False(t, report["0xchurner"].Fresh, "too many trades to look fresh")
}

func TestWalletFreshnessReport_OnchainOverride(t *testing.T) {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	features := []domain.FeatureRow{
		maturedRow(base, "c1", "tok", "0xw", 0.1, 0.1, 100),
		maturedRow(base.Add(time.Hour), "c1", "tok", "0xw", 0.1, 0.1, 100),
	}

	// In-sample parece fresco, pero on-chain el wallet existe desde hace meses.
	old := base.Add(-2000 * time.Hour)
	report := flow.WalletFreshnessReport(features, 72, 12, map[string]time.Time{"0xw": old})
	entry := report["0xw"]
	assert.False(t, entry.Fresh)
	assert.Equal(t, domain.FreshnessOnchain, entry.Source)
	assert.True(t, entry.FirstSeen.Equal(old))
}

func TestWalletFreshnessReport_NegativeWindowDisables(t *testing.T) {
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	features := []domain.FeatureRow{
		maturedRow(base, "c1", "tok", "0xw", 0.1, 0.1, 100),
	}

	report := flow.WalletFreshnessReport(features, -1, 12, nil)
	assert.False(t, report["0xw"].Fresh)
}
