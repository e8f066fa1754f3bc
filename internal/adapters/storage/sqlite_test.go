package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/polyflow/internal/adapters/storage"
	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/ports"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func makeRun(market, mode string, pnl float64) ports.RunRecord {
	ts := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	return ports.RunRecord{
		ID:     uuid.NewString(),
		Market: market,
		Mode:   mode,
		Config: "detector:\n  signal_threshold: 0.28\n",
		Result: domain.BacktestResult{
			TotalPnL:      pnl,
			EndingCapital: 10_000 + pnl,
			ReturnPct:     pnl / 10_000,
			NTrades:       2,
			WinRate:       0.5,
			Sharpe:        1.2,
			MaxDrawdown:   0.05,
			Trades: []domain.BacktestTrade{
				{
					Asset: "tok_yes", Side: domain.SideLong,
					ViewAsset: "tok_yes", ViewSide: domain.SideLong,
					SignalTime: ts, EntryTime: ts, ExitTime: ts.Add(time.Hour),
					EntryPrice: 0.40, ExitPrice: 0.48,
					NetReturn: 0.2, PnL: pnl, Reason: domain.ExitTime, Score: 0.41,
				},
			},
		},
		Signals: []domain.Signal{
			{
				Timestamp: ts, Asset: "tok_yes", ConditionID: "0xcond",
				Outcome: "Yes", Side: domain.SideLong, Score: 0.41,
				TriggerWallet: "0xwhale", TriggerNotional: 1800, TriggerPrice: 0.40,
			},
		},
	}
}

// --- tests ---

func TestSQLiteStorage_SaveAndGetRuns(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	run := makeRun("0xcond", "backtest", 160)
	require.NoError(t, db.SaveRun(context.Background(), run))

	runs, err := db.GetRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "0xcond", got.Market)
	assert.Equal(t, "backtest", got.Mode)
	assert.Equal(t, run.Config, got.Config)
	assert.InDelta(t, 160.0, got.Result.TotalPnL, 1e-9)
	assert.InDelta(t, 10_160.0, got.Result.EndingCapital, 1e-9)
	assert.Equal(t, 2, got.Result.NTrades)
	assert.InDelta(t, 1.2, got.Result.Sharpe, 1e-9)
}

func TestSQLiteStorage_GetRunsHonorsLimit(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ids := make(map[string]bool)
	for i := 0; i < 3; i++ {
		run := makeRun("0xcond", "detect", float64(i))
		ids[run.ID] = true
		require.NoError(t, db.SaveRun(context.Background(), run))
	}

	runs, err := db.GetRuns(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.True(t, ids[r.ID])
	}

	// n <= 0 usa el límite por defecto
	runs, err = db.GetRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestSQLiteStorage_EmptyRunWithoutChildren(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	run := ports.RunRecord{ID: uuid.NewString(), Market: "0xcond", Mode: "detect"}
	require.NoError(t, db.SaveRun(context.Background(), run))

	runs, err := db.GetRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Zero(t, runs[0].Result.NTrades)
}
