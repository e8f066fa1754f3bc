package main

// run.go — pipeline del análisis: fetch → normalize → features → señales →
// reportes / backtest / optimización, con persistencia y export opcionales.

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyflow/config"
	"github.com/alejandrodnm/polyflow/internal/adapters/export"
	"github.com/alejandrodnm/polyflow/internal/adapters/notify"
	"github.com/alejandrodnm/polyflow/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyflow/internal/adapters/storage"
	"github.com/alejandrodnm/polyflow/internal/backtest"
	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/flow"
	"github.com/alejandrodnm/polyflow/internal/ports"
)

type app struct {
	cfg      *config.Config
	client   *polymarket.Client
	store    *storage.SQLiteStorage
	notifier *notify.Console

	market    string
	asset     string
	limit     int
	backtest  bool
	optimize  bool
	rank      bool
	markets   bool
	exportDir string
}

func (a *app) run(ctx context.Context) error {
	trades, err := a.fetchTrades(ctx)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		slog.Warn("no usable trades after normalization")
		return nil
	}

	detCfg := a.cfg.ToDetector()
	btCfg := a.cfg.ToBacktest()

	if a.optimize {
		return a.runOptimize(ctx, trades, detCfg, btCfg)
	}

	features, err := flow.EngineerFeatures(trades, detCfg)
	if err != nil {
		return fmt.Errorf("engineer features: %w", err)
	}
	signals := flow.DetectSignals(features, detCfg)
	slog.Info("detection complete", "trades", len(trades), "signals", len(signals))

	if err := a.notifier.NotifySignals(ctx, signals); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	freshness := flow.WalletFreshnessReport(features,
		a.cfg.Freshness.WindowHours, a.cfg.Freshness.MaxTrades, nil)

	if a.rank {
		ranking := flow.RankWallets(features, detCfg, 20, freshness)
		if err := a.notifier.NotifyWallets(ctx, ranking); err != nil {
			slog.Warn("notifier error", "err", err)
		}
		if a.exportDir != "" {
			a.exportCSV("wallets.csv", func(p string) error { return export.WriteWallets(p, ranking) })
		}
	}

	if a.markets {
		metrics := flow.MarketMetricsReport(features, signals, freshness)
		if err := a.notifier.NotifyMarkets(ctx, metrics); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}

	result := domain.BacktestResult{}
	mode := "detect"
	if a.backtest {
		mode = "backtest"
		settlements, err := a.fetchSettlements(ctx, trades, btCfg)
		if err != nil {
			return err
		}
		result, err = backtest.Run(features, signals, btCfg, backtest.Window{}, settlements)
		if err != nil {
			return fmt.Errorf("backtest: %w", err)
		}
		if err := a.notifier.NotifyBacktest(ctx, result); err != nil {
			slog.Warn("notifier error", "err", err)
		}
		if a.exportDir != "" {
			a.exportCSV("trades.csv", func(p string) error { return export.WriteTrades(p, result.Trades) })
		}
	}

	if a.exportDir != "" {
		a.exportCSV("signals.csv", func(p string) error { return export.WriteSignals(p, signals) })
	}

	a.saveRun(ctx, mode, result, signals)
	return nil
}

func (a *app) runOptimize(ctx context.Context, trades []domain.Trade, detCfg flow.DetectorConfig, btCfg backtest.Config) error {
	settlements, err := a.fetchSettlements(ctx, trades, btCfg)
	if err != nil {
		return err
	}

	result, err := backtest.Optimize(trades, detCfg, a.cfg.Grid(),
		a.cfg.Optimizer.TrainRatio, btCfg, settlements, a.cfg.Optimizer.Workers)
	if err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	a.notifier.PrintOptimization(result, 10)

	if a.exportDir != "" {
		a.exportCSV("leaderboard.csv", func(p string) error {
			return export.WriteLeaderboard(p, result.Leaderboard)
		})
	}

	a.saveRun(ctx, "optimize", result.BestTest, nil)
	return nil
}

// fetchTrades descarga y normaliza el histórico de trades del mercado o asset.
func (a *app) fetchTrades(ctx context.Context) ([]domain.Trade, error) {
	var records []flow.RawRecord
	var err error
	if a.market != "" {
		records, err = a.client.FetchTradesByCondition(ctx, a.market, a.limit)
	} else {
		records, err = a.client.FetchTradesByAsset(ctx, a.asset, a.limit)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}

	trades, drops, err := flow.Normalize(flow.FromRecords(records))
	if err != nil {
		return nil, fmt.Errorf("normalize trades: %w", err)
	}
	if drops.Total() > 0 {
		slog.Warn("dropped malformed rows",
			"bad_side", drops.BadSide,
			"bad_timestamp", drops.BadTimestamp,
			"bad_size", drops.BadSize,
			"bad_price", drops.BadPrice,
		)
	}
	return trades, nil
}

// fetchSettlements resuelve los mercados del dataset, solo en hold-to-expiry.
func (a *app) fetchSettlements(ctx context.Context, trades []domain.Trade, btCfg backtest.Config) (map[string]domain.Settlement, error) {
	if !btCfg.HoldToExpiry {
		return nil, nil
	}

	seen := make(map[string]bool)
	var cids []string
	for _, t := range trades {
		if t.ConditionID != "" && !seen[t.ConditionID] {
			seen[t.ConditionID] = true
			cids = append(cids, t.ConditionID)
		}
	}

	settlements, err := a.client.FetchSettlements(ctx, cids)
	if err != nil {
		return nil, fmt.Errorf("fetch settlements: %w", err)
	}
	slog.Info("settlements resolved", "conditions", len(cids), "resolved", len(settlements))
	return settlements, nil
}

func (a *app) saveRun(ctx context.Context, mode string, result domain.BacktestResult, signals []domain.Signal) {
	label := a.market
	if label == "" {
		label = a.asset
	}
	run := ports.RunRecord{
		ID:      uuid.NewString(),
		Market:  label,
		Mode:    mode,
		Config:  a.cfg.Snapshot(),
		Result:  result,
		Signals: signals,
	}
	if err := a.store.SaveRun(ctx, run); err != nil {
		slog.Warn("failed to persist run", "err", err, "mode", mode)
	}
}

func (a *app) exportCSV(name string, write func(path string) error) {
	path := filepath.Join(a.exportDir, name)
	if err := write(path); err != nil {
		slog.Warn("csv export failed", "err", err, "path", path)
		return
	}
	slog.Info("csv exported", "path", path)
}
