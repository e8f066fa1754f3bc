package export

// csv.go — volcado de señales, trades y rankings a CSV para análisis externo.

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/alejandrodnm/polyflow/internal/backtest"
	"github.com/alejandrodnm/polyflow/internal/domain"
)

// WriteSignals escribe las señales detectadas a un fichero CSV.
func WriteSignals(path string, signals []domain.Signal) error {
	header := []string{
		"timestamp", "asset", "condition_id", "outcome", "side", "score",
		"direction", "flow_ratio", "wallet_skill", "conviction",
		"trigger_wallet", "trigger_notional", "trigger_price", "slug",
	}
	rows := make([][]string, 0, len(signals))
	for _, s := range signals {
		rows = append(rows, []string{
			s.Timestamp.UTC().Format(time.RFC3339),
			s.Asset, s.ConditionID, s.Outcome, s.Side,
			fmtFloat(s.Score), fmtFloat(s.Direction), fmtFloat(s.FlowRatio),
			fmtFloat(s.WalletSkill), fmtFloat(s.Conviction),
			s.TriggerWallet, fmtFloat(s.TriggerNotional), fmtFloat(s.TriggerPrice),
			s.Slug,
		})
	}
	return writeFile(path, header, rows)
}

// WriteTrades escribe los trades simulados del backtest a CSV.
func WriteTrades(path string, trades []domain.BacktestTrade) error {
	header := []string{
		"signal_time", "entry_time", "exit_time", "asset", "side",
		"view_asset", "view_side", "view_outcome", "traded_outcome",
		"entry_price", "exit_price", "raw_return", "net_return", "pnl",
		"reason", "score",
	}
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			t.SignalTime.UTC().Format(time.RFC3339),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			t.Asset, t.Side, t.ViewAsset, t.ViewSide, t.ViewOutcome, t.TradedOutcome,
			fmtFloat(t.EntryPrice), fmtFloat(t.ExitPrice),
			fmtFloat(t.RawReturn), fmtFloat(t.NetReturn), fmtFloat(t.PnL),
			t.Reason, fmtFloat(t.Score),
		})
	}
	return writeFile(path, header, rows)
}

// WriteWallets escribe el ranking de wallets a CSV.
func WriteWallets(path string, ranking []domain.WalletRank) error {
	header := []string{
		"wallet", "trades", "recent_skill", "avg_skill", "realized_edge",
		"realized_win_rate", "total_notional", "rank_score", "fresh", "freshness_source",
	}
	rows := make([][]string, 0, len(ranking))
	for _, w := range ranking {
		rows = append(rows, []string{
			w.Wallet, strconv.Itoa(w.Trades),
			fmtFloat(w.RecentSkill), fmtFloat(w.AvgSkill), fmtFloat(w.RealizedEdge),
			fmtFloat(w.RealizedWinRate), fmtFloat(w.TotalNotional), fmtFloat(w.RankScore),
			strconv.FormatBool(w.Fresh), w.FreshnessSource,
		})
	}
	return writeFile(path, header, rows)
}

// WriteLeaderboard escribe el leaderboard del grid search a CSV.
// Los parámetros variables del grid se expanden como columnas propias.
func WriteLeaderboard(path string, leaderboard []backtest.LeaderboardRow) error {
	paramKeys := leaderboardParamKeys(leaderboard)

	header := append([]string{
		"rank", "objective", "train_total_pnl", "train_trades",
		"test_total_pnl", "test_trades", "test_win_rate", "test_max_drawdown",
	}, paramKeys...)

	rows := make([][]string, 0, len(leaderboard))
	for i, row := range leaderboard {
		record := []string{
			strconv.Itoa(i + 1),
			fmtFloat(row.Objective),
			fmtFloat(row.TrainTotalPnL), strconv.Itoa(row.TrainTrades),
			fmtFloat(row.TestTotalPnL), strconv.Itoa(row.TestTrades),
			fmtFloat(row.TestWinRate), fmtFloat(row.TestMaxDrawdown),
		}
		for _, k := range paramKeys {
			record = append(record, fmt.Sprintf("%v", row.Params[k]))
		}
		rows = append(rows, record)
	}
	return writeFile(path, header, rows)
}

// --- helpers ---

func leaderboardParamKeys(rows []backtest.LeaderboardRow) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row.Params {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeFile(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export.writeFile: create %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("export.writeFile: write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("export.writeFile: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export.writeFile: flush %q: %w", path, err)
	}
	return nil
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
