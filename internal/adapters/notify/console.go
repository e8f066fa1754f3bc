package notify

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/polyflow/internal/backtest"
	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out     io.Writer
	table   bool
	verbose bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table, verbose bool) *Console {
	return &Console{out: os.Stdout, table: table, verbose: verbose}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table, verbose bool) *Console {
	return &Console{out: w, table: table, verbose: verbose}
}

// NotifySignals imprime las señales detectadas.
func (c *Console) NotifySignals(_ context.Context, signals []domain.Signal) error {
	if len(signals) == 0 {
		fmt.Fprintf(c.out, "[%s] no signals detected\n", time.Now().Format("15:04:05"))
		return nil
	}

	if c.table {
		c.printSignalTable(signals)
	} else {
		c.printSignalCompact(signals)
	}
	return nil
}

// printSignalCompact imprime lo esencial en pocas líneas.
func (c *Console) printSignalCompact(signals []domain.Signal) {
	now := time.Now().Format("15:04:05")
	longs, shorts := countBySide(signals)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d signals → L:%d S:%d", now, len(signals), longs, shorts)

	shown := 0
	for _, sig := range signals {
		if shown >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s score %.3f @%.3f %s",
			sideIcon(sig.Side), assetLabel(sig), sig.Score, sig.TriggerPrice,
			shortWallet(sig.TriggerWallet))
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printSignalTable imprime la tabla completa de señales.
func (c *Console) printSignalTable(signals []domain.Signal) {
	now := time.Now().Format("15:04:05")
	longs, shorts := countBySide(signals)

	fmt.Fprintf(c.out, "\n[%s] %d signals — long:%d short:%d\n", now, len(signals), longs, shorts)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Time", "Side", "Market", "Outcome", "Score", "Flow", "Skill", "Conv", "Price", "Wallet", "Notional")

	for i, sig := range signals {
		table.Append(
			fmt.Sprintf("%d", i+1),
			sig.Timestamp.UTC().Format("01-02 15:04"),
			strings.ToUpper(sig.Side),
			assetLabel(sig),
			sig.Outcome,
			fmt.Sprintf("%.3f", sig.Score),
			fmt.Sprintf("%+.3f", sig.FlowRatio),
			fmt.Sprintf("%+.3f", sig.WalletSkill),
			fmt.Sprintf("%.3f", sig.Conviction),
			fmt.Sprintf("%.3f", sig.TriggerPrice),
			shortWallet(sig.TriggerWallet),
			fmt.Sprintf("$%.0f", sig.TriggerNotional),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  Flow = flujo neto direccional | Skill = edge histórico del flujo")
	fmt.Fprintln(c.out, "  Conv = tamaño relativo al mercado | score = mezcla ponderada")
}

// NotifyBacktest imprime el resumen de la simulación y, en verbose, cada trade.
func (c *Console) NotifyBacktest(_ context.Context, result domain.BacktestResult) error {
	if result.NTrades == 0 {
		fmt.Fprintln(c.out, "\n  Backtest: no trades executed.")
		return nil
	}

	fmt.Fprintf(c.out, "\n=== BACKTEST — %d trades ===\n", result.NTrades)
	fmt.Fprintf(c.out, "  Total PnL:       $%.2f\n", result.TotalPnL)
	fmt.Fprintf(c.out, "  Ending capital:  $%.2f (%.2f%%)\n", result.EndingCapital, result.ReturnPct*100)
	fmt.Fprintf(c.out, "  Win rate:        %.1f%%\n", result.WinRate*100)
	fmt.Fprintf(c.out, "  Avg return:      %.4f\n", result.AvgReturn)
	fmt.Fprintf(c.out, "  Sharpe:          %.3f\n", result.Sharpe)
	fmt.Fprintf(c.out, "  Max drawdown:    %.2f%%\n", result.MaxDrawdown*100)
	fmt.Fprintf(c.out, "  Profit factor:   %s\n", factorLabel(result.ProfitFactor))

	if c.verbose && len(result.Trades) > 0 {
		c.printTradeTable(result.Trades)
	}
	return nil
}

// printTradeTable imprime el detalle de cada trade simulado.
func (c *Console) printTradeTable(trades []domain.BacktestTrade) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "View", "Traded", "Entry", "Exit", "EntryPx", "ExitPx", "Return", "PnL", "Reason")

	for i, t := range trades {
		view := fmt.Sprintf("%s %s", strings.ToUpper(t.ViewSide), truncate(t.ViewAsset, 14))
		traded := truncate(t.Asset, 14)
		if t.TradedOutcome != "" {
			traded = fmt.Sprintf("%s (%s)", traded, t.TradedOutcome)
		}

		table.Append(
			fmt.Sprintf("%d", i+1),
			view,
			traded,
			t.EntryTime.UTC().Format("01-02 15:04"),
			t.ExitTime.UTC().Format("01-02 15:04"),
			fmt.Sprintf("%.3f", t.EntryPrice),
			fmt.Sprintf("%.3f", t.ExitPrice),
			fmt.Sprintf("%+.2f%%", t.NetReturn*100),
			fmt.Sprintf("$%+.2f", t.PnL),
			t.Reason,
		)
	}
	table.Render()
}

// NotifyWallets imprime el ranking de wallets por edge realizado.
func (c *Console) NotifyWallets(_ context.Context, ranking []domain.WalletRank) error {
	if len(ranking) == 0 {
		fmt.Fprintln(c.out, "\n  No wallets with matured trades.")
		return nil
	}

	fmt.Fprintf(c.out, "\n=== WALLET RANKING — top %d ===\n", len(ranking))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Wallet", "Trades", "Skill", "Edge", "WinRate", "Notional", "Rank", "Fresh")

	for i, w := range ranking {
		fresh := "-"
		if w.Fresh {
			fresh = "yes (" + w.FreshnessSource + ")"
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			shortWallet(w.Wallet),
			fmt.Sprintf("%d", w.Trades),
			fmt.Sprintf("%+.3f", w.RecentSkill),
			fmt.Sprintf("%+.4f", w.RealizedEdge),
			fmt.Sprintf("%.1f%%", w.RealizedWinRate*100),
			fmt.Sprintf("$%.0f", w.TotalNotional),
			fmt.Sprintf("%.3f", w.RankScore),
			fresh,
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  Skill = último skill observado | Edge = retorno firmado medio madurado")
	return nil
}

// NotifyMarkets imprime la participación de flujo informado por mercado.
func (c *Console) NotifyMarkets(_ context.Context, metrics []domain.MarketMetrics) error {
	if len(metrics) == 0 {
		fmt.Fprintln(c.out, "\n  No market metrics available.")
		return nil
	}

	fmt.Fprintf(c.out, "\n=== MARKET METRICS — %d markets ===\n", len(metrics))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Trades", "Assets", "Wallets", "Informed", "Share", "Signals", "Fresh")

	for i, m := range metrics {
		label := m.Slug
		if label == "" {
			label = shortWallet(m.ConditionID)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			truncate(label, 34),
			fmt.Sprintf("%d", m.Trades),
			fmt.Sprintf("%d", m.Assets),
			fmt.Sprintf("%d", m.MarketWallets),
			fmt.Sprintf("%d", m.InformedWallets),
			fmt.Sprintf("%.1f%%", m.InformedWalletShare*100),
			fmt.Sprintf("%d", m.InformedSignals),
			fmt.Sprintf("%d (%.0f%%)", m.FreshInformedWallets, m.FreshInformedShare*100),
		)
	}
	table.Render()
	return nil
}

// PrintOptimization imprime el resultado del grid search:
// mejor configuración, métricas train/test y el top del leaderboard.
func (c *Console) PrintOptimization(result backtest.OptimizationResult, top int) {
	fmt.Fprintf(c.out, "\n=== OPTIMIZATION — %d combos, split %s ===\n",
		len(result.Leaderboard), result.SplitTime.UTC().Format("2006-01-02 15:04"))

	if best := bestParams(result.Leaderboard); best != "" {
		fmt.Fprintf(c.out, "  Best params: %s\n", best)
	}
	fmt.Fprintf(c.out, "  Train: $%.2f pnl, %d trades | Test: $%.2f pnl, %d trades, sharpe %.3f\n",
		result.BestTrain.TotalPnL, result.BestTrain.NTrades,
		result.BestTest.TotalPnL, result.BestTest.NTrades, result.BestTest.Sharpe)

	if top <= 0 {
		top = 10
	}
	rows := result.Leaderboard
	if len(rows) > top {
		rows = rows[:top]
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Objective", "TrainPnL", "TestPnL", "TestTrades", "TestWin", "TestDD", "Params")

	for i, row := range rows {
		table.Append(
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.2f", row.Objective),
			fmt.Sprintf("$%.2f", row.TrainTotalPnL),
			fmt.Sprintf("$%.2f", row.TestTotalPnL),
			fmt.Sprintf("%d", row.TestTrades),
			fmt.Sprintf("%.1f%%", row.TestWinRate*100),
			fmt.Sprintf("%.2f%%", row.TestMaxDrawdown*100),
			paramsLabel(row.Params),
		)
	}
	table.Render()
}

// --- helpers ---

func countBySide(signals []domain.Signal) (longs, shorts int) {
	for _, s := range signals {
		if s.Side == domain.SideLong {
			longs++
		} else {
			shorts++
		}
	}
	return
}

func sideIcon(side string) string {
	if side == domain.SideLong {
		return "▲"
	}
	return "▼"
}

func assetLabel(sig domain.Signal) string {
	if sig.Slug != "" {
		return truncate(sig.Slug, 28)
	}
	return truncate(sig.Asset, 18)
}

func shortWallet(w string) string {
	if len(w) > 12 {
		return w[:10] + ".."
	}
	return w
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func factorLabel(pf float64) string {
	if math.IsInf(pf, 1) {
		return "INF"
	}
	return fmt.Sprintf("%.3f", pf)
}

func bestParams(rows []backtest.LeaderboardRow) string {
	if len(rows) == 0 {
		return ""
	}
	return paramsLabel(rows[0].Params)
}

func paramsLabel(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, " ")
}
