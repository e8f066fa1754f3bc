package storage

// sqlite.go — persistencia de ejecuciones en SQLite puro Go.
//
// Estrategia:
//   - `runs`: una fila por ejecución (detect/backtest/optimize) con el
//     snapshot YAML de configuración y las métricas agregadas.
//   - `signals`: las señales emitidas en esa ejecución.
//   - `bt_trades`: los trades simulados, solo en ejecuciones con backtest.
//   - Prune automático al arrancar: runs > 60d (cascada sobre hijos).

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
-- Cabecera por ejecución
CREATE TABLE IF NOT EXISTS runs (
    id             TEXT PRIMARY KEY,
    created_at     DATETIME NOT NULL,
    market         TEXT     NOT NULL,
    mode           TEXT     NOT NULL,
    config_yaml    TEXT     NOT NULL DEFAULT '',
    total_pnl      REAL     NOT NULL DEFAULT 0,
    ending_capital REAL     NOT NULL DEFAULT 0,
    return_pct     REAL     NOT NULL DEFAULT 0,
    n_trades       INTEGER  NOT NULL DEFAULT 0,
    win_rate       REAL     NOT NULL DEFAULT 0,
    sharpe         REAL     NOT NULL DEFAULT 0,
    max_drawdown   REAL     NOT NULL DEFAULT 0,
    n_signals      INTEGER  NOT NULL DEFAULT 0
);

-- Señales emitidas en la ejecución
CREATE TABLE IF NOT EXISTS signals (
    run_id       TEXT     NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    ts           DATETIME NOT NULL,
    asset        TEXT     NOT NULL,
    condition_id TEXT     NOT NULL,
    outcome      TEXT,
    side         TEXT     NOT NULL,
    score        REAL     NOT NULL,
    direction    REAL     NOT NULL,
    flow_ratio   REAL     NOT NULL,
    wallet_skill REAL     NOT NULL,
    conviction   REAL     NOT NULL,
    wallet       TEXT,
    notional     REAL     NOT NULL DEFAULT 0,
    price        REAL     NOT NULL DEFAULT 0,
    slug         TEXT
);

-- Trades simulados del backtest
CREATE TABLE IF NOT EXISTS bt_trades (
    run_id      TEXT     NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    asset       TEXT     NOT NULL,
    side        TEXT     NOT NULL,
    view_asset  TEXT,
    view_side   TEXT,
    signal_ts   DATETIME NOT NULL,
    entry_ts    DATETIME NOT NULL,
    exit_ts     DATETIME NOT NULL,
    entry_price REAL     NOT NULL,
    exit_price  REAL     NOT NULL,
    net_return  REAL     NOT NULL,
    pnl         REAL     NOT NULL,
    reason      TEXT     NOT NULL,
    score       REAL     NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_created  ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_signals_run   ON signals(run_id);
CREATE INDEX IF NOT EXISTS idx_trades_run    ON bt_trades(run_id);
`

const retentionRuns = 60 * 24 * time.Hour // ejecuciones: 60 días

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia ejecuciones antiguas.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: enable fks: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveRun persiste la ejecución completa en una transacción:
// cabecera, señales y trades simulados.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run ports.RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs
			(id, created_at, market, mode, config_yaml, total_pnl, ending_capital,
			 return_pct, n_trades, win_rate, sharpe, max_drawdown, n_signals)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, now, run.Market, run.Mode, run.Config,
		run.Result.TotalPnL, run.Result.EndingCapital, run.Result.ReturnPct,
		run.Result.NTrades, run.Result.WinRate, run.Result.Sharpe,
		run.Result.MaxDrawdown, len(run.Signals),
	); err != nil {
		return fmt.Errorf("storage.SaveRun: insert run: %w", err)
	}

	if len(run.Signals) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO signals
				(run_id, ts, asset, condition_id, outcome, side, score, direction,
				 flow_ratio, wallet_skill, conviction, wallet, notional, price, slug)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("storage.SaveRun: prepare signals: %w", err)
		}
		defer stmt.Close()

		for _, sig := range run.Signals {
			if _, err := stmt.ExecContext(ctx,
				run.ID, sig.Timestamp.UTC(), sig.Asset, sig.ConditionID, sig.Outcome,
				sig.Side, sig.Score, sig.Direction, sig.FlowRatio, sig.WalletSkill,
				sig.Conviction, sig.TriggerWallet, sig.TriggerNotional,
				sig.TriggerPrice, sig.Slug,
			); err != nil {
				return fmt.Errorf("storage.SaveRun: insert signal %s: %w", sig.Asset, err)
			}
		}
	}

	if len(run.Result.Trades) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO bt_trades
				(run_id, asset, side, view_asset, view_side, signal_ts, entry_ts,
				 exit_ts, entry_price, exit_price, net_return, pnl, reason, score)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("storage.SaveRun: prepare trades: %w", err)
		}
		defer stmt.Close()

		for _, t := range run.Result.Trades {
			if _, err := stmt.ExecContext(ctx,
				run.ID, t.Asset, t.Side, t.ViewAsset, t.ViewSide,
				t.SignalTime.UTC(), t.EntryTime.UTC(), t.ExitTime.UTC(),
				t.EntryPrice, t.ExitPrice, t.NetReturn, t.PnL, t.Reason, t.Score,
			); err != nil {
				return fmt.Errorf("storage.SaveRun: insert trade %s: %w", t.Asset, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return nil
}

// GetRuns devuelve las últimas n cabeceras de ejecución, más recientes primero.
// No carga señales ni trades — solo el resumen agregado.
func (s *SQLiteStorage) GetRuns(ctx context.Context, n int) ([]ports.RunRecord, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market, mode, config_yaml,
		       total_pnl, ending_capital, return_pct, n_trades,
		       win_rate, sharpe, max_drawdown
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRuns: query: %w", err)
	}
	defer rows.Close()

	var runs []ports.RunRecord
	for rows.Next() {
		var run ports.RunRecord
		var res domain.BacktestResult
		if err := rows.Scan(
			&run.ID, &run.Market, &run.Mode, &run.Config,
			&res.TotalPnL, &res.EndingCapital, &res.ReturnPct, &res.NTrades,
			&res.WinRate, &res.Sharpe, &res.MaxDrawdown,
		); err != nil {
			return nil, fmt.Errorf("storage.GetRuns: scan row: %w", err)
		}
		run.Result = res
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina ejecuciones antiguas para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionRuns)
	s.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff)
}
