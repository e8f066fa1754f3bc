package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polyflow/config"
	"github.com/alejandrodnm/polyflow/internal/adapters/notify"
	"github.com/alejandrodnm/polyflow/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyflow/internal/adapters/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	market := flag.String("market", "", "condition id to analyze")
	asset := flag.String("asset", "", "token id to analyze (alternative to -market)")
	limit := flag.Int("limit", 5000, "max trades to fetch")
	runBT := flag.Bool("backtest", false, "simulate the detected signals")
	optimize := flag.Bool("optimize", false, "grid-search detector parameters")
	rank := flag.Bool("rank", false, "print wallet ranking")
	markets := flag.Bool("markets", false, "print per-market informed flow metrics")
	holdExpiry := flag.Bool("hold-to-expiry", false, "hold positions to market resolution")
	table := flag.Bool("table", false, "print full signal table (default: compact 1-line)")
	exportDir := flag.String("export", "", "directory for CSV export (empty: disabled)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if *market == "" && *asset == "" {
		slog.Error("either -market or -asset is required")
		os.Exit(1)
	}
	if *holdExpiry {
		cfg.Backtest.HoldToExpiry = true
	}

	slog.Info("flowscan starting",
		"market", *market,
		"asset", *asset,
		"limit", *limit,
		"backtest", *runBT,
		"optimize", *optimize,
		"hold_to_expiry", cfg.Backtest.HoldToExpiry,
	)

	client := polymarket.NewClient(cfg.API.DataBase, cfg.API.GammaBase)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole(*table, *verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &app{
		cfg:       cfg,
		client:    client,
		store:     store,
		notifier:  notifier,
		market:    *market,
		asset:     *asset,
		limit:     *limit,
		backtest:  *runBT,
		optimize:  *optimize,
		rank:      *rank,
		markets:   *markets,
		exportDir: *exportDir,
	}

	if err := app.run(ctx); err != nil {
		slog.Error("flowscan exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("flowscan finished cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
