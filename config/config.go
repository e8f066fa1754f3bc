package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polyflow/internal/backtest"
	"github.com/alejandrodnm/polyflow/internal/flow"
)

// Config es la configuración completa del detector y el backtester.
type Config struct {
	Detector  DetectorConfig  `yaml:"detector"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Freshness FreshnessConfig `yaml:"freshness"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// DetectorConfig controla el scoring de flujo informado.
// Los ceros se rellenan con los defaults del detector en ToDetector.
type DetectorConfig struct {
	HorizonMinutes       int     `yaml:"horizon_minutes"`
	LookbackTrades       int     `yaml:"lookback_trades"`
	SignalThreshold      float64 `yaml:"signal_threshold"`
	CooldownMinutes      int     `yaml:"cooldown_minutes"`
	MinWalletHistory     int     `yaml:"min_wallet_history"`
	MinTradeNotional     float64 `yaml:"min_trade_notional"`
	PriorCount           float64 `yaml:"prior_count"`
	EdgeVolFloor         float64 `yaml:"edge_vol_floor"`
	BurstHalfLifeMinutes float64 `yaml:"burst_half_life_minutes"`
	FlowWeight           float64 `yaml:"flow_weight"`
	SkillWeight          float64 `yaml:"skill_weight"`
	ConvictionWeight     float64 `yaml:"conviction_weight"`
	BurstWeight          float64 `yaml:"burst_weight"`
	LongOnly             bool    `yaml:"long_only"`
}

// BacktestConfig controla la simulación de las señales.
type BacktestConfig struct {
	HoldingMinutes int     `yaml:"holding_minutes"`
	TakeProfit     float64 `yaml:"take_profit"`
	StopLoss       float64 `yaml:"stop_loss"`
	PositionSize   float64 `yaml:"position_size"`
	FeeBps         float64 `yaml:"fee_bps"`
	SlippageBps    float64 `yaml:"slippage_bps"`
	InitialCapital float64 `yaml:"initial_capital"`
	AllowShort     *bool   `yaml:"allow_short"` // nil → true
	HoldToExpiry   bool    `yaml:"hold_to_expiry"`
}

// OptimizerConfig controla el grid search train/test.
type OptimizerConfig struct {
	TrainRatio float64          `yaml:"train_ratio"`
	Workers    int              `yaml:"workers"` // 0 → NumCPU
	Grid       map[string][]any `yaml:"grid"`    // vacío → grid por defecto
}

// FreshnessConfig controla la detección de wallets recién creados.
type FreshnessConfig struct {
	WindowHours float64 `yaml:"window_hours"` // negativo → deshabilitado
	MaxTrades   int     `yaml:"max_trades"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	DataBase  string `yaml:"data_base"`
	GammaBase string `yaml:"gamma_base"`
}

// StorageConfig controla dónde se persisten las ejecuciones.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben el YAML para las keys que correspondan.
// Un path vacío devuelve la configuración por defecto.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// ToDetector convierte la sección detector a la configuración del motor,
// rellenando los ceros con los defaults.
func (c *Config) ToDetector() flow.DetectorConfig {
	def := flow.DefaultDetectorConfig()
	d := c.Detector

	if d.HorizonMinutes > 0 {
		def.HorizonMinutes = d.HorizonMinutes
	}
	if d.LookbackTrades > 0 {
		def.LookbackTrades = d.LookbackTrades
	}
	if d.SignalThreshold > 0 {
		def.SignalThreshold = d.SignalThreshold
	}
	if d.CooldownMinutes > 0 {
		def.CooldownMinutes = d.CooldownMinutes
	}
	if d.MinWalletHistory > 0 {
		def.MinWalletHistory = d.MinWalletHistory
	}
	if d.MinTradeNotional > 0 {
		def.MinTradeNotional = d.MinTradeNotional
	}
	if d.PriorCount > 0 {
		def.PriorCount = d.PriorCount
	}
	if d.EdgeVolFloor > 0 {
		def.EdgeVolFloor = d.EdgeVolFloor
	}
	if d.BurstHalfLifeMinutes > 0 {
		def.BurstHalfLifeMinutes = d.BurstHalfLifeMinutes
	}
	if d.FlowWeight > 0 || d.SkillWeight > 0 || d.ConvictionWeight > 0 || d.BurstWeight > 0 {
		def.FlowWeight = d.FlowWeight
		def.SkillWeight = d.SkillWeight
		def.ConvictionWeight = d.ConvictionWeight
		def.BurstWeight = d.BurstWeight
	}
	def.LongOnly = d.LongOnly

	return def
}

// ToBacktest convierte la sección backtest a la configuración del simulador.
func (c *Config) ToBacktest() backtest.Config {
	def := backtest.DefaultConfig()
	b := c.Backtest

	if b.HoldingMinutes > 0 {
		def.HoldingMinutes = b.HoldingMinutes
	}
	if b.TakeProfit != 0 {
		def.TakeProfit = b.TakeProfit
	}
	if b.StopLoss != 0 {
		def.StopLoss = b.StopLoss
	}
	if b.PositionSize > 0 {
		def.PositionSize = b.PositionSize
	}
	if b.FeeBps > 0 {
		def.FeeBps = b.FeeBps
	}
	if b.SlippageBps > 0 {
		def.SlippageBps = b.SlippageBps
	}
	if b.InitialCapital > 0 {
		def.InitialCapital = b.InitialCapital
	}
	if b.AllowShort != nil {
		def.AllowShort = *b.AllowShort
	}
	def.HoldToExpiry = b.HoldToExpiry

	return def
}

// Grid devuelve el grid del optimizador como lo espera el motor.
// Vacío significa usar el grid por defecto.
func (c *Config) Grid() backtest.Grid {
	if len(c.Optimizer.Grid) == 0 {
		return nil
	}
	return backtest.Grid(c.Optimizer.Grid)
}

// Snapshot serializa la configuración efectiva a YAML para persistirla
// junto a la ejecución.
func (c *Config) Snapshot() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYFLOW_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("POLYFLOW_DATA_API"); v != "" {
		cfg.API.DataBase = v
	}
	if v := os.Getenv("POLYFLOW_GAMMA_API"); v != "" {
		cfg.API.GammaBase = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Optimizer.TrainRatio <= 0 || cfg.Optimizer.TrainRatio >= 1 {
		cfg.Optimizer.TrainRatio = 0.6
	}
	if cfg.Freshness.WindowHours == 0 {
		cfg.Freshness.WindowHours = 72
	}
	if cfg.Freshness.MaxTrades <= 0 {
		cfg.Freshness.MaxTrades = 12
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyflow.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
