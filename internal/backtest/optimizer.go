package backtest

// optimizer.go — grid search determinista con split train/test cronológico.
//
// Cada combinación del grid reconstruye features y señales una vez y corre
// dos backtests: train en [inicio, split) y test en [split, fin). Las
// combinaciones son independientes (dataset inmutable, sin estado compartido)
// así que se evalúan en un worker pool; la selección del mejor se repite
// después en orden de combinación para que el paralelismo no cambie el
// resultado.

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/flow"
)

// Grid es el espacio de búsqueda: clave de DetectorConfig → valores a probar.
// Claves desconocidas son un error fatal.
type Grid map[string][]any

// DefaultGrid devuelve el grid de búsqueda por defecto.
func DefaultGrid() Grid {
	return Grid{
		"signal_threshold":   {0.20, 0.26, 0.32},
		"lookback_trades":    {20, 35, 50},
		"horizon_minutes":    {20, 30, 45},
		"cooldown_minutes":   {20, 45},
		"min_wallet_history": {0, 1, 2},
	}
}

// LeaderboardRow es una combinación evaluada del grid.
type LeaderboardRow struct {
	Params          map[string]any
	Objective       float64
	TrainTotalPnL   float64
	TrainTrades     int
	TestTotalPnL    float64
	TestTrades      int
	TestWinRate     float64
	TestMaxDrawdown float64
}

// OptimizationResult es el resultado del grid search: mejor configuración,
// sus backtests train/test, el instante del split y el leaderboard completo
// ordenado por objetivo.
type OptimizationResult struct {
	BestConfig  flow.DetectorConfig
	BestTrain   domain.BacktestResult
	BestTest    domain.BacktestResult
	SplitTime   time.Time
	Leaderboard []LeaderboardRow
}

// Optimize grid-searchea la configuración del detector sobre trades ya
// normalizados. trainRatio parte el dataset por índice de trade; workers ≤ 0
// usa el número de CPUs.
func Optimize(trades []domain.Trade, base flow.DetectorConfig, grid Grid, trainRatio float64, cfg Config, settlements map[string]domain.Settlement, workers int) (OptimizationResult, error) {
	if trainRatio <= 0 || trainRatio >= 1 {
		return OptimizationResult{}, fmt.Errorf("backtest.Optimize: train_ratio must be in (0, 1), got %v", trainRatio)
	}
	if len(trades) == 0 {
		return OptimizationResult{}, fmt.Errorf("backtest.Optimize: no trades available for optimization")
	}
	if grid == nil {
		grid = DefaultGrid()
	}

	ordered := make([]domain.Trade, len(trades))
	copy(ordered, trades)
	flow.SortTrades(ordered)

	splitIdx := int(float64(len(ordered)) * trainRatio)
	if splitIdx < 1 {
		splitIdx = 1
	}
	if splitIdx > len(ordered)-1 {
		splitIdx = len(ordered) - 1
	}
	splitTime := ordered[splitIdx].Timestamp

	combos, err := expandGrid(base, grid)
	if err != nil {
		return OptimizationResult{}, err
	}

	type comboResult struct {
		row   LeaderboardRow
		train domain.BacktestResult
		test  domain.BacktestResult
		err   error
	}
	results := make([]comboResult, len(combos))

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(combos) {
		workers = len(combos)
	}

	jobs := make(chan int, len(combos))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				combo := combos[idx]

				features, ferr := flow.EngineerFeatures(ordered, combo.cfg)
				if ferr != nil {
					results[idx] = comboResult{err: ferr}
					continue
				}
				signals := flow.DetectSignals(features, combo.cfg)

				train, terr := Run(features, signals, cfg, Window{End: splitTime}, settlements)
				if terr != nil {
					results[idx] = comboResult{err: terr}
					continue
				}
				test, terr := Run(features, signals, cfg, Window{Start: splitTime}, settlements)
				if terr != nil {
					results[idx] = comboResult{err: terr}
					continue
				}

				results[idx] = comboResult{
					row: LeaderboardRow{
						Params:          combo.params,
						Objective:       objective(train, test, cfg),
						TrainTotalPnL:   train.TotalPnL,
						TrainTrades:     train.NTrades,
						TestTotalPnL:    test.TotalPnL,
						TestTrades:      test.NTrades,
						TestWinRate:     test.WinRate,
						TestMaxDrawdown: test.MaxDrawdown,
					},
					train: train,
					test:  test,
				}
			}
		}()
	}
	for idx := range combos {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	// Selección secuencial en orden de combinación: el primer objetivo
	// estrictamente mayor gana, igual que una pasada de un solo hilo.
	bestScore := math.Inf(-1)
	bestConfig := base
	bestTrain := emptyResult(cfg.InitialCapital)
	bestTest := emptyResult(cfg.InitialCapital)
	leaderboard := make([]LeaderboardRow, 0, len(combos))

	for idx := range combos {
		if results[idx].err != nil {
			return OptimizationResult{}, results[idx].err
		}
		leaderboard = append(leaderboard, results[idx].row)
		if results[idx].row.Objective > bestScore {
			bestScore = results[idx].row.Objective
			bestConfig = combos[idx].cfg
			bestTrain = results[idx].train
			bestTest = results[idx].test
		}
	}

	sort.SliceStable(leaderboard, func(i, j int) bool {
		if leaderboard[i].Objective != leaderboard[j].Objective {
			return leaderboard[i].Objective > leaderboard[j].Objective
		}
		return leaderboard[i].TestTotalPnL > leaderboard[j].TestTotalPnL
	})

	return OptimizationResult{
		BestConfig:  bestConfig,
		BestTrain:   bestTrain,
		BestTest:    bestTest,
		SplitTime:   splitTime,
		Leaderboard: leaderboard,
	}, nil
}

// objective puntúa una combinación: PnL de test con un cuarto del de train,
// bonus por Sharpe de test y penalizaciones por drawdown y por muestras
// de test demasiado pequeñas.
func objective(train, test domain.BacktestResult, cfg Config) float64 {
	penalty := cfg.InitialCapital * 0.50 * test.MaxDrawdown
	lowSample := 0.0
	if test.NTrades < 2 {
		lowSample = 50.0
	}
	return test.TotalPnL + 0.25*train.TotalPnL + 5.0*test.Sharpe - penalty - lowSample
}

type combo struct {
	params map[string]any
	cfg    flow.DetectorConfig
}

// expandGrid valida las claves contra el set de campos de DetectorConfig y
// expande el producto cartesiano en orden determinista (claves ordenadas,
// valores en el orden dado).
func expandGrid(base flow.DetectorConfig, grid Grid) ([]combo, error) {
	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []combo{{params: map[string]any{}, cfg: base}}
	for _, key := range keys {
		values := grid[key]
		next := make([]combo, 0, len(combos)*len(values))
		for _, c := range combos {
			for _, value := range values {
				applied, err := c.cfg.WithParam(key, value)
				if err != nil {
					return nil, fmt.Errorf("backtest.Optimize: %w", err)
				}
				params := make(map[string]any, len(c.params)+1)
				for pk, pv := range c.params {
					params[pk] = pv
				}
				params[key] = value
				next = append(next, combo{params: params, cfg: applied})
			}
		}
		combos = next
	}
	return combos, nil
}
