package backtest

// simulator.go — simulador event-driven de ejecución contra señales.
//
// Procesa las señales en orden temporal contra un ledger único de capital:
//   1. Antes de evaluar una señal se liquidan (min-heap por exit time) las
//      posiciones cuya salida ya pasó, devolviendo el cash al ledger.
//   2. Un short se sintetiza como long del token del outcome opuesto de la
//      misma condición binaria; sin opuesto en el dataset, la señal se salta.
//   3. Máximo una posición abierta por condición/asset a la vez.
//   4. Fees + slippage one-way se aplican simétricos en entrada y salida.

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/flow"
)

// Window acota el backtest a [Start, End); los zero values no acotan.
type Window struct {
	Start time.Time
	End   time.Time
}

// openPosition es una posición esperando su liquidación lazy.
type openPosition struct {
	exitNS   int64
	proceeds float64
}

type positionHeap []openPosition

func (h positionHeap) Len() int           { return len(h) }
func (h positionHeap) Less(i, j int) bool { return h[i].exitNS < h[j].exitNS }
func (h positionHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *positionHeap) Push(x any)        { *h = append(*h, x.(openPosition)) }
func (h *positionHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// assetSeries es la serie temporal de un asset en orden canónico.
type assetSeries struct {
	ts     []int64
	prices []float64
}

// Run simula las señales contra el frame de features. settlements solo es
// obligatorio con HoldToExpiry; condiciones sin resolver se saltan. Sin
// señales o sin features el resultado es vacío con el capital intacto.
func Run(features []domain.FeatureRow, signals []domain.Signal, cfg Config, win Window, settlements map[string]domain.Settlement) (domain.BacktestResult, error) {
	if cfg.HoldToExpiry && settlements == nil {
		return domain.BacktestResult{}, fmt.Errorf("backtest.Run: settlements must be provided when hold_to_expiry is enabled")
	}
	if len(features) == 0 || len(signals) == 0 {
		return emptyResult(cfg.InitialCapital), nil
	}

	var startNS, endNS int64
	hasStart, hasEnd := !win.Start.IsZero(), !win.End.IsZero()
	if hasStart {
		startNS = win.Start.UnixNano()
	}
	if hasEnd {
		endNS = win.End.UnixNano()
	}

	holdingMinutes := cfg.HoldingMinutes
	if holdingMinutes < 1 {
		holdingMinutes = 1
	}
	holdingNS := int64(holdingMinutes) * int64(60*1e9)

	// position_size es el desembolso bruto por trade: los costes reducen el
	// fill efectivo pero no permiten perder más del 100%.
	oneWayCost := (cfg.FeeBps + cfg.SlippageBps) / 10_000.0
	oneWayCost = math.Max(0, math.Min(oneWayCost, 0.99))
	entryMult := 1 - oneWayCost
	exitMult := 1 - oneWayCost

	oppositeAsset, oppositeOutcome := buildBinaryOpposites(features)

	var assetOutcome map[[2]string]string
	if cfg.HoldToExpiry {
		assetOutcome = dominantOutcomes(features)
	}

	series := buildAssetSeries(features)

	ordered := make([]domain.Signal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var completed []domain.BacktestTrade
	blockedUntil := make(map[string]int64)
	cash := cfg.InitialCapital
	var open positionHeap

	for _, signal := range ordered {
		signalNS := signal.Timestamp.UnixNano()
		if hasStart && signalNS < startNS {
			continue
		}
		if hasEnd && signalNS >= endNS {
			continue
		}

		// Liberar capital de posiciones que ya salieron antes de esta señal.
		for len(open) > 0 && open[0].exitNS <= signalNS {
			pos := heap.Pop(&open).(openPosition)
			cash += pos.proceeds
		}

		tradeAsset := signal.Asset
		tradeSide := signal.Side
		tradedOutcome := signal.Outcome

		if signal.Side == domain.SideShort {
			if !cfg.AllowShort {
				continue
			}
			key := [2]string{signal.ConditionID, signal.Asset}
			opposite, ok := oppositeAsset[key]
			if !ok {
				// Sin opuesto binario en el dataset no se puede modelar un
				// short real; la señal se salta.
				continue
			}
			tradeAsset = opposite
			tradeSide = domain.SideLong
			if signal.Outcome != "" {
				tradedOutcome = oppositeOutcome[[2]string{signal.ConditionID, signal.Outcome}]
			}
		}

		s, ok := series[tradeAsset]
		if !ok {
			continue
		}

		blockKey := signal.ConditionID
		if blockKey == "" {
			blockKey = tradeAsset
		}
		if blockedUntil[blockKey] > signalNS {
			continue
		}

		entryIdx := sort.Search(len(s.ts), func(m int) bool { return s.ts[m] >= signalNS })
		if entryIdx >= len(s.ts) {
			continue
		}
		entryNS := s.ts[entryIdx]
		entryPrice := s.prices[entryIdx]
		if entryPrice <= 0 {
			continue
		}

		cost := cfg.PositionSize
		if math.IsNaN(cost) || math.IsInf(cost, 0) || cost <= 0 {
			continue
		}
		if cash < cost {
			continue
		}
		qty := cost * entryMult / entryPrice
		if math.IsNaN(qty) || math.IsInf(qty, 0) || qty <= 0 {
			continue
		}

		var trade domain.BacktestTrade
		var proceeds float64
		if cfg.HoldToExpiry {
			settlement, resolved := settlements[signal.ConditionID]
			if !resolved || settlement.WinnerOutcome == "" {
				continue
			}
			if tradedOutcome == "" {
				tradedOutcome = assetOutcome[[2]string{signal.ConditionID, tradeAsset}]
			}
			if tradedOutcome == "" {
				continue
			}

			// Redimir al payout final: 1 para el ganador, 0 para el resto.
			exitPrice := 0.0
			if tradedOutcome == settlement.WinnerOutcome {
				exitPrice = 1.0
			}
			rawReturn := (exitPrice - entryPrice) / entryPrice
			if tradeSide == domain.SideShort {
				rawReturn = -rawReturn
			}
			proceeds = qty * exitPrice
			pnl := proceeds - cost

			exitNS := s.ts[len(s.ts)-1]
			if !settlement.ExpiryTime.IsZero() {
				expiryNS := settlement.ExpiryTime.UnixNano()
				if expiryNS >= entryNS {
					exitNS = expiryNS
				}
			}

			trade = domain.BacktestTrade{
				Asset:         tradeAsset,
				Side:          tradeSide,
				ViewAsset:     signal.Asset,
				ViewSide:      signal.Side,
				ViewOutcome:   signal.Outcome,
				TradedOutcome: tradedOutcome,
				SignalTime:    signal.Timestamp,
				EntryTime:     time.Unix(0, entryNS).UTC(),
				ExitTime:      time.Unix(0, exitNS).UTC(),
				EntryPrice:    entryPrice,
				ExitPrice:     exitPrice,
				RawReturn:     rawReturn,
				NetReturn:     pnl / cost,
				PnL:           pnl,
				Reason:        domain.ExitExpiry,
				Score:         signal.Score,
			}
		} else {
			horizonNS := entryNS + holdingNS
			// Último índice con ts <= horizonte
			horizonIdx := sort.Search(len(s.ts), func(m int) bool { return s.ts[m] > horizonNS }) - 1
			if horizonIdx <= entryIdx {
				continue
			}

			exitIdx := horizonIdx
			reason := domain.ExitTime

			if cfg.TakeProfit > 0 || cfg.StopLoss > 0 {
				tpHit, slHit := -1, -1
				for k := entryIdx + 1; k <= horizonIdx; k++ {
					relative := (s.prices[k] - entryPrice) / entryPrice
					if tradeSide == domain.SideShort {
						relative = -relative
					}
					if tpHit < 0 && cfg.TakeProfit > 0 && relative >= cfg.TakeProfit {
						tpHit = k
					}
					if slHit < 0 && cfg.StopLoss > 0 && relative <= -cfg.StopLoss {
						slHit = k
					}
					if tpHit >= 0 && slHit >= 0 {
						break
					}
				}
				switch {
				case tpHit >= 0 && slHit >= 0:
					// Empate en el mismo índice favorece el take profit.
					if tpHit <= slHit {
						exitIdx, reason = tpHit, domain.ExitTakeProfit
					} else {
						exitIdx, reason = slHit, domain.ExitStopLoss
					}
				case tpHit >= 0:
					exitIdx, reason = tpHit, domain.ExitTakeProfit
				case slHit >= 0:
					exitIdx, reason = slHit, domain.ExitStopLoss
				}
			}

			exitPrice := s.prices[exitIdx]
			rawReturn := (exitPrice - entryPrice) / entryPrice
			if tradeSide == domain.SideShort {
				rawReturn = -rawReturn
			}
			proceeds = qty * exitPrice * exitMult
			pnl := proceeds - cost

			trade = domain.BacktestTrade{
				Asset:         tradeAsset,
				Side:          tradeSide,
				ViewAsset:     signal.Asset,
				ViewSide:      signal.Side,
				ViewOutcome:   signal.Outcome,
				TradedOutcome: tradedOutcome,
				SignalTime:    signal.Timestamp,
				EntryTime:     time.Unix(0, entryNS).UTC(),
				ExitTime:      time.Unix(0, s.ts[exitIdx]).UTC(),
				EntryPrice:    entryPrice,
				ExitPrice:     exitPrice,
				RawReturn:     rawReturn,
				NetReturn:     pnl / cost,
				PnL:           pnl,
				Reason:        reason,
				Score:         signal.Score,
			}
		}

		completed = append(completed, trade)
		blockedUntil[blockKey] = trade.ExitTime.UnixNano()
		cash -= cost
		heap.Push(&open, openPosition{exitNS: trade.ExitTime.UnixNano(), proceeds: proceeds})
	}

	if len(completed) == 0 {
		return emptyResult(cfg.InitialCapital), nil
	}

	// Liquidar las posiciones que seguían abiertas al final.
	for len(open) > 0 {
		pos := heap.Pop(&open).(openPosition)
		cash += pos.proceeds
	}

	return aggregate(completed, cash, cfg.InitialCapital), nil
}

// aggregate calcula las estadísticas del resultado a partir de los trades
// completados y el cash final del ledger.
func aggregate(completed []domain.BacktestTrade, cash, initialCapital float64) domain.BacktestResult {
	n := len(completed)
	totalPnL := cash - initialCapital

	returnPct := 0.0
	if initialCapital != 0 {
		returnPct = totalPnL / initialCapital
	}

	var wins int
	var sumReturn, grossProfit, grossLoss float64
	for _, t := range completed {
		if t.PnL > 0 {
			wins++
			grossProfit += t.PnL
		} else if t.PnL < 0 {
			grossLoss += -t.PnL
		}
		sumReturn += t.NetReturn
	}
	avgReturn := sumReturn / float64(n)

	stdReturn := 0.0
	if n > 1 {
		var ss float64
		for _, t := range completed {
			d := t.NetReturn - avgReturn
			ss += d * d
		}
		stdReturn = math.Sqrt(ss / float64(n-1))
	}
	sharpe := 0.0
	if stdReturn > 0 {
		sharpe = avgReturn / stdReturn * math.Sqrt(float64(n))
	}

	profitFactor := 0.0
	switch {
	case grossLoss > 0:
		profitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		profitFactor = math.Inf(1)
	}

	// Drawdown sobre la curva de equity ordenada por exit time.
	byExit := make([]domain.BacktestTrade, n)
	copy(byExit, completed)
	sort.SliceStable(byExit, func(i, j int) bool {
		return byExit[i].ExitTime.Before(byExit[j].ExitTime)
	})
	equity := initialCapital
	peak := equity
	maxDrawdown := 0.0
	for _, t := range byExit {
		equity += t.PnL
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	return domain.BacktestResult{
		TotalPnL:      totalPnL,
		EndingCapital: cash,
		ReturnPct:     returnPct,
		NTrades:       n,
		WinRate:       float64(wins) / float64(n),
		AvgReturn:     avgReturn,
		Sharpe:        sharpe,
		MaxDrawdown:   maxDrawdown,
		ProfitFactor:  profitFactor,
		Trades:        completed,
	}
}

func emptyResult(initialCapital float64) domain.BacktestResult {
	return domain.BacktestResult{EndingCapital: initialCapital}
}

// buildAssetSeries indexa los precios de cada asset en orden canónico.
func buildAssetSeries(features []domain.FeatureRow) map[string]assetSeries {
	series := make(map[string]assetSeries)
	for i := range features {
		r := &features[i]
		s := series[r.Asset]
		s.ts = append(s.ts, r.Timestamp.UnixNano())
		s.prices = append(s.prices, r.Price)
		series[r.Asset] = s
	}
	return series
}

// buildBinaryOpposites construye los mapas (condición, asset) → asset opuesto
// y (condición, outcome) → outcome opuesto para sintetizar shorts. Solo
// condiciones con exactamente dos assets y dos outcomes distintos (etiqueta
// dominante por asset, robusta a outcomes ruidosos) entran en el mapa.
func buildBinaryOpposites(features []domain.FeatureRow) (map[[2]string]string, map[[2]string]string) {
	oppositeAsset := make(map[[2]string]string)
	oppositeOutcome := make(map[[2]string]string)

	dominant := dominantOutcomes(features)

	type pair struct {
		assets   []string
		outcomes []string
	}
	byCID := make(map[string]*pair)
	var cidOrder []string
	seen := make(map[[2]string]bool)

	for i := range features {
		r := &features[i]
		key := [2]string{r.ConditionID, r.Asset}
		if seen[key] {
			continue
		}
		seen[key] = true
		outcome, ok := dominant[key]
		if !ok {
			continue
		}
		p, ok := byCID[r.ConditionID]
		if !ok {
			p = &pair{}
			byCID[r.ConditionID] = p
			cidOrder = append(cidOrder, r.ConditionID)
		}
		p.assets = append(p.assets, r.Asset)
		p.outcomes = append(p.outcomes, outcome)
	}

	for _, cid := range cidOrder {
		p := byCID[cid]
		if len(p.assets) != 2 || p.outcomes[0] == p.outcomes[1] {
			continue
		}
		a1, a2 := p.assets[0], p.assets[1]
		o1, o2 := p.outcomes[0], p.outcomes[1]
		oppositeAsset[[2]string{cid, a1}] = a2
		oppositeAsset[[2]string{cid, a2}] = a1
		oppositeOutcome[[2]string{cid, o1}] = o2
		oppositeOutcome[[2]string{cid, o2}] = o1
	}

	return oppositeAsset, oppositeOutcome
}

// dominantOutcomes devuelve la etiqueta de outcome más frecuente por
// (condición, asset), ignorando filas sin outcome.
func dominantOutcomes(features []domain.FeatureRow) map[[2]string]string {
	counts := make(map[[2]string]map[string]int)
	orders := make(map[[2]string][]string)

	for i := range features {
		r := &features[i]
		if r.Outcome == "" {
			continue
		}
		key := [2]string{r.ConditionID, r.Asset}
		c, ok := counts[key]
		if !ok {
			c = make(map[string]int)
			counts[key] = c
		}
		if _, seen := c[r.Outcome]; !seen {
			orders[key] = append(orders[key], r.Outcome)
		}
		c[r.Outcome]++
	}

	dominant := make(map[[2]string]string, len(counts))
	for key, c := range counts {
		best := ""
		bestCount := 0
		for _, outcome := range orders[key] {
			if c[outcome] > bestCount {
				best = outcome
				bestCount = c[outcome]
			}
		}
		dominant[key] = best
	}
	return dominant
}

// RunOnTrades es el atajo trades → features → señales → backtest que usa el
// CLI. Mantiene la semántica "frame vacío ⇒ resultado vacío" del pipeline.
func RunOnTrades(trades []domain.Trade, detCfg flow.DetectorConfig, cfg Config, settlements map[string]domain.Settlement) (domain.BacktestResult, []domain.Signal, error) {
	features, err := flow.EngineerFeatures(trades, detCfg)
	if err != nil {
		return domain.BacktestResult{}, nil, err
	}
	if len(features) == 0 {
		return emptyResult(cfg.InitialCapital), nil, nil
	}
	signals := flow.DetectSignals(features, detCfg)
	result, err := Run(features, signals, cfg, Window{}, settlements)
	return result, signals, err
}
