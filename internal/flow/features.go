package flow

// features.go — composición del score de flujo informado por asset.
//
// Pipeline de una pasada sobre el frame canónico: forward returns → skill
// online → convicción (z-score sin lookahead) → burst → sumas rolling por
// asset → ratios → blend direccional. Toda estadística histórica usa solo
// filas estrictamente anteriores a la actual.

import (
	"math"
	"sort"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// índices de las series rolling por asset
const (
	rollSigned = iota
	rollNotional
	rollSkill
	rollConviction
	rollBurst
	rollSeries
)

// EngineerFeatures construye el frame de features a partir de trades
// normalizados. Devuelve error si la configuración es estructuralmente
// inválida (lookback < 2, suma de pesos no positiva); un dataset vacío
// devuelve un frame vacío, no un error.
func EngineerFeatures(trades []domain.Trade, cfg DetectorConfig) ([]domain.FeatureRow, error) {
	if len(trades) == 0 {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ordered := make([]domain.Trade, len(trades))
	copy(ordered, trades)
	SortTrades(ordered)

	rows := make([]domain.FeatureRow, len(ordered))
	for i, t := range ordered {
		rows[i] = domain.FeatureRow{Trade: t}
	}

	annotateForwardReturns(rows, cfg.HorizonMinutes)
	annotateWalletSkill(rows, cfg)
	annotateConviction(rows)
	annotateBurst(rows, cfg.BurstHalfLifeMinutes)
	annotateFlowRatios(rows, cfg.LookbackTrades)

	weightSum := cfg.WeightSum()
	for i := range rows {
		r := &rows[i]
		r.DirectionScore = (cfg.FlowWeight*r.FlowRatio +
			cfg.SkillWeight*r.SkillFlowRatio +
			cfg.ConvictionWeight*r.ConvictionFlowRatio +
			cfg.BurstWeight*r.BurstFlowRatio) / weightSum
		r.InformedScore = math.Abs(r.DirectionScore)

		if r.DirectionScore >= 0 {
			r.SignalSide = domain.SideLong
		} else {
			r.SignalSide = domain.SideShort
		}

		r.EligibleSignal = r.Notional >= cfg.MinTradeNotional &&
			r.WalletObs >= cfg.MinWalletHistory &&
			!math.IsNaN(r.InformedScore)
	}

	return rows, nil
}

// annotateConviction calcula el z-score de log1p(notional) contra la media y
// desviación expanding del asset desplazadas una fila: la fila actual nunca
// entra en su propia referencia histórica. Sin historia del asset se usa la
// mediana y desviación global como fallback.
func annotateConviction(rows []domain.FeatureRow) {
	logN := make([]float64, len(rows))
	for i := range rows {
		logN[i] = math.Log1p(rows[i].Notional)
	}

	fallbackMean := median(logN)
	fallbackStd := 0.0
	if len(logN) > 1 {
		fallbackStd = populationStd(logN)
	}

	type expanding struct {
		n    int
		mean float64
		m2   float64
	}
	hist := make(map[string]*expanding)

	for i := range rows {
		asset := rows[i].Asset
		e, ok := hist[asset]
		if !ok {
			e = &expanding{}
			hist[asset] = e
		}

		histMean, histStd := fallbackMean, fallbackStd
		if e.n > 0 {
			histMean = e.mean
			histStd = math.Sqrt(e.m2 / float64(e.n))
		}

		z := (logN[i] - histMean) / (histStd + 0.25)
		if math.IsNaN(z) || math.IsInf(z, 0) {
			z = 0
		}
		rows[i].ConvictionZ = z
		rows[i].ConvictionScore = clamp(math.Tanh(z/2), 0, 1)

		// shift(1): la fila entra en la historia después de ser evaluada
		e.n++
		delta := logN[i] - e.mean
		e.mean += delta / float64(e.n)
		e.m2 += delta * (logN[i] - e.mean)
	}
}

// annotateBurst asigna exp(-Δt/half_life) sobre el tiempo desde el último
// trade del mismo wallet en el mismo asset. Primer trade del par → 0.
func annotateBurst(rows []domain.FeatureRow, halfLifeMinutes float64) {
	halfLife := math.Max(halfLifeMinutes, 1e-6)

	type key struct{ wallet, asset string }
	lastNS := make(map[key]int64)

	for i := range rows {
		k := key{rows[i].Wallet, rows[i].Asset}
		now := rows[i].Timestamp.UnixNano()
		if prev, ok := lastNS[k]; ok {
			minutes := float64(now-prev) / float64(60*1e9)
			rows[i].BurstScore = math.Exp(-minutes / halfLife)
		} else {
			rows[i].BurstScore = 0
		}
		lastNS[k] = now
	}
}

// annotateFlowRatios calcula las sumas rolling de los últimos lookback trades
// por asset y las convierte en ratios normalizados por el notional absoluto.
// Con menos de 2 trades en ventana los ratios quedan NaN (sin señal).
func annotateFlowRatios(rows []domain.FeatureRow, lookback int) {
	type window struct {
		vals [][rollSeries]float64
		sums [rollSeries]float64
	}
	windows := make(map[string]*window)

	for i := range rows {
		r := &rows[i]

		var current [rollSeries]float64
		current[rollSigned] = r.SignedNotional
		current[rollNotional] = r.Notional
		current[rollSkill] = r.SignedNotional * math.Max(r.WalletSkill, 0)
		current[rollConviction] = r.SignedNotional * r.ConvictionScore
		current[rollBurst] = r.SignedNotional * r.BurstScore

		w, ok := windows[r.Asset]
		if !ok {
			w = &window{}
			windows[r.Asset] = w
		}
		w.vals = append(w.vals, current)
		for s := 0; s < rollSeries; s++ {
			w.sums[s] += current[s]
		}
		if len(w.vals) > lookback {
			for s := 0; s < rollSeries; s++ {
				w.sums[s] -= w.vals[0][s]
			}
			w.vals = w.vals[1:]
		}

		if len(w.vals) < 2 {
			r.FlowRatio = math.NaN()
			r.SkillFlowRatio = math.NaN()
			r.ConvictionFlowRatio = math.NaN()
			r.BurstFlowRatio = math.NaN()
			continue
		}

		denom := math.Max(math.Abs(w.sums[rollNotional]), 1e-8)
		r.FlowRatio = clamp(w.sums[rollSigned]/denom, -1, 1)
		r.SkillFlowRatio = clamp(w.sums[rollSkill]/denom, -1, 1)
		r.ConvictionFlowRatio = clamp(w.sums[rollConviction]/denom, -1, 1)
		r.BurstFlowRatio = clamp(w.sums[rollBurst]/denom, -1, 1)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func populationStd(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}
