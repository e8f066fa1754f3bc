package flow

import (
	"github.com/alejandrodnm/polyflow/internal/domain"
)

// DetectSignals recorre el frame de features en orden temporal y emite una
// señal por cada fila elegible que supere el umbral, respetando el cooldown
// por asset. Un frame vacío devuelve cero señales, no un error.
func DetectSignals(features []domain.FeatureRow, cfg DetectorConfig) []domain.Signal {
	if len(features) == 0 {
		return nil
	}

	cooldownSec := float64(cfg.CooldownMinutes) * 60
	if cooldownSec < 0 {
		cooldownSec = 0
	}

	var signals []domain.Signal
	lastSignal := make(map[string]int64) // asset → unix nanos de la última señal

	for i := range features {
		r := &features[i]
		if !r.EligibleSignal {
			continue
		}
		if r.InformedScore < cfg.SignalThreshold {
			continue
		}
		if cfg.LongOnly && r.DirectionScore <= 0 {
			continue
		}

		nowNS := r.Timestamp.UnixNano()
		if last, ok := lastSignal[r.Asset]; ok {
			if float64(nowNS-last)/1e9 < cooldownSec {
				continue
			}
		}

		side := domain.SideLong
		if r.DirectionScore < 0 {
			side = domain.SideShort
		}

		signals = append(signals, domain.Signal{
			Timestamp:       r.Timestamp,
			Asset:           r.Asset,
			ConditionID:     r.ConditionID,
			Outcome:         r.Outcome,
			Side:            side,
			Score:           r.InformedScore,
			Direction:       r.DirectionScore,
			FlowRatio:       r.FlowRatio,
			WalletSkill:     r.WalletSkill,
			Conviction:      r.ConvictionScore,
			TriggerWallet:   r.Wallet,
			TriggerNotional: r.Notional,
			TriggerPrice:    r.Price,
			Slug:            r.Slug,
		})
		lastSignal[r.Asset] = nowNS
	}

	return signals
}
