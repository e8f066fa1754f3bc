package flow

import (
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// WalletFreshnessReport clasifica cada wallet como "fresco" o no.
//
// Heurística in-sample: el primer trade del wallet cae dentro de windowHours
// del final de la muestra Y el wallet tiene como mucho maxTrades trades.
// Si firstSeen aporta la fecha on-chain de un wallet, esa fecha sustituye a
// la heurística (solo cuenta la ventana, no el número de trades) y la fuente
// pasa a ser "onchain". windowHours negativo desactiva la clasificación.
func WalletFreshnessReport(features []domain.FeatureRow, windowHours float64, maxTrades int, firstSeen map[string]time.Time) map[string]domain.WalletFreshness {
	if len(features) == 0 {
		return nil
	}

	sampleEnd := features[len(features)-1].Timestamp

	type acc struct {
		first  time.Time
		trades int
	}
	byWallet := make(map[string]*acc)
	for i := range features {
		r := &features[i]
		a, ok := byWallet[r.Wallet]
		if !ok {
			byWallet[r.Wallet] = &acc{first: r.Timestamp, trades: 1}
			continue
		}
		a.trades++
	}

	window := time.Duration(windowHours * float64(time.Hour))
	report := make(map[string]domain.WalletFreshness, len(byWallet))
	for wallet, a := range byWallet {
		entry := domain.WalletFreshness{
			Wallet:       wallet,
			FirstSeen:    a.first,
			TradesInSpan: a.trades,
			Source:       domain.FreshnessSample,
		}
		if onchain, ok := firstSeen[wallet]; ok && !onchain.IsZero() {
			entry.FirstSeen = onchain
			entry.Source = domain.FreshnessOnchain
			entry.Fresh = windowHours >= 0 && sampleEnd.Sub(onchain) <= window
		} else {
			entry.Fresh = windowHours >= 0 &&
				sampleEnd.Sub(a.first) <= window &&
				a.trades <= maxTrades
		}
		report[wallet] = entry
	}
	return report
}
