package flow

// report.go — agregaciones read-only sobre el frame de features y las señales:
// ranking de wallets por edge realizado y métricas de participación por mercado.

import (
	"math"
	"sort"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// Pesos del score de ranking de wallets.
const (
	rankWeightRecentSkill  = 0.45
	rankWeightRealizedEdge = 0.35
	rankWeightNotional     = 0.20
)

// RankWallets ordena los wallets por su edge realizado sobre trades ya
// madurados. Solo cuentan filas con forward return conocido; wallets con
// menos de cfg.MinWalletHistory trades madurados se excluyen. freshness es
// opcional y solo anota los flags, no altera el orden.
func RankWallets(features []domain.FeatureRow, cfg DetectorConfig, topN int, freshness map[string]domain.WalletFreshness) []domain.WalletRank {
	if topN <= 0 {
		topN = 20
	}

	type acc struct {
		trades        int
		recentSkill   float64
		sumSkill      float64
		sumReturn     float64
		wins          int
		totalNotional float64
	}
	byWallet := make(map[string]*acc)
	var order []string

	for i := range features {
		r := &features[i]
		if !r.Matured() {
			continue
		}
		a, ok := byWallet[r.Wallet]
		if !ok {
			a = &acc{}
			byWallet[r.Wallet] = a
			order = append(order, r.Wallet)
		}
		a.trades++
		a.recentSkill = r.WalletSkill
		a.sumSkill += r.WalletSkill
		a.sumReturn += r.SignedForwardReturn
		if r.SignedForwardReturn > 0 {
			a.wins++
		}
		a.totalNotional += r.Notional
	}

	ranking := make([]domain.WalletRank, 0, len(order))
	for _, wallet := range order {
		a := byWallet[wallet]
		if a.trades < cfg.MinWalletHistory {
			continue
		}
		edge := a.sumReturn / float64(a.trades)
		rank := domain.WalletRank{
			Wallet:          wallet,
			Trades:          a.trades,
			RecentSkill:     a.recentSkill,
			AvgSkill:        a.sumSkill / float64(a.trades),
			RealizedEdge:    edge,
			RealizedWinRate: float64(a.wins) / float64(a.trades),
			TotalNotional:   a.totalNotional,
			RankScore: rankWeightRecentSkill*math.Max(a.recentSkill, 0) +
				rankWeightRealizedEdge*math.Max(edge, 0) +
				rankWeightNotional*math.Log1p(a.totalNotional),
		}
		if f, ok := freshness[wallet]; ok {
			rank.Fresh = f.Fresh
			rank.FreshnessSource = f.Source
		}
		ranking = append(ranking, rank)
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].RankScore > ranking[j].RankScore
	})
	if len(ranking) > topN {
		ranking = ranking[:topN]
	}
	return ranking
}

// MarketMetricsReport resume la participación de flujo informado por mercado:
// cuántos wallets operan cada condición, cuántos dispararon señales y qué
// fracción de esos parecen wallets frescos.
func MarketMetricsReport(features []domain.FeatureRow, signals []domain.Signal, freshness map[string]domain.WalletFreshness) []domain.MarketMetrics {
	if len(features) == 0 {
		return nil
	}

	informedByCID := make(map[string]map[string]bool)
	signalCountByCID := make(map[string]int)
	for _, s := range signals {
		set, ok := informedByCID[s.ConditionID]
		if !ok {
			set = make(map[string]bool)
			informedByCID[s.ConditionID] = set
		}
		set[s.TriggerWallet] = true
		signalCountByCID[s.ConditionID]++
	}

	type acc struct {
		trades     int
		assets     map[string]bool
		wallets    map[string]bool
		slugCounts map[string]int
		slugOrder  []string
	}
	byCID := make(map[string]*acc)
	var order []string

	for i := range features {
		r := &features[i]
		a, ok := byCID[r.ConditionID]
		if !ok {
			a = &acc{
				assets:     make(map[string]bool),
				wallets:    make(map[string]bool),
				slugCounts: make(map[string]int),
			}
			byCID[r.ConditionID] = a
			order = append(order, r.ConditionID)
		}
		a.trades++
		a.assets[r.Asset] = true
		a.wallets[r.Wallet] = true
		if r.Slug != "" {
			if _, seen := a.slugCounts[r.Slug]; !seen {
				a.slugOrder = append(a.slugOrder, r.Slug)
			}
			a.slugCounts[r.Slug]++
		}
	}

	metrics := make([]domain.MarketMetrics, 0, len(order))
	for _, cid := range order {
		a := byCID[cid]
		informed := informedByCID[cid]
		signalCount := signalCountByCID[cid]

		share := 0.0
		if len(a.wallets) > 0 {
			share = float64(len(informed)) / float64(len(a.wallets))
		}
		perWallet := 0.0
		if len(informed) > 0 {
			perWallet = float64(signalCount) / float64(len(informed))
		}

		freshInformed := 0
		for wallet := range informed {
			if f, ok := freshness[wallet]; ok && f.Fresh {
				freshInformed++
			}
		}
		freshShare := 0.0
		if len(informed) > 0 {
			freshShare = float64(freshInformed) / float64(len(informed))
		}

		metrics = append(metrics, domain.MarketMetrics{
			ConditionID:          cid,
			Slug:                 dominantSlug(a.slugCounts, a.slugOrder),
			Trades:               a.trades,
			Assets:               len(a.assets),
			MarketWallets:        len(a.wallets),
			InformedWallets:      len(informed),
			InformedWalletShare:  share,
			InformedSignals:      signalCount,
			SignalsPerInformed:   perWallet,
			FreshInformedWallets: freshInformed,
			FreshInformedShare:   freshShare,
		})
	}

	sort.SliceStable(metrics, func(i, j int) bool {
		if metrics[i].InformedWallets != metrics[j].InformedWallets {
			return metrics[i].InformedWallets > metrics[j].InformedWallets
		}
		if metrics[i].InformedSignals != metrics[j].InformedSignals {
			return metrics[i].InformedSignals > metrics[j].InformedSignals
		}
		return metrics[i].Trades > metrics[j].Trades
	})
	return metrics
}

// dominantSlug devuelve el slug más frecuente; empates se resuelven por
// orden de primera aparición para mantener el determinismo.
func dominantSlug(counts map[string]int, order []string) string {
	best := ""
	bestCount := 0
	for _, slug := range order {
		if counts[slug] > bestCount {
			best = slug
			bestCount = counts[slug]
		}
	}
	return best
}
