package flow

import (
	"math"
	"sort"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// annotateForwardReturns anota cada fila con el primer precio del mismo asset
// en o después de timestamp + horizon (nearest-neighbor hacia adelante).
// Sin punto futuro en el dataset el return queda NaN: el trade está "sin
// madurar" y no entrena el skill tracker hasta que madure.
func annotateForwardReturns(rows []domain.FeatureRow, horizonMinutes int) {
	if horizonMinutes <= 0 {
		for i := range rows {
			rows[i].FuturePrice = rows[i].Price
			rows[i].ForwardReturn = 0
			rows[i].SignedForwardReturn = 0
		}
		return
	}

	horizonNS := int64(horizonMinutes) * int64(60*1e9)

	// Índices por asset en orden canónico; dentro de un asset los timestamps
	// quedan no-decrecientes, así que vale búsqueda binaria.
	byAsset := groupIndicesByAsset(rows)
	for _, idxs := range byAsset {
		ts := make([]int64, len(idxs))
		for k, i := range idxs {
			ts[k] = rows[i].Timestamp.UnixNano()
		}
		for k, i := range idxs {
			target := ts[k] + horizonNS
			j := sort.Search(len(ts), func(m int) bool { return ts[m] >= target })
			if j >= len(ts) {
				rows[i].FuturePrice = math.NaN()
				rows[i].ForwardReturn = math.NaN()
				rows[i].SignedForwardReturn = math.NaN()
				continue
			}
			future := rows[idxs[j]].Price
			ret := (future - rows[i].Price) / math.Max(rows[i].Price, 1e-8)
			rows[i].FuturePrice = future
			rows[i].ForwardReturn = ret
			rows[i].SignedForwardReturn = rows[i].Direction * ret
		}
	}
}

// groupIndicesByAsset agrupa los índices de filas por asset preservando el
// orden canónico dentro de cada grupo.
func groupIndicesByAsset(rows []domain.FeatureRow) map[string][]int {
	groups := make(map[string][]int)
	for i := range rows {
		groups[rows[i].Asset] = append(groups[rows[i].Asset], i)
	}
	return groups
}
