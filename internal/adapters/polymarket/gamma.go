package polymarket

// gamma.go — resolución de settlements desde la metadata de Gamma.
//
// Un mercado solo se considera resuelto cuando sus outcomePrices son
// terminales: el máximo ≥ 0.999 y el resto ≤ 0.001. Cualquier otra cosa
// (mid-price alto incluido) NO es un settlement; el simulador salta esas
// condiciones en hold-to-expiry.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

type rawMarket struct {
	ConditionID   string `json:"conditionId"`
	Outcomes      string `json:"outcomes"`      // JSON array codificado como string
	OutcomePrices string `json:"outcomePrices"` // ídem
	ClosedTime    string `json:"closedTime"`
	EndDate       string `json:"endDate"`
}

// FetchSettlements resuelve outcome ganador y expiry para cada condición.
// Las condiciones sin resolución terminal no aparecen en el mapa devuelto.
func (c *Client) FetchSettlements(ctx context.Context, conditionIDs []string) (map[string]domain.Settlement, error) {
	settlements := make(map[string]domain.Settlement, len(conditionIDs))

	for _, cid := range conditionIDs {
		url := fmt.Sprintf("%s/markets?condition_ids=%s", c.gammaBase, cid)

		var markets []rawMarket
		if err := c.get(ctx, c.gammaLimiter, url, &markets); err != nil {
			return nil, fmt.Errorf("polymarket.FetchSettlements: %w", err)
		}
		if len(markets) == 0 {
			slog.Debug("no gamma market for condition", "condition_id", cid)
			continue
		}

		settlement, ok := inferSettlement(markets[0])
		if !ok {
			slog.Debug("market not terminally resolved", "condition_id", cid)
			continue
		}
		settlements[cid] = settlement
	}

	return settlements, nil
}

// inferSettlement extrae el ganador de los outcomePrices terminales y el
// expiry de closedTime (o endDate como fallback).
func inferSettlement(m rawMarket) (domain.Settlement, bool) {
	var outcomes []string
	var prices []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return domain.Settlement{}, false
	}
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
		return domain.Settlement{}, false
	}
	if len(outcomes) == 0 || len(outcomes) != len(prices) {
		return domain.Settlement{}, false
	}

	maxIdx := -1
	maxVal := -1.0
	values := make([]float64, len(prices))
	for i, p := range prices {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return domain.Settlement{}, false
		}
		values[i] = v
		if v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}

	if maxVal < 0.999 {
		return domain.Settlement{}, false
	}
	for i, v := range values {
		if i != maxIdx && v > 0.001 {
			return domain.Settlement{}, false
		}
	}

	return domain.Settlement{
		WinnerOutcome: outcomes[maxIdx],
		ExpiryTime:    parseGammaTime(m.ClosedTime, m.EndDate),
	}, true
}

func parseGammaTime(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05-07", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Time{}
}
