package polymarket

// trades.go — fetch paginado de trades públicos desde la Data API.
//
// La paginación, el dedup y los retries viven aquí; el core recibe
// RawRecords ya deduplicados y se encarga él de la normalización.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polyflow/internal/flow"
)

const tradesPerPage = 500

// rawTrade es el schema del endpoint /trades de la Data API.
type rawTrade struct {
	ConditionID     string      `json:"conditionId"`
	Asset           string      `json:"asset"`
	Side            string      `json:"side"`
	Price           json.Number `json:"price"`
	Size            json.Number `json:"size"`
	Timestamp       json.Number `json:"timestamp"`
	Outcome         string      `json:"outcome"`
	ProxyWallet     string      `json:"proxyWallet"`
	Slug            string      `json:"slug"`
	TransactionHash string      `json:"transactionHash"`
}

// dedupKey identifica un fill. El hash de transacción se repite entre fills
// de una misma transacción, así que la clave incluye asset/wallet/precio/size.
type dedupKey struct {
	hash   string
	asset  string
	wallet string
	price  string
	size   string
}

// FetchTradesByAsset devuelve hasta limit trades de un token, paginando la
// Data API y deduplicando entre páginas (el offset no es estable si entran
// trades nuevos durante el fetch).
func (c *Client) FetchTradesByAsset(ctx context.Context, assetID string, limit int) ([]flow.RawRecord, error) {
	return c.fetchTrades(ctx, "asset", assetID, limit)
}

// FetchTradesByCondition devuelve los trades de ambos tokens de un mercado.
func (c *Client) FetchTradesByCondition(ctx context.Context, conditionID string, limit int) ([]flow.RawRecord, error) {
	return c.fetchTrades(ctx, "market", conditionID, limit)
}

func (c *Client) fetchTrades(ctx context.Context, param, value string, limit int) ([]flow.RawRecord, error) {
	if limit <= 0 {
		limit = tradesPerPage
	}

	var records []flow.RawRecord
	seen := make(map[dedupKey]bool)

	for offset := 0; len(records) < limit; offset += tradesPerPage {
		url := fmt.Sprintf("%s/trades?%s=%s&limit=%d&offset=%d",
			c.dataBase, param, value, tradesPerPage, offset)

		var page []rawTrade
		if err := c.get(ctx, c.dataLimiter, url, &page); err != nil {
			return nil, fmt.Errorf("polymarket.fetchTrades: %w", err)
		}
		if len(page) == 0 {
			break
		}

		var duplicates int
		for _, rt := range page {
			key := dedupKey{
				hash:   rt.TransactionHash,
				asset:  rt.Asset,
				wallet: rt.ProxyWallet,
				price:  rt.Price.String(),
				size:   rt.Size.String(),
			}
			if seen[key] {
				duplicates++
				continue
			}
			seen[key] = true
			records = append(records, flow.RawRecord{
				Timestamp:   rt.Timestamp,
				Side:        rt.Side,
				Asset:       rt.Asset,
				ConditionID: rt.ConditionID,
				Outcome:     rt.Outcome,
				Wallet:      rt.ProxyWallet,
				Slug:        rt.Slug,
				Size:        rt.Size,
				Price:       rt.Price,
			})
		}

		slog.Debug("fetched trades page",
			param, value,
			"offset", offset,
			"count", len(page),
			"duplicates", duplicates,
			"total", len(records),
		)

		if len(page) < tradesPerPage {
			break
		}
	}

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
