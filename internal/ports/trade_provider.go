package ports

import (
	"context"

	"github.com/alejandrodnm/polyflow/internal/flow"
)

// TradeProvider obtiene el histórico de trades ejecutados de un mercado.
// La paginación, el dedup y los retries son responsabilidad del adapter,
// no del core.
type TradeProvider interface {
	// FetchTradesByAsset devuelve los trades de un token concreto.
	FetchTradesByAsset(ctx context.Context, assetID string, limit int) ([]flow.RawRecord, error)

	// FetchTradesByCondition devuelve los trades de ambos tokens de un
	// mercado binario, necesarios para sintetizar shorts en el backtest.
	FetchTradesByCondition(ctx context.Context, conditionID string, limit int) ([]flow.RawRecord, error)
}
