package ports

import (
	"context"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// SettlementProvider resuelve el outcome ganador y el expiry de mercados.
// Solo los mercados con resolución explícita aparecen en el mapa; el
// simulador salta condiciones sin resolver.
type SettlementProvider interface {
	FetchSettlements(ctx context.Context, conditionIDs []string) (map[string]domain.Settlement, error)
}
