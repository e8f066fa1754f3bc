package ports

import (
	"context"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// Notifier presenta señales y resultados al usuario.
// En la implementación de consola, imprime tablas formateadas.
type Notifier interface {
	NotifySignals(ctx context.Context, signals []domain.Signal) error
	NotifyBacktest(ctx context.Context, result domain.BacktestResult) error
	NotifyWallets(ctx context.Context, ranking []domain.WalletRank) error
	NotifyMarkets(ctx context.Context, metrics []domain.MarketMetrics) error
}
