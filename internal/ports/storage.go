package ports

import (
	"context"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// RunRecord es el snapshot persistido de una ejecución del detector.
type RunRecord struct {
	ID      string // uuid
	Market  string
	Mode    string // detect | backtest | optimize
	Config  string // snapshot YAML de la configuración usada
	Result  domain.BacktestResult
	Signals []domain.Signal
}

// Storage persiste señales y resultados de backtest por ejecución.
type Storage interface {
	// SaveRun persiste la ejecución completa: cabecera, señales y trades.
	SaveRun(ctx context.Context, run RunRecord) error

	// GetRuns devuelve las últimas n cabeceras de ejecución.
	GetRuns(ctx context.Context, n int) ([]RunRecord, error)

	// Close cierra la conexión limpiamente.
	Close() error
}
