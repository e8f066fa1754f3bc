package domain

import "time"

// Motivos de salida de un trade simulado.
const (
	ExitTime       = "time"
	ExitTakeProfit = "take_profit"
	ExitStopLoss   = "stop_loss"
	ExitExpiry     = "expiry"
)

// BacktestTrade is a completed simulated trade created from a signal.
// View* fields keep the detector's original view; Asset/Side/TradedOutcome
// describe what was actually traded (shorts become longs on the opposite token).
type BacktestTrade struct {
	Asset         string
	Side          string
	ViewAsset     string
	ViewSide      string
	ViewOutcome   string
	TradedOutcome string

	SignalTime time.Time
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64

	RawReturn float64 // movimiento de precio relativo a la posición
	NetReturn float64 // pnl / coste, neto de fees y slippage
	PnL       float64
	Reason    string
	Score     float64
}

// BacktestResult agrega las estadísticas de una simulación completa.
// Con cero trades todos los campos son cero salvo EndingCapital.
type BacktestResult struct {
	TotalPnL      float64
	EndingCapital float64
	ReturnPct     float64
	NTrades       int
	WinRate       float64
	AvgReturn     float64
	Sharpe        float64
	MaxDrawdown   float64
	ProfitFactor  float64
	Trades        []BacktestTrade
}

// Settlement es la resolución externa de un mercado binario:
// outcome ganador y momento de expiry. Solo necesario en hold-to-expiry.
type Settlement struct {
	WinnerOutcome string
	ExpiryTime    time.Time
}
