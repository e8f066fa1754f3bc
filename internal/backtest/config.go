package backtest

// Config controla la simulación de ejecución contra señales.
// TakeProfit/StopLoss ≤ 0 desactivan el límite correspondiente.
type Config struct {
	HoldingMinutes int     // ventana de holding en la política time-based
	TakeProfit     float64 // ratio sobre el precio de entrada de la posición
	StopLoss       float64 // ratio de pérdida sobre el precio de entrada
	PositionSize   float64 // desembolso bruto fijo por trade (USDC)
	FeeBps         float64 // coste one-way en basis points
	SlippageBps    float64 // slippage one-way en basis points
	InitialCapital float64

	// AllowShort permite expresar shorts comprando el token del outcome
	// opuesto; en mercados binarios no hay shorting desnudo.
	AllowShort bool

	// HoldToExpiry ignora holding/TP/SL y liquida al payout final (0/1).
	// Requiere pasar el mapa de settlements a Run.
	HoldToExpiry bool
}

// DefaultConfig devuelve la configuración de backtest por defecto.
func DefaultConfig() Config {
	return Config{
		HoldingMinutes: 60,
		TakeProfit:     0.10,
		StopLoss:       0.08,
		PositionSize:   500.0,
		FeeBps:         0.0,
		SlippageBps:    50.0,
		InitialCapital: 10_000.0,
		AllowShort:     true,
		HoldToExpiry:   false,
	}
}
