package flow

import (
	"fmt"
	"math"
)

// DetectorConfig controla el feature engineering y la emisión de señales.
// Inmutable una vez construida; el optimizador trabaja sobre copias.
type DetectorConfig struct {
	HorizonMinutes       int     // horizonte del forward return
	LookbackTrades       int     // ventana rolling por asset (mínimo 2)
	SignalThreshold      float64 // score mínimo para emitir señal
	CooldownMinutes      int     // distancia mínima entre señales del mismo asset
	MinWalletHistory     int     // trades madurados mínimos del wallet
	MinTradeNotional     float64 // notional mínimo del trade disparador
	PriorCount           float64 // prior bayesiano del shrinkage de skill
	EdgeVolFloor         float64 // suelo de volatilidad al estandarizar el edge
	BurstHalfLifeMinutes float64 // half-life del decay del burst score
	FlowWeight           float64
	SkillWeight          float64
	ConvictionWeight     float64
	BurstWeight          float64
	LongOnly             bool
}

// DefaultDetectorConfig devuelve los parámetros por defecto del detector.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		HorizonMinutes:       30,
		LookbackTrades:       40,
		SignalThreshold:      0.28,
		CooldownMinutes:      45,
		MinWalletHistory:     0,
		MinTradeNotional:     150.0,
		PriorCount:           8.0,
		EdgeVolFloor:         0.01,
		BurstHalfLifeMinutes: 25.0,
		FlowWeight:           0.30,
		SkillWeight:          0.45,
		ConvictionWeight:     0.15,
		BurstWeight:          0.10,
		LongOnly:             false,
	}
}

// WeightSum devuelve la suma de los pesos del blend direccional.
func (c DetectorConfig) WeightSum() float64 {
	return c.FlowWeight + c.SkillWeight + c.ConvictionWeight + c.BurstWeight
}

// Validate comprueba los rangos estructurales de la configuración.
func (c DetectorConfig) Validate() error {
	if c.LookbackTrades < 2 {
		return fmt.Errorf("flow.DetectorConfig: lookback_trades must be at least 2, got %d", c.LookbackTrades)
	}
	if c.WeightSum() <= 0 {
		return fmt.Errorf("flow.DetectorConfig: flow weights must sum to a positive number")
	}
	return nil
}

// WithParam devuelve una copia de la configuración con el parámetro dado
// sobrescrito. Las claves son las del grid del optimizador; una clave
// desconocida es un error fatal.
func (c DetectorConfig) WithParam(key string, value any) (DetectorConfig, error) {
	switch key {
	case "horizon_minutes":
		n, err := toInt(key, value)
		if err != nil {
			return c, err
		}
		c.HorizonMinutes = n
	case "lookback_trades":
		n, err := toInt(key, value)
		if err != nil {
			return c, err
		}
		c.LookbackTrades = n
	case "signal_threshold":
		f, err := toFloat(key, value)
		if err != nil {
			return c, err
		}
		c.SignalThreshold = f
	case "cooldown_minutes":
		n, err := toInt(key, value)
		if err != nil {
			return c, err
		}
		c.CooldownMinutes = n
	case "min_wallet_history":
		n, err := toInt(key, value)
		if err != nil {
			return c, err
		}
		c.MinWalletHistory = n
	case "min_trade_notional":
		f, err := toFloat(key, value)
		if err != nil {
			return c, err
		}
		c.MinTradeNotional = f
	case "prior_count":
		f, err := toFloat(key, value)
		if err != nil {
			return c, err
		}
		c.PriorCount = f
	case "edge_vol_floor":
		f, err := toFloat(key, value)
		if err != nil {
			return c, err
		}
		c.EdgeVolFloor = f
	case "burst_half_life_minutes":
		f, err := toFloat(key, value)
		if err != nil {
			return c, err
		}
		c.BurstHalfLifeMinutes = f
	case "flow_weight":
		f, err := toFloat(key, value)
		if err != nil {
			return c, err
		}
		c.FlowWeight = f
	case "skill_weight":
		f, err := toFloat(key, value)
		if err != nil {
			return c, err
		}
		c.SkillWeight = f
	case "conviction_weight":
		f, err := toFloat(key, value)
		if err != nil {
			return c, err
		}
		c.ConvictionWeight = f
	case "burst_weight":
		f, err := toFloat(key, value)
		if err != nil {
			return c, err
		}
		c.BurstWeight = f
	case "long_only":
		b, ok := value.(bool)
		if !ok {
			return c, fmt.Errorf("flow.DetectorConfig: long_only expects bool, got %T", value)
		}
		c.LongOnly = b
	default:
		return c, fmt.Errorf("flow.DetectorConfig: unknown optimization parameter %q", key)
	}
	return c, nil
}

func toFloat(key string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return math.NaN(), fmt.Errorf("flow.DetectorConfig: %s expects a number, got %T", key, value)
}

func toInt(key string, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("flow.DetectorConfig: %s expects an integer, got %T", key, value)
}
