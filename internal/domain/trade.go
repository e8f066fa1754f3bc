package domain

import (
	"math"
	"time"
)

// Trade es un trade normalizado e inmutable del stream histórico.
type Trade struct {
	Timestamp   time.Time
	Asset       string
	ConditionID string
	Outcome     string
	Side        string // "BUY" o "SELL"
	Size        float64
	Price       float64
	Wallet      string
	Slug        string

	// Derivados en la normalización, nunca recalculados después.
	Direction      float64 // +1 BUY, -1 SELL
	Notional       float64 // |size × price|
	SignedNotional float64 // direction × notional
}

// Before compara por la clave de orden canónica del pipeline:
// (timestamp, condition_id, asset, wallet, side, price, size).
// El desempate total hace que cualquier permutación de las mismas filas
// produzca exactamente el mismo frame canónico.
func (t Trade) Before(o Trade) bool {
	if !t.Timestamp.Equal(o.Timestamp) {
		return t.Timestamp.Before(o.Timestamp)
	}
	if t.ConditionID != o.ConditionID {
		return t.ConditionID < o.ConditionID
	}
	if t.Asset != o.Asset {
		return t.Asset < o.Asset
	}
	if t.Wallet != o.Wallet {
		return t.Wallet < o.Wallet
	}
	if t.Side != o.Side {
		return t.Side < o.Side
	}
	if t.Price != o.Price {
		return t.Price < o.Price
	}
	return t.Size < o.Size
}

// FeatureRow es un Trade anotado con todas las features del pipeline.
// Los campos float64 usan NaN como "no definido" (trade sin madurar,
// ventana rolling con historia insuficiente, etc.).
type FeatureRow struct {
	Trade

	// Forward return (NaN mientras el trade no madura)
	FuturePrice         float64
	ForwardReturn       float64
	SignedForwardReturn float64

	// Skill online del wallet en el instante del trade (estrictamente causal)
	WalletObs   int
	WalletEdge  float64
	WalletVol   float64
	WalletSkill float64

	// Convicción y burst
	ConvictionZ     float64
	ConvictionScore float64
	BurstScore      float64

	// Ratios rolling por asset
	FlowRatio           float64
	SkillFlowRatio      float64
	ConvictionFlowRatio float64
	BurstFlowRatio      float64

	// Señal compuesta
	DirectionScore float64
	InformedScore  float64
	SignalSide     string // "long" o "short"
	EligibleSignal bool
}

// Matured indica si el forward return del trade ya es conocible.
func (f FeatureRow) Matured() bool {
	return !math.IsNaN(f.SignedForwardReturn)
}
