package domain

import "time"

// Lados de una señal. En mercados binarios un short se ejecuta como long
// del token del outcome opuesto; el lado aquí es la "vista" del detector.
const (
	SideLong  = "long"
	SideShort = "short"
)

// Signal es una señal discreta de flujo informado sobre un asset.
// Se emite como máximo una por asset dentro de la ventana de cooldown.
type Signal struct {
	Timestamp   time.Time
	Asset       string
	ConditionID string
	Outcome     string
	Side        string // SideLong o SideShort
	Score       float64
	Direction   float64 // direction_score con signo
	FlowRatio   float64
	WalletSkill float64
	Conviction  float64

	// Trade que disparó la señal
	TriggerWallet   string
	TriggerNotional float64
	TriggerPrice    float64
	Slug            string
}
