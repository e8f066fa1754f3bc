package domain

import "time"

// Fuentes de la clasificación de frescura de un wallet.
const (
	FreshnessSample  = "sample"
	FreshnessOnchain = "onchain"
)

// WalletRank resume el edge realizado de un wallet sobre sus trades madurados.
type WalletRank struct {
	Wallet          string
	Trades          int
	RecentSkill     float64
	AvgSkill        float64
	RealizedEdge    float64
	RealizedWinRate float64
	TotalNotional   float64
	RankScore       float64
	Fresh           bool
	FreshnessSource string
}

// WalletFreshness marca wallets que parecen recién creados: primer trade
// in-sample cerca del final de la muestra y muy pocos trades en total.
// Un oráculo on-chain (ports.FirstSeenProvider) puede refinar el veredicto.
type WalletFreshness struct {
	Wallet       string
	FirstSeen    time.Time
	TradesInSpan int
	Fresh        bool
	Source       string // FreshnessSample o FreshnessOnchain
}

// MarketMetrics agrega la participación de flujo informado por mercado.
type MarketMetrics struct {
	ConditionID          string
	Slug                 string
	Trades               int
	Assets               int
	MarketWallets        int
	InformedWallets      int
	InformedWalletShare  float64
	InformedSignals      int
	SignalsPerInformed   float64
	FreshInformedWallets int
	FreshInformedShare   float64
}
