package flow

// skill.go — estimador online y causal del edge direccional de cada wallet.
//
// La causalidad se garantiza con un min-heap de maduración: el forward return
// de un trade solo entra en las estadísticas de su wallet cuando el reloj del
// stream alcanza trade_time + horizon. Al procesar la fila i se pliegan antes
// todas las entradas ya maduras, y solo después se leen las estadísticas del
// wallet para calcular el skill de la fila. La fila nunca ve su propio
// resultado sin realizar.

import (
	"container/heap"
	"math"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// pendingReturn es un forward return en espera de madurar.
type pendingReturn struct {
	maturityNS int64
	wallet     string
	value      float64
}

// maturationHeap es un min-heap por (maturity, wallet, value) para que el
// orden de plegado en empates sea determinista.
type maturationHeap []pendingReturn

func (h maturationHeap) Len() int { return len(h) }

func (h maturationHeap) Less(i, j int) bool {
	if h[i].maturityNS != h[j].maturityNS {
		return h[i].maturityNS < h[j].maturityNS
	}
	if h[i].wallet != h[j].wallet {
		return h[i].wallet < h[j].wallet
	}
	return h[i].value < h[j].value
}

func (h maturationHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *maturationHeap) Push(x any) { *h = append(*h, x.(pendingReturn)) }

func (h *maturationHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// walletStats son las estadísticas running de Welford de un wallet.
type walletStats struct {
	n    int
	mean float64
	m2   float64
}

func (w *walletStats) fold(value float64) {
	w.n++
	delta := value - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (value - w.mean)
}

// skillTracker es el estado mutable de una pasada, creado por invocación y
// descartado al terminar. Nunca se comparte entre runs.
type skillTracker struct {
	cfg       DetectorConfig
	horizonNS int64
	stats     map[string]*walletStats
	pending   maturationHeap
}

func newSkillTracker(cfg DetectorConfig) *skillTracker {
	horizon := cfg.HorizonMinutes
	if horizon < 0 {
		horizon = 0
	}
	return &skillTracker{
		cfg:       cfg,
		horizonNS: int64(horizon) * int64(60*1e9),
		stats:     make(map[string]*walletStats),
	}
}

// annotateWalletSkill calcula wallet_obs/edge/vol/skill para cada fila en una
// sola pasada cronológica. Requiere las filas ya anotadas con forward returns
// y en orden canónico.
func annotateWalletSkill(rows []domain.FeatureRow, cfg DetectorConfig) {
	t := newSkillTracker(cfg)
	for i := range rows {
		t.observe(&rows[i])
	}
}

// observe pliega lo madurado, lee las stats del wallet y encola el return de
// esta fila para su maduración futura.
func (t *skillTracker) observe(row *domain.FeatureRow) {
	nowNS := row.Timestamp.UnixNano()

	for len(t.pending) > 0 && t.pending[0].maturityNS <= nowNS {
		entry := heap.Pop(&t.pending).(pendingReturn)
		if math.IsNaN(entry.value) {
			continue
		}
		ws, ok := t.stats[entry.wallet]
		if !ok {
			ws = &walletStats{}
			t.stats[entry.wallet] = ws
		}
		ws.fold(entry.value)
	}

	var n int
	var edge, m2 float64
	if ws, ok := t.stats[row.Wallet]; ok {
		n, edge, m2 = ws.n, ws.mean, ws.m2
	}

	vol := t.cfg.EdgeVolFloor
	if n > 1 {
		vol = math.Sqrt(m2 / float64(n-1))
	}

	shrink := 0.0
	if float64(n)+t.cfg.PriorCount > 0 {
		shrink = float64(n) / (float64(n) + t.cfg.PriorCount)
	}

	row.WalletObs = n
	row.WalletEdge = edge
	row.WalletVol = vol
	row.WalletSkill = math.Tanh(edge/(vol+t.cfg.EdgeVolFloor)) * shrink

	heap.Push(&t.pending, pendingReturn{
		maturityNS: nowNS + t.horizonNS,
		wallet:     row.Wallet,
		value:      row.SignedForwardReturn,
	})
}
