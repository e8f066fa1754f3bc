package flow

// normalize.go — canonicaliza registros heterogéneos de trades en un schema
// único, estable y determinista.
//
// La entrada llega de fuentes distintas (API paginada, CSV, fixtures de
// tests) con formatos distintos de timestamp y columnas opcionales. Aquí se
// reduce todo a []domain.Trade ordenado por la clave canónica; el resto del
// pipeline asume ese orden y no vuelve a validar nada.

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polyflow/internal/domain"
)

// RawRecord es un trade crudo tal como llega del proveedor.
// Timestamp, Size y Price admiten tipos heterogéneos (string ISO, epoch
// numérico, json.Number); la normalización los coerciona o descarta la fila.
type RawRecord struct {
	Timestamp   any
	Side        string
	Asset       string
	ConditionID string
	Outcome     string
	Wallet      string
	Slug        string
	Size        any
	Price       any
}

// TabularBatch es la variante columnar de la entrada: slices paralelos,
// con nil marcando una columna estructuralmente ausente.
type TabularBatch struct {
	Timestamps   []any
	Sides        []string
	Assets       []string
	ConditionIDs []string
	Outcomes     []string
	Wallets      []string
	Slugs        []string
	Sizes        []any
	Prices       []any
}

// Batch es la unión cerrada de formatos de entrada que acepta el normalizador.
// Exactamente uno de los dos campos debe estar poblado.
type Batch struct {
	Tabular *TabularBatch
	Records []RawRecord
}

// FromRecords construye un Batch desde un stream de registros.
func FromRecords(records []RawRecord) Batch {
	return Batch{Records: records}
}

// FromTabular construye un Batch desde columnas paralelas.
func FromTabular(t *TabularBatch) Batch {
	return Batch{Tabular: t}
}

// DropStats cuenta las filas descartadas por motivo durante la normalización.
// Los descartes son best-effort (la fila se salta, el loop sigue); los tests
// los verifican por deltas de conteo.
type DropStats struct {
	BadSide      int
	BadTimestamp int
	BadSize      int
	BadPrice     int
}

// Total devuelve el número total de filas descartadas.
func (d DropStats) Total() int {
	return d.BadSide + d.BadTimestamp + d.BadSize + d.BadPrice
}

// Normalize canonicaliza el batch: uppercasea sides, parsea timestamps a UTC,
// coerciona size/price, deriva notional y ordena de forma estable por la
// clave canónica. Devuelve error solo si falta una columna estructural
// (timestamp, side, size o price); las filas malformadas se descartan.
func Normalize(batch Batch) ([]domain.Trade, DropStats, error) {
	var stats DropStats

	records, err := batch.records()
	if err != nil {
		return nil, stats, err
	}
	if len(records) == 0 {
		return nil, stats, nil
	}

	trades := make([]domain.Trade, 0, len(records))
	for _, rec := range records {
		side := strings.ToUpper(strings.TrimSpace(rec.Side))
		if side != "BUY" && side != "SELL" {
			stats.BadSide++
			continue
		}

		ts, ok := parseTimestamp(rec.Timestamp)
		if !ok {
			stats.BadTimestamp++
			continue
		}

		size, ok := parseNumber(rec.Size)
		if !ok || size <= 0 {
			stats.BadSize++
			continue
		}
		price, ok := parseNumber(rec.Price)
		if !ok || price <= 0 {
			stats.BadPrice++
			continue
		}

		direction := 1.0
		if side == "SELL" {
			direction = -1.0
		}
		notional := math.Abs(size * price)

		trades = append(trades, domain.Trade{
			Timestamp:      ts,
			Asset:          rec.Asset,
			ConditionID:    rec.ConditionID,
			Outcome:        rec.Outcome,
			Side:           side,
			Size:           size,
			Price:          price,
			Wallet:         rec.Wallet,
			Slug:           rec.Slug,
			Direction:      direction,
			Notional:       notional,
			SignedNotional: direction * notional,
		})
	}

	SortTrades(trades)
	return trades, stats, nil
}

// SortTrades ordena in-place por la clave canónica del pipeline.
func SortTrades(trades []domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Before(trades[j])
	})
}

// records aplana el batch a un slice de RawRecord y valida la presencia de
// las columnas estructurales.
func (b Batch) records() ([]RawRecord, error) {
	if b.Tabular != nil {
		return b.Tabular.records()
	}
	if len(b.Records) == 0 {
		return nil, nil
	}

	// En un stream de registros una "columna ausente" significa que el campo
	// nunca fue poblado en ningún registro.
	var hasTS, hasSide, hasSize, hasPrice bool
	for _, rec := range b.Records {
		hasTS = hasTS || rec.Timestamp != nil
		hasSide = hasSide || rec.Side != ""
		hasSize = hasSize || rec.Size != nil
		hasPrice = hasPrice || rec.Price != nil
	}
	if err := requireColumns(hasTS, hasSide, hasSize, hasPrice); err != nil {
		return nil, err
	}
	return b.Records, nil
}

func (t *TabularBatch) records() ([]RawRecord, error) {
	if err := requireColumns(t.Timestamps != nil, t.Sides != nil, t.Sizes != nil, t.Prices != nil); err != nil {
		return nil, err
	}

	n := len(t.Timestamps)
	records := make([]RawRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, RawRecord{
			Timestamp:   t.Timestamps[i],
			Side:        column(t.Sides, i),
			Asset:       column(t.Assets, i),
			ConditionID: column(t.ConditionIDs, i),
			Outcome:     column(t.Outcomes, i),
			Wallet:      column(t.Wallets, i),
			Slug:        column(t.Slugs, i),
			Size:        anyColumn(t.Sizes, i),
			Price:       anyColumn(t.Prices, i),
		})
	}
	return records, nil
}

func requireColumns(hasTS, hasSide, hasSize, hasPrice bool) error {
	switch {
	case !hasTS:
		return fmt.Errorf("flow.Normalize: trade data must include a timestamp column")
	case !hasSide:
		return fmt.Errorf("flow.Normalize: trade data must include a side column")
	case !hasSize:
		return fmt.Errorf("flow.Normalize: trade data must include a size column")
	case !hasPrice:
		return fmt.Errorf("flow.Normalize: trade data must include a price column")
	}
	return nil
}

func column(col []string, i int) string {
	if i < len(col) {
		return col[i]
	}
	return ""
}

func anyColumn(col []any, i int) any {
	if i < len(col) {
		return col[i]
	}
	return nil
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// parseTimestamp acepta time.Time, strings RFC3339/ISO y epochs numéricos.
// Epochs: magnitud > 1e11 se interpreta como milisegundos, si no segundos.
func parseTimestamp(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case time.Time:
		if ts.IsZero() {
			return time.Time{}, false
		}
		return ts.UTC(), true
	case int:
		return epochToTime(float64(ts)), true
	case int64:
		return epochToTime(float64(ts)), true
	case float64:
		if math.IsNaN(ts) || math.IsInf(ts, 0) {
			return time.Time{}, false
		}
		return epochToTime(ts), true
	case json.Number:
		return parseTimestampString(ts.String())
	case string:
		return parseTimestampString(ts)
	}
	return time.Time{}, false
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if digitsOnly.MatchString(s) {
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, false
		}
		return epochToTime(n), true
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func epochToTime(n float64) time.Time {
	if n > 1e11 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}

func parseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}
