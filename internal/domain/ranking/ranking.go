// Package ranking orders scored doctors and aggregates them into the
// statistics reports are built from.
package ranking

import (
	"math"
	"sort"

	"github.com/okian/medrank/internal/domain/model"
)

// PriceUnit is the price unit of cost-efficiency (ten thousand).
const PriceUnit = 10_000.0

// priceFloor keeps the cost-efficiency denominator away from zero.
const priceFloor = 1e-4

// Entry is a doctor next to its scoring record and derived ranking values.
type Entry struct {
	Doctor         model.Doctor        `json:"doctor"`
	Record         model.ScoringRecord `json:"score"`
	Percentile     float64             `json:"percentile"`
	CostEfficiency float64             `json:"cost_efficiency"`
}

// before reports whether a ranks ahead of b: composite descending, doctor
// id ascending, NaN composites last.
func before(a, b model.ScoringRecord) bool {
	an, bn := math.IsNaN(a.Composite), math.IsNaN(b.Composite)
	switch {
	case an != bn:
		return bn
	case !an && a.Composite != b.Composite:
		return a.Composite > b.Composite
	default:
		return a.DoctorID < b.DoctorID
	}
}

// RankRecords returns a ranked copy of records with ranks 1..n.
func RankRecords(records []model.ScoringRecord) []model.ScoringRecord {
	out := make([]model.ScoringRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return before(out[i], out[j]) })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Rank returns a ranked copy of entries with rank, percentile and
// cost-efficiency filled in.
func Rank(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return before(out[i].Record, out[j].Record) })
	n := len(out)
	for i := range out {
		out[i].Record.Rank = i + 1
		out[i].Percentile = Percentile(i+1, n)
		out[i].CostEfficiency = CostEfficiency(out[i].Record.Composite, out[i].Doctor.PriceOrZero())
	}
	return out
}

// Percentile is (n - rank + 1) / n * 100, or 0 for an empty set.
func Percentile(rank, n int) float64 {
	if n <= 0 || rank <= 0 {
		return 0
	}
	return float64(n-rank+1) / float64(n) * 100
}

// CostEfficiency is composite per ten thousand of price, 0 without a
// positive price.
func CostEfficiency(composite, price float64) float64 {
	if !(price > 0) || math.IsNaN(composite) {
		return 0
	}
	return math.Max(composite/math.Max(price/PriceUnit, priceFloor), 0)
}

// Recommend returns at most limit entries whose cost-efficiency reaches
// threshold, best value first and ties by doctor id. A non-positive limit
// returns every qualifying entry.
func Recommend(entries []Entry, threshold float64, limit int) []Entry {
	picked := make([]Entry, 0, len(entries))
	for _, e := range entries {
		ce := CostEfficiency(e.Record.Composite, e.Doctor.PriceOrZero())
		if ce >= threshold {
			e.CostEfficiency = ce
			picked = append(picked, e)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].CostEfficiency != picked[j].CostEfficiency {
			return picked[i].CostEfficiency > picked[j].CostEfficiency
		}
		return picked[i].Doctor.ID < picked[j].Doctor.ID
	})
	if limit > 0 && len(picked) > limit {
		picked = picked[:limit]
	}
	return picked
}

// Pearson returns the correlation coefficient of xs and ys, 0 when the
// series differ in length, have fewer than two points or no variance.
func Pearson(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0
	}
	n := float64(len(xs))
	var meanX, meanY float64
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= n
	meanY /= n

	var num, sx, sy float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		num += dx * dy
		sx += dx * dx
		sy += dy * dy
	}
	den := math.Sqrt(sx * sy)
	if den == 0 || math.IsNaN(den) {
		return 0
	}
	return num / den
}
