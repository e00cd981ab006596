package measure

import (
	"sort"

	"github.com/rxmetrics/rxmetrics/internal/domain/organization"
	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

// Rank computes the percentile standing of each organization among the given
// peer set, which the caller has already partitioned by period and
// organization type. Entries with a null calc value are returned with a nil
// percentile and do not influence the peer population size.
//
// The rank convention is the published one: sort ascending by value, then
// percentile = (count of values strictly less) / (N-1). Ties share a
// percentile; a single rankable organization gets 0. Results are in [0,1]
// and independent of input ordering.
func Rank(values map[string]*Value) map[string]*float64 {
	type entry struct {
		code string
		v    float64
	}
	var ranked []entry
	out := make(map[string]*float64, len(values))

	for code, val := range values {
		if val.CalcValue == nil {
			out[code] = nil
			continue
		}
		ranked = append(ranked, entry{code: code, v: *val.CalcValue})
	}

	n := len(ranked)
	if n == 0 {
		return out
	}
	if n == 1 {
		zero := 0.0
		out[ranked[0].code] = &zero
		return out
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].v < ranked[j].v })

	// below counts values strictly less than the current one; equal values
	// share it, which is what gives ties a common percentile.
	below := 0
	for i := 0; i < n; i++ {
		if i > 0 && ranked[i].v != ranked[i-1].v {
			below = i
		}
		pct := float64(below) / float64(n-1)
		p := pct
		out[ranked[i].code] = &p
	}

	return out
}

// ApplyPercentiles writes ranks onto the value rows, scaled for persistence
// (scale 100 stores 0-100, scale 1 keeps the raw rank). Values absent from
// ranks keep a nil percentile.
func ApplyPercentiles(values map[string]*Value, ranks map[string]*float64, scale float64) {
	for code, val := range values {
		r, ok := ranks[code]
		if !ok || r == nil {
			val.Percentile = nil
			continue
		}
		p := *r * scale
		val.Percentile = &p
	}
}

// CentileValue returns the benchmark value for centile c: the largest value
// whose percentile rank is at or below c/100. sorted must be ascending and
// non-empty.
func CentileValue(sorted []float64, c int) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	idx := c * (n - 1) / 100
	return sorted[idx]
}

// BuildGlobal produces the population row for one organization type:
// component sums across the peer set and the centile table of non-null calc
// values. Centiles are nil when no organization had a defined ratio.
func BuildGlobal(def *Definition, period prescribing.Period, orgType organization.OrgType, values map[string]*Value) *Global {
	g := &Global{
		MeasureID: def.ID,
		Period:    period,
		OrgType:   orgType,
		Centiles:  make(map[int]*float64, len(Centiles)),
	}

	var calcs []float64
	for _, v := range values {
		g.Numerator += v.Numerator
		g.Denominator += v.Denominator
		if v.CalcValue != nil {
			calcs = append(calcs, *v.CalcValue)
		}
	}
	sort.Float64s(calcs)

	for _, c := range Centiles {
		if len(calcs) == 0 {
			g.Centiles[c] = nil
			continue
		}
		v := CentileValue(calcs, c)
		g.Centiles[c] = &v
	}

	return g
}
