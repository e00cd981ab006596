package measure

import (
	"github.com/rxmetrics/rxmetrics/internal/domain/organization"
	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

// ComputeRatios aggregates one month of raw records into one Value per
// active organization, leaves first and then parents by roll-up. It is a
// pure function of its inputs.
//
// Every active leaf gets a row even with no matching records: absence of
// data is numerator 0, denominator 0, calc value null — not absence of the
// row. Aggregate rows are re-derived from summed components of their active
// descendant leaves, never averaged from child ratios.
func ComputeRatios(def *Definition, period prescribing.Period, records []*prescribing.Record, h *organization.Hierarchy) map[string]*Value {
	nums := make(map[string]float64)
	denoms := make(map[string]float64)

	for _, r := range records {
		if r.Period != period {
			continue
		}
		if def.Numerator.Matches(r.BNFCode) {
			w := 1.0
			if def.NumeratorWeighted {
				w = r.Weight()
			}
			nums[r.OrgCode] += r.Quantity * w
		}
		if def.Denominator.Matches(r.BNFCode) {
			denoms[r.OrgCode] += float64(r.Items)
		}
	}

	values := make(map[string]*Value)
	for _, leaf := range h.ActiveLeaves(period) {
		num := nums[leaf.Code]
		denom := denoms[leaf.Code]
		values[leaf.Code] = &Value{
			MeasureID:   def.ID,
			OrgCode:     leaf.Code,
			OrgType:     leaf.Type,
			Period:      period,
			Numerator:   num,
			Denominator: denom,
			CalcValue:   ratio(num, denom),
		}
	}

	for _, agg := range h.Aggregates() {
		if !agg.ActiveIn(period) {
			continue
		}
		var num, denom float64
		for _, leaf := range h.DescendantLeaves(agg.Code) {
			if v, ok := values[leaf.Code]; ok {
				num += v.Numerator
				denom += v.Denominator
			}
		}
		values[agg.Code] = &Value{
			MeasureID:   def.ID,
			OrgCode:     agg.Code,
			OrgType:     agg.Type,
			Period:      period,
			Numerator:   num,
			Denominator: denom,
			CalcValue:   ratio(num, denom),
		}
	}

	return values
}
