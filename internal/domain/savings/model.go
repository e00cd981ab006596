// Package savings computes the cost-saving opportunity per organization and
// presentation: how much would be saved each month if every organization paid
// the price its cheapest peers already achieve.
package savings

import (
	"errors"

	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

// ErrInsufficientPeers marks a presentation group skipped because too few
// organizations bought it to anchor a stable decile benchmark.
var ErrInsufficientPeers = errors.New("insufficient peers for benchmark")

// Record is one computed (organization, presentation, month) savings row.
// PossibleSavings keeps its sign: an organization already below the benchmark
// carries a negative value, which is not the same thing as no opportunity.
type Record struct {
	OrgCode          string             `db:"org_code" json:"org_code"`
	PresentationCode string             `db:"presentation_code" json:"presentation_code"`
	Period           prescribing.Period `db:"period" json:"period"`
	UnitPrice        float64            `db:"unit_price" json:"unit_price"`
	BenchmarkPrice   float64            `db:"benchmark_price" json:"benchmark_price"`
	Quantity         float64            `db:"total_quantity" json:"quantity"`
	PossibleSavings  float64            `db:"possible_savings" json:"possible_savings"`
}

// SkippedGroup reports a presentation the estimator declined to benchmark.
type SkippedGroup struct {
	PresentationCode string
	Period           prescribing.Period
	PeerCount        int
	Reason           error
}
