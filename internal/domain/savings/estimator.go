package savings

import (
	"math"
	"sort"

	"github.com/rxmetrics/rxmetrics/internal/domain/measure"
	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

// benchmarkCentile is the peer-price centile used as the achievable price:
// the cheapest decile of organizations buying the same presentation.
const benchmarkCentile = 10

// Estimator derives savings rows from one month of price/quantity data.
type Estimator struct {
	minPeers int
}

// NewEstimator configures the estimator. minPeers is the smallest peer
// population for which a decile benchmark is considered stable; smaller
// groups are skipped and flagged rather than computed.
func NewEstimator(minPeers int) *Estimator {
	if minPeers < 1 {
		minPeers = 1
	}
	return &Estimator{minPeers: minPeers}
}

// Estimate computes savings for every (organization, presentation) pair in
// one period. Rows from other periods are ignored. Organizations with zero
// quantity have no unit price and are excluded, not emitted as zero rows.
// The function is pure: identical input yields identical output.
func (e *Estimator) Estimate(period prescribing.Period, rows []*prescribing.PriceRow) ([]*Record, []*SkippedGroup) {
	type orgSpend struct {
		cost     float64
		quantity float64
	}
	groups := make(map[string]map[string]*orgSpend)

	for _, row := range rows {
		if row.Period != period {
			continue
		}
		orgs := groups[row.PresentationCode]
		if orgs == nil {
			orgs = make(map[string]*orgSpend)
			groups[row.PresentationCode] = orgs
		}
		spend := orgs[row.OrgCode]
		if spend == nil {
			spend = &orgSpend{}
			orgs[row.OrgCode] = spend
		}
		spend.cost += row.TotalCost
		spend.quantity += row.TotalQuantity
	}

	presentations := make([]string, 0, len(groups))
	for code := range groups {
		presentations = append(presentations, code)
	}
	sort.Strings(presentations)

	var records []*Record
	var skipped []*SkippedGroup

	for _, presentation := range presentations {
		orgs := groups[presentation]

		type priced struct {
			code  string
			price float64
			qty   float64
		}
		var peers []priced
		for code, spend := range orgs {
			price, ok := unitPrice(spend.cost, spend.quantity)
			if !ok {
				continue
			}
			peers = append(peers, priced{code: code, price: price, qty: spend.quantity})
		}

		if len(peers) < e.minPeers {
			skipped = append(skipped, &SkippedGroup{
				PresentationCode: presentation,
				Period:           period,
				PeerCount:        len(peers),
				Reason:           ErrInsufficientPeers,
			})
			continue
		}

		prices := make([]float64, len(peers))
		for i, p := range peers {
			prices[i] = p.price
		}
		sort.Float64s(prices)
		benchmark := measure.CentileValue(prices, benchmarkCentile)

		sort.Slice(peers, func(i, j int) bool { return peers[i].code < peers[j].code })
		for _, p := range peers {
			records = append(records, &Record{
				OrgCode:          p.code,
				PresentationCode: presentation,
				Period:           period,
				UnitPrice:        p.price,
				BenchmarkPrice:   benchmark,
				Quantity:         p.qty,
				PossibleSavings:  (p.price - benchmark) * p.qty,
			})
		}
	}

	return records, skipped
}

// unitPrice divides cost by quantity with the same guards as the ratio
// calculator: zero quantity or a non-finite result means no price.
func unitPrice(cost, quantity float64) (float64, bool) {
	if quantity == 0 {
		return 0, false
	}
	price := cost / quantity
	if math.IsInf(price, 0) || math.IsNaN(price) {
		return 0, false
	}
	return price, true
}
