// Package prescribing defines the normalized prescribing and price feeds the
// engine consumes. Both feeds are produced by an external ingestion process
// and are read-only here.
package prescribing

import (
	"fmt"
	"time"
)

// Period is a calendar month in "YYYY-MM" form. Periods sort correctly as
// strings, which the pipeline relies on when slicing ranges.
type Period string

const periodLayout = "2006-01"

// ParsePeriod validates s and returns it as a Period.
func ParsePeriod(s string) (Period, error) {
	if _, err := time.Parse(periodLayout, s); err != nil {
		return "", fmt.Errorf("invalid period %q (want YYYY-MM): %w", s, err)
	}
	return Period(s), nil
}

// PeriodOf truncates t to its calendar month.
func PeriodOf(t time.Time) Period {
	return Period(t.Format(periodLayout))
}

func (p Period) String() string { return string(p) }

// Time returns midnight on the first day of the month.
func (p Period) Time() (time.Time, error) {
	return time.Parse(periodLayout, string(p))
}

// Before reports whether p sorts before q.
func (p Period) Before(q Period) bool { return string(p) < string(q) }

// Record is one transaction-level prescribing row: what an organization
// prescribed of one item code in one month.
type Record struct {
	OrgCode    string   `db:"org_code" json:"org_code"`
	Period     Period   `db:"period" json:"period"`
	BNFCode    string   `db:"bnf_code" json:"bnf_code"`
	Items      int64    `db:"items" json:"items"`
	Quantity   float64  `db:"quantity" json:"quantity"`
	ActualCost float64  `db:"actual_cost" json:"actual_cost"`
	ADQPerUnit *float64 `db:"adq_per_unit" json:"adq_per_unit,omitempty"`
}

// Weight returns the dosage-equivalence factor for the record, defaulting to
// 1 when the feed carries none.
func (r *Record) Weight() float64 {
	if r.ADQPerUnit == nil {
		return 1
	}
	return *r.ADQPerUnit
}

// PriceRow is one (organization, presentation, month) cost/quantity pair from
// the price feed, consumed by the savings estimator.
type PriceRow struct {
	OrgCode          string  `db:"org_code" json:"org_code"`
	PresentationCode string  `db:"presentation_code" json:"presentation_code"`
	Period           Period  `db:"period" json:"period"`
	TotalCost        float64 `db:"total_cost" json:"total_cost"`
	TotalQuantity    float64 `db:"total_quantity" json:"total_quantity"`
}
