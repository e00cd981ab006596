package measure

import (
	"fmt"
	"math"

	"github.com/rxmetrics/rxmetrics/internal/domain/organization"
	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

// Centiles are the population centiles persisted per measure per month.
var Centiles = []int{10, 20, 30, 40, 50, 60, 70, 80, 90}

// Definition is one entry of the measure catalog. Immutable once loaded.
type Definition struct {
	ID                string    `json:"id"` // set from the catalog filename
	Name              string    `json:"name"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	WhyItMatters      string    `json:"why_it_matters"`
	NumeratorShort    string    `json:"numerator_short"`
	DenominatorShort  string    `json:"denominator_short"`
	Numerator         Predicate `json:"numerator"`
	Denominator       Predicate `json:"denominator"`
	NumeratorWeighted bool      `json:"numerator_weighted"`
	LowIsGood         bool      `json:"low_is_good"`
	IsCostBased       bool      `json:"is_cost_based"`
	IsPercentage      bool      `json:"is_percentage"`
	Tags              []string  `json:"tags"`
	URL               string    `json:"url"`
	Skip              bool      `json:"skip"`
}

// ConfigurationError marks a malformed measure definition. It aborts only
// that measure's processing.
type ConfigurationError struct {
	MeasureID string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("measure %s: invalid definition: %s", e.MeasureID, e.Reason)
}

// Validate checks the definition is runnable. Both predicates are required;
// an empty predicate would silently match nothing, which is never what a
// catalog author means.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return &ConfigurationError{MeasureID: d.ID, Reason: "missing id"}
	}
	if d.Name == "" {
		return &ConfigurationError{MeasureID: d.ID, Reason: "missing name"}
	}
	if d.Numerator.Empty() {
		return &ConfigurationError{MeasureID: d.ID, Reason: "missing numerator predicate"}
	}
	if d.Denominator.Empty() {
		return &ConfigurationError{MeasureID: d.ID, Reason: "missing denominator predicate"}
	}
	return nil
}

// Value is one computed (measure, organization, month) row. CalcValue is nil
// when the ratio is undefined; Percentile is nil exactly when CalcValue is.
type Value struct {
	MeasureID   string               `db:"measure_id" json:"measure_id"`
	OrgCode     string               `db:"org_code" json:"org_code"`
	OrgType     organization.OrgType `db:"org_type" json:"org_type"`
	Period      prescribing.Period   `db:"period" json:"period"`
	Numerator   float64              `db:"numerator" json:"numerator"`
	Denominator float64              `db:"denominator" json:"denominator"`
	CalcValue   *float64             `db:"calc_value" json:"calc_value,omitempty"`
	Percentile  *float64             `db:"percentile" json:"percentile,omitempty"`
}

// Global is the population-wide row for one (measure, month, organization
// type): summed components plus the centile table of calc values.
type Global struct {
	MeasureID   string               `db:"measure_id" json:"measure_id"`
	Period      prescribing.Period   `db:"period" json:"period"`
	OrgType     organization.OrgType `db:"org_type" json:"org_type"`
	Numerator   float64              `db:"numerator" json:"numerator"`
	Denominator float64              `db:"denominator" json:"denominator"`
	Centiles    map[int]*float64     `db:"centiles" json:"centiles"`
}

// ratio derives numerator/denominator, returning nil for a zero denominator
// or a non-finite result rather than an error.
func ratio(num, denom float64) *float64 {
	if denom == 0 {
		return nil
	}
	v := num / denom
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
