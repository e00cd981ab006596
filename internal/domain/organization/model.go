package organization

import (
	"time"

	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

type OrgType string

const (
	// TypePractice is a leaf prescribing organization.
	TypePractice OrgType = "practice"
	// TypeCCG is an administrative grouping of practices.
	TypeCCG OrgType = "ccg"
)

// Node maps to the organization table. The hierarchy is a flat table with
// parent pointers keyed by stable codes.
type Node struct {
	Code       string     `db:"code" json:"code"`
	Name       string     `db:"name" json:"name"`
	Type       OrgType    `db:"org_type" json:"org_type"`
	ParentCode *string    `db:"parent_code" json:"parent_code,omitempty"`
	OpenedAt   time.Time  `db:"opened_at" json:"opened_at"`
	ClosedAt   *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}

func (n *Node) IsLeaf() bool {
	return n.Type == TypePractice
}

// ActiveIn reports whether the organization participates in aggregation for
// the given month: it has opened by that month and not yet closed. An
// organization closing mid-month is inactive from that month onward.
func (n *Node) ActiveIn(period prescribing.Period) bool {
	if prescribing.PeriodOf(n.OpenedAt).Before(period) || prescribing.PeriodOf(n.OpenedAt) == period {
		if n.ClosedAt == nil {
			return true
		}
		return period.Before(prescribing.PeriodOf(*n.ClosedAt))
	}
	return false
}
