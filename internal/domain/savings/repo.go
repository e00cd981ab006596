package savings

import (
	"context"

	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

// Repository persists computed savings rows.
type Repository interface {
	// ReplacePeriod atomically swaps a period's rows for the given set.
	ReplacePeriod(ctx context.Context, period prescribing.Period, records []*Record) error
	ListByOrg(ctx context.Context, orgCode string, period prescribing.Period) ([]*Record, error)
	ListByPresentation(ctx context.Context, presentationCode string, period prescribing.Period) ([]*Record, error)
}
