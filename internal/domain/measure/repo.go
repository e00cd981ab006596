package measure

import (
	"context"

	"github.com/rxmetrics/rxmetrics/internal/domain/organization"
	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

// ValueRepository is the persistence boundary for computed results. A
// period's rows are always replaced wholesale, inside one transaction, so
// recomputation is idempotent and retries never need deduplication.
type ValueRepository interface {
	ReplacePeriod(ctx context.Context, measureID string, period prescribing.Period, values []*Value, globals []*Global) error
	GetValue(ctx context.Context, measureID, orgCode string, period prescribing.Period) (*Value, error)
	ListByMeasurePeriod(ctx context.Context, measureID string, period prescribing.Period) ([]*Value, error)
	ListByOrg(ctx context.Context, measureID, orgCode string) ([]*Value, error)
	GetGlobal(ctx context.Context, measureID string, period prescribing.Period, orgType organization.OrgType) (*Global, error)
}
