package prescribing

import (
	"context"
)

// Feed reads the normalized prescribing feed.
type Feed interface {
	ListByPeriod(ctx context.Context, period Period) ([]*Record, error)
	Periods(ctx context.Context) ([]Period, error)
}

// PriceFeed reads the presentation-level price/quantity feed.
type PriceFeed interface {
	ListPricesByPeriod(ctx context.Context, period Period) ([]*PriceRow, error)
	PricePeriods(ctx context.Context) ([]Period, error)
}
