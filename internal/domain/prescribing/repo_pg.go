package prescribing

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rxmetrics/rxmetrics/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type FeedPG struct{ pool *pgxpool.Pool }

// NewFeedPG returns a Feed and PriceFeed backed by the prescribing and
// presentation_price tables.
func NewFeedPG(pool *pgxpool.Pool) *FeedPG {
	return &FeedPG{pool: pool}
}

var (
	_ Feed      = (*FeedPG)(nil)
	_ PriceFeed = (*FeedPG)(nil)
)

func (r *FeedPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *FeedPG) ListByPeriod(ctx context.Context, period Period) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT org_code, period, bnf_code, items, quantity, actual_cost, adq_per_unit
		FROM prescribing WHERE period = $1`, string(period))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.OrgCode, &rec.Period, &rec.BNFCode,
			&rec.Items, &rec.Quantity, &rec.ActualCost, &rec.ADQPerUnit); err != nil {
			return nil, err
		}
		items = append(items, &rec)
	}
	return items, rows.Err()
}

func (r *FeedPG) Periods(ctx context.Context) ([]Period, error) {
	return r.distinctPeriods(ctx, `SELECT DISTINCT period FROM prescribing ORDER BY period`)
}

func (r *FeedPG) ListPricesByPeriod(ctx context.Context, period Period) ([]*PriceRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT org_code, presentation_code, period, total_cost, total_quantity
		FROM presentation_price WHERE period = $1`, string(period))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*PriceRow
	for rows.Next() {
		var row PriceRow
		if err := rows.Scan(&row.OrgCode, &row.PresentationCode, &row.Period,
			&row.TotalCost, &row.TotalQuantity); err != nil {
			return nil, err
		}
		items = append(items, &row)
	}
	return items, rows.Err()
}

func (r *FeedPG) PricePeriods(ctx context.Context) ([]Period, error) {
	return r.distinctPeriods(ctx, `SELECT DISTINCT period FROM presentation_price ORDER BY period`)
}

func (r *FeedPG) distinctPeriods(ctx context.Context, query string) ([]Period, error) {
	rows, err := r.conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}
