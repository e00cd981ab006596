package savings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
	"github.com/rxmetrics/rxmetrics/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const savingsCols = `org_code, presentation_code, period, unit_price, benchmark_price, total_quantity, possible_savings`

func (r *repoPG) scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.OrgCode, &rec.PresentationCode, &rec.Period,
		&rec.UnitPrice, &rec.BenchmarkPrice, &rec.Quantity, &rec.PossibleSavings)
	return &rec, err
}

// ReplacePeriod deletes the period's stale rows and bulk-loads the fresh set
// via COPY, in one transaction.
func (r *repoPG) ReplacePeriod(ctx context.Context, period prescribing.Period, records []*Record) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		conn := r.conn(ctx)

		if _, err := conn.Exec(ctx,
			`DELETE FROM savings WHERE period = $1`, string(period)); err != nil {
			return fmt.Errorf("delete stale savings: %w", err)
		}

		rows := make([][]interface{}, 0, len(records))
		for _, rec := range records {
			rows = append(rows, []interface{}{
				rec.OrgCode, rec.PresentationCode, string(rec.Period),
				rec.UnitPrice, rec.BenchmarkPrice, rec.Quantity, rec.PossibleSavings,
			})
		}
		if _, err := db.TxFromContext(ctx).CopyFrom(ctx,
			pgx.Identifier{"savings"},
			[]string{"org_code", "presentation_code", "period", "unit_price", "benchmark_price", "total_quantity", "possible_savings"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy savings: %w", err)
		}
		return nil
	})
}

func (r *repoPG) ListByOrg(ctx context.Context, orgCode string, period prescribing.Period) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+savingsCols+` FROM savings WHERE org_code = $1 AND period = $2 ORDER BY presentation_code`,
		orgCode, string(period))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) ListByPresentation(ctx context.Context, presentationCode string, period prescribing.Period) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+savingsCols+` FROM savings WHERE presentation_code = $1 AND period = $2 ORDER BY org_code`,
		presentationCode, string(period))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) collect(rows pgx.Rows) ([]*Record, error) {
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}
