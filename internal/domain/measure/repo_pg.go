package measure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rxmetrics/rxmetrics/internal/domain/organization"
	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
	"github.com/rxmetrics/rxmetrics/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type valueRepoPG struct{ pool *pgxpool.Pool }

func NewValueRepoPG(pool *pgxpool.Pool) ValueRepository {
	return &valueRepoPG{pool: pool}
}

func (r *valueRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const valueCols = `measure_id, org_code, org_type, period, numerator, denominator, calc_value, percentile`

func (r *valueRepoPG) scanValue(row pgx.Row) (*Value, error) {
	var v Value
	err := row.Scan(&v.MeasureID, &v.OrgCode, &v.OrgType, &v.Period,
		&v.Numerator, &v.Denominator, &v.CalcValue, &v.Percentile)
	return &v, err
}

// ReplacePeriod deletes the stale (measure, period) slice and bulk-loads the
// fresh rows via COPY, all within a single transaction.
func (r *valueRepoPG) ReplacePeriod(ctx context.Context, measureID string, period prescribing.Period, values []*Value, globals []*Global) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		conn := r.conn(ctx)

		if _, err := conn.Exec(ctx,
			`DELETE FROM measure_value WHERE measure_id = $1 AND period = $2`,
			measureID, string(period)); err != nil {
			return fmt.Errorf("delete stale values: %w", err)
		}
		if _, err := conn.Exec(ctx,
			`DELETE FROM measure_global WHERE measure_id = $1 AND period = $2`,
			measureID, string(period)); err != nil {
			return fmt.Errorf("delete stale globals: %w", err)
		}

		tx := db.TxFromContext(ctx)
		rows := make([][]interface{}, 0, len(values))
		for _, v := range values {
			rows = append(rows, []interface{}{
				v.MeasureID, v.OrgCode, string(v.OrgType), string(v.Period),
				v.Numerator, v.Denominator, v.CalcValue, v.Percentile,
			})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"measure_value"},
			[]string{"measure_id", "org_code", "org_type", "period", "numerator", "denominator", "calc_value", "percentile"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy values: %w", err)
		}

		for _, g := range globals {
			centiles, err := json.Marshal(centileKeys(g.Centiles))
			if err != nil {
				return fmt.Errorf("marshal centiles: %w", err)
			}
			if _, err := conn.Exec(ctx, `
				INSERT INTO measure_global (measure_id, period, org_type, numerator, denominator, centiles)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				g.MeasureID, string(g.Period), string(g.OrgType),
				g.Numerator, g.Denominator, centiles); err != nil {
				return fmt.Errorf("insert global: %w", err)
			}
		}

		return nil
	})
}

func (r *valueRepoPG) GetValue(ctx context.Context, measureID, orgCode string, period prescribing.Period) (*Value, error) {
	return r.scanValue(r.conn(ctx).QueryRow(ctx,
		`SELECT `+valueCols+` FROM measure_value WHERE measure_id = $1 AND org_code = $2 AND period = $3`,
		measureID, orgCode, string(period)))
}

func (r *valueRepoPG) ListByMeasurePeriod(ctx context.Context, measureID string, period prescribing.Period) ([]*Value, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+valueCols+` FROM measure_value WHERE measure_id = $1 AND period = $2 ORDER BY org_code`,
		measureID, string(period))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *valueRepoPG) ListByOrg(ctx context.Context, measureID, orgCode string) ([]*Value, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+valueCols+` FROM measure_value WHERE measure_id = $1 AND org_code = $2 ORDER BY period`,
		measureID, orgCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *valueRepoPG) collect(rows pgx.Rows) ([]*Value, error) {
	var items []*Value
	for rows.Next() {
		v, err := r.scanValue(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *valueRepoPG) GetGlobal(ctx context.Context, measureID string, period prescribing.Period, orgType organization.OrgType) (*Global, error) {
	var g Global
	var centiles []byte
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT measure_id, period, org_type, numerator, denominator, centiles
		FROM measure_global WHERE measure_id = $1 AND period = $2 AND org_type = $3`,
		measureID, string(period), string(orgType)).
		Scan(&g.MeasureID, &g.Period, &g.OrgType, &g.Numerator, &g.Denominator, &centiles)
	if err != nil {
		return nil, err
	}

	keyed := map[string]*float64{}
	if err := json.Unmarshal(centiles, &keyed); err != nil {
		return nil, fmt.Errorf("unmarshal centiles: %w", err)
	}
	g.Centiles = make(map[int]*float64, len(keyed))
	for k, v := range keyed {
		var c int
		if _, err := fmt.Sscanf(k, "%d", &c); err != nil {
			return nil, fmt.Errorf("bad centile key %q", k)
		}
		g.Centiles[c] = v
	}
	return &g, nil
}

// centileKeys renders the centile map with string keys for JSONB storage.
func centileKeys(centiles map[int]*float64) map[string]*float64 {
	out := make(map[string]*float64, len(centiles))
	for c, v := range centiles {
		out[fmt.Sprintf("%d", c)] = v
	}
	return out
}
