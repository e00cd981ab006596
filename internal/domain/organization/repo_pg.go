package organization

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

const orgCols = `code, name, org_type, parent_code, opened_at, closed_at`

func (r *repoPG) scanRow(row pgx.Row) (*Node, error) {
	var n Node
	err := row.Scan(&n.Code, &n.Name, &n.Type, &n.ParentCode, &n.OpenedAt, &n.ClosedAt)
	return &n, err
}

func (r *repoPG) List(ctx context.Context) ([]*Node, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orgCols+` FROM organization ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Node, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+orgCols+` FROM organization WHERE code = $1`, code))
}
