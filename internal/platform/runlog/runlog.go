// Package runlog records one row per completed pipeline run so operators can
// see what was computed, for which months, and when.
package runlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	CategoryMeasures = "measures"
	CategorySavings  = "savings"
)

type Entry struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Category    string    `db:"category" json:"category"`
	PeriodStart string    `db:"period_start" json:"period_start"`
	PeriodEnd   string    `db:"period_end" json:"period_end"`
	RowsWritten int64     `db:"rows_written" json:"rows_written"`
	StartedAt   time.Time `db:"started_at" json:"started_at"`
	FinishedAt  time.Time `db:"finished_at" json:"finished_at"`
}

type Repository interface {
	Record(ctx context.Context, e *Entry) error
	LatestByCategory(ctx context.Context, category string) (*Entry, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Record(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO run_log (id, category, period_start, period_end, rows_written, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.Category, e.PeriodStart, e.PeriodEnd, e.RowsWritten, e.StartedAt, e.FinishedAt)
	return err
}

func (r *repoPG) LatestByCategory(ctx context.Context, category string) (*Entry, error) {
	var e Entry
	err := r.pool.QueryRow(ctx, `
		SELECT id, category, period_start, period_end, rows_written, started_at, finished_at
		FROM run_log WHERE category = $1
		ORDER BY finished_at DESC LIMIT 1`, category).
		Scan(&e.ID, &e.Category, &e.PeriodStart, &e.PeriodEnd, &e.RowsWritten, &e.StartedAt, &e.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
