// Package pipeline orchestrates the batch computation: measure units fan out
// over a worker pool, each unit computes and persists independently, and the
// run report collects what happened without any unit aborting the rest.
package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

// UpstreamDataError marks a period whose input feed could not be read. It
// fails every unit of that period and nothing else.
type UpstreamDataError struct {
	Period prescribing.Period
	Cause  error
}

func (e *UpstreamDataError) Error() string {
	return fmt.Sprintf("upstream data unavailable for %s: %v", e.Period, e.Cause)
}

func (e *UpstreamDataError) Unwrap() error { return e.Cause }

// UnitResult is the outcome of one unit of work. MeasureID is empty for
// savings units, which are keyed by period alone.
type UnitResult struct {
	MeasureID string
	Period    prescribing.Period
	Rows      int
	Skipped   int
	Err       error
	Duration  time.Duration
}

// Report summarises a run: every unit's outcome plus the wall-clock bounds.
type Report struct {
	Units      []UnitResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Sort orders units by (measure, period) so reports read stably.
func (r *Report) Sort() {
	sort.Slice(r.Units, func(i, j int) bool {
		if r.Units[i].MeasureID != r.Units[j].MeasureID {
			return r.Units[i].MeasureID < r.Units[j].MeasureID
		}
		return r.Units[i].Period < r.Units[j].Period
	})
}

// Failed returns the units that errored.
func (r *Report) Failed() []UnitResult {
	var out []UnitResult
	for _, u := range r.Units {
		if u.Err != nil {
			out = append(out, u)
		}
	}
	return out
}

// RowsWritten totals rows across successful units.
func (r *Report) RowsWritten() int64 {
	var total int64
	for _, u := range r.Units {
		if u.Err == nil {
			total += int64(u.Rows)
		}
	}
	return total
}

// PeriodBounds returns the earliest and latest period touched by the run.
func (r *Report) PeriodBounds() (prescribing.Period, prescribing.Period) {
	var lo, hi prescribing.Period
	for _, u := range r.Units {
		if lo == "" || u.Period.Before(lo) {
			lo = u.Period
		}
		if hi == "" || hi.Before(u.Period) {
			hi = u.Period
		}
	}
	return lo, hi
}
