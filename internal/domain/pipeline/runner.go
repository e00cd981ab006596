package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rxmetrics/rxmetrics/internal/domain/measure"
	"github.com/rxmetrics/rxmetrics/internal/domain/organization"
	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
	"github.com/rxmetrics/rxmetrics/internal/platform/runlog"
)

// Runner computes measures. Units of work are (measure, period) pairs: each
// unit aggregates, ranks, and persists independently, so a failed unit is
// reported and the rest of the run carries on.
type Runner struct {
	feed      prescribing.Feed
	orgs      *organization.Service
	values    measure.ValueRepository
	runs      runlog.Repository
	workers   int
	rankScale float64
	logger    zerolog.Logger
}

func NewRunner(
	feed prescribing.Feed,
	orgs *organization.Service,
	values measure.ValueRepository,
	runs runlog.Repository,
	workers int,
	rankScale float64,
	logger zerolog.Logger,
) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		feed:      feed,
		orgs:      orgs,
		values:    values,
		runs:      runs,
		workers:   workers,
		rankScale: rankScale,
		logger:    logger,
	}
}

// RunOptions selects what to compute. Empty Periods means every period
// present in the feed.
type RunOptions struct {
	Definitions []*measure.Definition
	Periods     []prescribing.Period
}

type unit struct {
	def    *measure.Definition
	period prescribing.Period
}

// Run executes the full pipeline. The returned error covers only failures
// that prevent the run from starting at all (no hierarchy, no periods);
// per-unit failures live in the report.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	report := &Report{StartedAt: time.Now()}

	if len(opts.Definitions) == 0 {
		return nil, fmt.Errorf("no measures to run")
	}

	periods := opts.Periods
	if len(periods) == 0 {
		var err error
		periods, err = r.feed.Periods(ctx)
		if err != nil {
			return nil, fmt.Errorf("list feed periods: %w", err)
		}
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("feed has no periods")
	}

	hierarchy, err := r.orgs.LoadHierarchy(ctx)
	if err != nil {
		return nil, err
	}

	// One feed read per period, shared read-only by every measure's unit.
	// A period that fails to load fails all of its units up front.
	records := make(map[prescribing.Period][]*prescribing.Record, len(periods))
	feedErrs := make(map[prescribing.Period]error)
	for _, period := range periods {
		recs, err := r.feed.ListByPeriod(ctx, period)
		if err != nil {
			feedErrs[period] = &UpstreamDataError{Period: period, Cause: err}
			continue
		}
		records[period] = recs
	}

	jobs := make(chan unit)
	results := make(chan UnitResult, r.workers)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				results <- r.runUnit(ctx, u, records[u.period], feedErrs[u.period], hierarchy)
			}
		}()
	}

	go func() {
		for _, def := range opts.Definitions {
			for _, period := range periods {
				jobs <- unit{def: def, period: period}
			}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for res := range results {
		observeUnit(runlog.CategoryMeasures, res)
		evt := r.logger.Info()
		if res.Err != nil {
			evt = r.logger.Error().Err(res.Err)
		}
		evt.Str("measure", res.MeasureID).
			Str("period", res.Period.String()).
			Int("rows", res.Rows).
			Dur("took", res.Duration).
			Msg("measure unit finished")
		report.Units = append(report.Units, res)
	}
	report.Sort()
	report.FinishedAt = time.Now()

	if r.runs != nil {
		lo, hi := report.PeriodBounds()
		if err := r.runs.Record(ctx, &runlog.Entry{
			Category:    runlog.CategoryMeasures,
			PeriodStart: lo.String(),
			PeriodEnd:   hi.String(),
			RowsWritten: report.RowsWritten(),
			StartedAt:   report.StartedAt,
			FinishedAt:  report.FinishedAt,
		}); err != nil {
			r.logger.Error().Err(err).Msg("record run log")
		}
	}

	return report, nil
}

func (r *Runner) runUnit(ctx context.Context, u unit, records []*prescribing.Record, feedErr error, h *organization.Hierarchy) UnitResult {
	res := UnitResult{MeasureID: u.def.ID, Period: u.period}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if feedErr != nil {
		res.Err = feedErr
		return res
	}

	values := measure.ComputeRatios(u.def, u.period, records, h)
	rows, globals := finalize(u.def, u.period, values, r.rankScale)

	if err := r.values.ReplacePeriod(ctx, u.def.ID, u.period, rows, globals); err != nil {
		res.Err = fmt.Errorf("persist measure %s period %s: %w", u.def.ID, u.period, err)
		return res
	}
	res.Rows = len(rows)
	return res
}

// finalize ranks the computed values within their organization-type peer
// groups, scales percentiles for storage, and derives the per-type
// population rows. Output ordering is stable: org type, then code.
func finalize(def *measure.Definition, period prescribing.Period, values map[string]*measure.Value, rankScale float64) ([]*measure.Value, []*measure.Global) {
	byType := make(map[organization.OrgType]map[string]*measure.Value)
	for code, v := range values {
		peers := byType[v.OrgType]
		if peers == nil {
			peers = make(map[string]*measure.Value)
			byType[v.OrgType] = peers
		}
		peers[code] = v
	}

	types := make([]organization.OrgType, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var rows []*measure.Value
	var globals []*measure.Global
	for _, t := range types {
		peers := byType[t]
		measure.ApplyPercentiles(peers, measure.Rank(peers), rankScale)
		globals = append(globals, measure.BuildGlobal(def, period, t, peers))

		codes := make([]string, 0, len(peers))
		for code := range peers {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			rows = append(rows, peers[code])
		}
	}
	return rows, globals
}
