package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
	"github.com/rxmetrics/rxmetrics/internal/domain/savings"
	"github.com/rxmetrics/rxmetrics/internal/platform/runlog"
)

// SavingsRunner is the monthly savings pipeline. Its unit of work is a whole
// period: presentation groups within a period are already independent inside
// the estimator, so the pool fans out over months.
type SavingsRunner struct {
	prices    prescribing.PriceFeed
	estimator *savings.Estimator
	repo      savings.Repository
	runs      runlog.Repository
	workers   int
	logger    zerolog.Logger
}

func NewSavingsRunner(
	prices prescribing.PriceFeed,
	estimator *savings.Estimator,
	repo savings.Repository,
	runs runlog.Repository,
	workers int,
	logger zerolog.Logger,
) *SavingsRunner {
	if workers < 1 {
		workers = 1
	}
	return &SavingsRunner{
		prices:    prices,
		estimator: estimator,
		repo:      repo,
		runs:      runs,
		workers:   workers,
		logger:    logger,
	}
}

// Run estimates and persists savings for the given periods, or for every
// period in the price feed when none are given.
func (r *SavingsRunner) Run(ctx context.Context, periods []prescribing.Period) (*Report, error) {
	report := &Report{StartedAt: time.Now()}

	if len(periods) == 0 {
		var err error
		periods, err = r.prices.PricePeriods(ctx)
		if err != nil {
			return nil, fmt.Errorf("list price periods: %w", err)
		}
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("price feed has no periods")
	}

	jobs := make(chan prescribing.Period)
	results := make(chan UnitResult, r.workers)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for period := range jobs {
				results <- r.runPeriod(ctx, period)
			}
		}()
	}

	go func() {
		for _, period := range periods {
			jobs <- period
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for res := range results {
		observeUnit(runlog.CategorySavings, res)
		evt := r.logger.Info()
		if res.Err != nil {
			evt = r.logger.Error().Err(res.Err)
		}
		evt.Str("period", res.Period.String()).
			Int("rows", res.Rows).
			Int("skipped_presentations", res.Skipped).
			Dur("took", res.Duration).
			Msg("savings unit finished")
		report.Units = append(report.Units, res)
	}
	report.Sort()
	report.FinishedAt = time.Now()

	if r.runs != nil {
		lo, hi := report.PeriodBounds()
		if err := r.runs.Record(ctx, &runlog.Entry{
			Category:    runlog.CategorySavings,
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

func (r *SavingsRunner) runPeriod(ctx context.Context, period prescribing.Period) UnitResult {
	res := UnitResult{Period: period}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	rows, err := r.prices.ListPricesByPeriod(ctx, period)
	if err != nil {
		res.Err = &UpstreamDataError{Period: period, Cause: err}
		return res
	}

	records, skipped := r.estimator.Estimate(period, rows)
	res.Skipped = len(skipped)
	for _, skip := range skipped {
		r.logger.Warn().
			Str("presentation", skip.PresentationCode).
			Str("period", skip.Period.String()).
			Int("peers", skip.PeerCount).
			Msg("presentation skipped: too few peers for a stable benchmark")
	}

	if err := r.repo.ReplacePeriod(ctx, period, records); err != nil {
		res.Err = fmt.Errorf("persist savings for %s: %w", period, err)
		return res
	}
	res.Rows = len(records)
	return res
}
