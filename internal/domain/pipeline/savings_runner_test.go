package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
	"github.com/rxmetrics/rxmetrics/internal/domain/savings"
	"github.com/rxmetrics/rxmetrics/internal/platform/runlog"
)

type mockPriceFeed struct {
	prices map[prescribing.Period][]*prescribing.PriceRow
	failOn map[prescribing.Period]error
}

func (m *mockPriceFeed) ListPricesByPeriod(ctx context.Context, period prescribing.Period) ([]*prescribing.PriceRow, error) {
	if err := m.failOn[period]; err != nil {
		return nil, err
	}
	return m.prices[period], nil
}

func (m *mockPriceFeed) PricePeriods(ctx context.Context) ([]prescribing.Period, error) {
	var out []prescribing.Period
	for p := range m.prices {
		out = append(out, p)
	}
	return out, nil
}

type mockSavingsRepo struct {
	mu       sync.Mutex
	byPeriod map[prescribing.Period][]*savings.Record
}

func (m *mockSavingsRepo) ReplacePeriod(ctx context.Context, period prescribing.Period, records []*savings.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byPeriod == nil {
		m.byPeriod = make(map[prescribing.Period][]*savings.Record)
	}
	m.byPeriod[period] = records
	return nil
}

func (m *mockSavingsRepo) ListByOrg(ctx context.Context, orgCode string, period prescribing.Period) ([]*savings.Record, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSavingsRepo) ListByPresentation(ctx context.Context, presentationCode string, period prescribing.Period) ([]*savings.Record, error) {
	return nil, errors.New("not implemented")
}

func TestSavingsRunner_Run(t *testing.T) {
	period := prescribing.Period("2024-06")
	feed := &mockPriceFeed{prices: map[prescribing.Period][]*prescribing.PriceRow{
		period: {
			{OrgCode: "P001", PresentationCode: "X", Period: period, TotalCost: 100, TotalQuantity: 100},
			{OrgCode: "P002", PresentationCode: "X", Period: period, TotalCost: 120, TotalQuantity: 100},
			{OrgCode: "P003", PresentationCode: "X", Period: period, TotalCost: 200, TotalQuantity: 100},
			{OrgCode: "P001", PresentationCode: "RARE", Period: period, TotalCost: 10, TotalQuantity: 10},
		},
	}}
	repo := &mockSavingsRepo{}
	runs := &mockRunLog{}

	runner := NewSavingsRunner(feed, savings.NewEstimator(3), repo, runs, 2, zerolog.Nop())
	report, err := runner.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Units) != 1 {
		t.Fatalf("units = %d, want 1", len(report.Units))
	}
	unit := report.Units[0]
	if unit.Err != nil {
		t.Fatal(unit.Err)
	}
	if unit.Rows != 3 || unit.Skipped != 1 {
		t.Errorf("unit = %d rows / %d skipped, want 3 / 1", unit.Rows, unit.Skipped)
	}

	stored := repo.byPeriod[period]
	if len(stored) != 3 {
		t.Fatalf("stored %d records, want 3", len(stored))
	}
	for _, rec := range stored {
		if rec.PresentationCode != "X" {
			t.Errorf("under-populated presentation stored: %+v", rec)
		}
	}

	if len(runs.entries) != 1 || runs.entries[0].Category != runlog.CategorySavings {
		t.Errorf("run log = %+v", runs.entries)
	}
}

func TestSavingsRunner_FeedFailureIsolated(t *testing.T) {
	good := prescribing.Period("2024-06")
	bad := prescribing.Period("2024-07")
	feed := &mockPriceFeed{
		prices: map[prescribing.Period][]*prescribing.PriceRow{
			good: {
				{OrgCode: "P001", PresentationCode: "X", Period: good, TotalCost: 100, TotalQuantity: 100},
			},
		},
		failOn: map[prescribing.Period]error{bad: errors.New("feed offline")},
	}
	repo := &mockSavingsRepo{}

	runner := NewSavingsRunner(feed, savings.NewEstimator(1), repo, nil, 2, zerolog.Nop())
	report, err := runner.Run(context.Background(), []prescribing.Period{good, bad})
	if err != nil {
		t.Fatal(err)
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].Period != bad {
		t.Fatalf("failed = %+v", failed)
	}
	var upstream *UpstreamDataError
	if !errors.As(failed[0].Err, &upstream) {
		t.Errorf("failure is %T, want *UpstreamDataError", failed[0].Err)
	}
	if len(repo.byPeriod[good]) != 1 {
		t.Error("healthy period did not persist")
	}
}
