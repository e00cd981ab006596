package savings

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
)

func priceRow(org, presentation string, period prescribing.Period, cost, quantity float64) *prescribing.PriceRow {
	return &prescribing.PriceRow{
		OrgCode:          org,
		PresentationCode: presentation,
		Period:           period,
		TotalCost:        cost,
		TotalQuantity:    quantity,
	}
}

func TestEstimate_Benchmark(t *testing.T) {
	period := prescribing.Period("2024-06")
	rows := []*prescribing.PriceRow{
		priceRow("P001", "0403030D0AAAAAA", period, 100, 100), // £1.00/unit
		priceRow("P002", "0403030D0AAAAAA", period, 120, 100), // £1.20/unit
		priceRow("P003", "0403030D0AAAAAA", period, 200, 100), // £2.00/unit
	}

	records, skipped := NewEstimator(3).Estimate(period, rows)
	if len(skipped) != 0 {
		t.Fatalf("unexpected skips: %+v", skipped)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	byOrg := map[string]*Record{}
	for _, rec := range records {
		byOrg[rec.OrgCode] = rec
		if rec.BenchmarkPrice != 1.00 {
			t.Errorf("%s benchmark = %v, want 1.00", rec.OrgCode, rec.BenchmarkPrice)
		}
	}

	if got := byOrg["P003"].PossibleSavings; got != 100 {
		t.Errorf("P003 savings = %v, want (2.00-1.00)*100 = 100", got)
	}
	if got := byOrg["P002"].PossibleSavings; math.Abs(got-20) > 1e-9 {
		t.Errorf("P002 savings = %v, want 20", got)
	}
	if got := byOrg["P001"].PossibleSavings; got != 0 {
		t.Errorf("benchmark org savings = %v, want 0", got)
	}
}

func TestEstimate_SignPreserved(t *testing.T) {
	period := prescribing.Period("2024-06")
	rows := []*prescribing.PriceRow{
		priceRow("P001", "X", period, 50, 100),  // £0.50
		priceRow("P002", "X", period, 80, 100),  // £0.80
		priceRow("P003", "X", period, 90, 100),  // £0.90
		priceRow("P004", "X", period, 100, 100), // £1.00
	}

	records, _ := NewEstimator(3).Estimate(period, rows)
	byOrg := map[string]*Record{}
	for _, rec := range records {
		byOrg[rec.OrgCode] = rec
	}

	// n=4 sorted prices [0.50, 0.80, 0.90, 1.00]: the 10th-centile benchmark
	// is 0.50, so nobody is below it here; force a below-benchmark case by
	// checking the invariant instead: savings is non-positive whenever unit
	// price is at or below the benchmark.
	for org, rec := range byOrg {
		if rec.UnitPrice <= rec.BenchmarkPrice && rec.PossibleSavings > 0 {
			t.Errorf("%s: price %v <= benchmark %v but savings %v > 0",
				org, rec.UnitPrice, rec.BenchmarkPrice, rec.PossibleSavings)
		}
		if rec.UnitPrice > rec.BenchmarkPrice && rec.PossibleSavings <= 0 {
			t.Errorf("%s: price %v > benchmark %v but savings %v <= 0",
				org, rec.UnitPrice, rec.BenchmarkPrice, rec.PossibleSavings)
		}
	}
}

func TestEstimate_ZeroQuantityExcluded(t *testing.T) {
	period := prescribing.Period("2024-06")
	rows := []*prescribing.PriceRow{
		priceRow("P001", "X", period, 100, 100),
		priceRow("P002", "X", period, 120, 100),
		priceRow("P003", "X", period, 200, 100),
		priceRow("P004", "X", period, 50, 0), // no quantity, no unit price
	}

	records, _ := NewEstimator(3).Estimate(period, rows)
	for _, rec := range records {
		if rec.OrgCode == "P004" {
			t.Fatal("zero-quantity org emitted")
		}
	}
	if len(records) != 3 {
		t.Errorf("got %d records, want 3", len(records))
	}
	// P004 must not have dragged the benchmark down either.
	if records[0].BenchmarkPrice != 1.00 {
		t.Errorf("benchmark = %v, want 1.00", records[0].BenchmarkPrice)
	}
}

func TestEstimate_MinPeerGuard(t *testing.T) {
	period := prescribing.Period("2024-06")
	rows := []*prescribing.PriceRow{
		priceRow("P001", "RARE", period, 100, 10),
		priceRow("P002", "RARE", period, 110, 10),
		priceRow("P001", "COMMON", period, 100, 100),
		priceRow("P002", "COMMON", period, 120, 100),
		priceRow("P003", "COMMON", period, 200, 100),
	}

	records, skipped := NewEstimator(3).Estimate(period, rows)

	for _, rec := range records {
		if rec.PresentationCode == "RARE" {
			t.Fatal("under-populated presentation computed anyway")
		}
	}
	if len(skipped) != 1 {
		t.Fatalf("got %d skips, want 1", len(skipped))
	}
	skip := skipped[0]
	if skip.PresentationCode != "RARE" || skip.PeerCount != 2 {
		t.Errorf("skip = %+v", skip)
	}
	if !errors.Is(skip.Reason, ErrInsufficientPeers) {
		t.Errorf("skip reason = %v", skip.Reason)
	}
}

func TestEstimate_OtherPeriodsIgnored(t *testing.T) {
	period := prescribing.Period("2024-06")
	rows := []*prescribing.PriceRow{
		priceRow("P001", "X", period, 100, 100),
		priceRow("P002", "X", period, 120, 100),
		priceRow("P003", "X", period, 200, 100),
		priceRow("P004", "X", "2024-05", 1, 1000), // stale month
	}

	records, _ := NewEstimator(3).Estimate(period, rows)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for _, rec := range records {
		if rec.Period != period {
			t.Errorf("record carries period %s", rec.Period)
		}
		if rec.BenchmarkPrice != 1.00 {
			t.Errorf("benchmark = %v, want 1.00 (stale month ignored)", rec.BenchmarkPrice)
		}
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	period := prescribing.Period("2024-06")
	rows := []*prescribing.PriceRow{
		priceRow("P003", "B", period, 200, 100),
		priceRow("P001", "A", period, 100, 100),
		priceRow("P002", "B", period, 120, 100),
		priceRow("P002", "A", period, 120, 100),
		priceRow("P001", "B", period, 100, 100),
		priceRow("P003", "A", period, 200, 100),
	}
	reversed := make([]*prescribing.PriceRow, len(rows))
	for i, row := range rows {
		reversed[len(rows)-1-i] = row
	}

	a, _ := NewEstimator(3).Estimate(period, rows)
	b, _ := NewEstimator(3).Estimate(period, reversed)

	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if *a[i] != *b[i] {
			t.Errorf("row %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

type mockSavingsRepo struct {
	byOrg map[string][]*Record
}

func (m *mockSavingsRepo) ReplacePeriod(ctx context.Context, period prescribing.Period, records []*Record) error {
	return nil
}

func (m *mockSavingsRepo) ListByOrg(ctx context.Context, orgCode string, period prescribing.Period) ([]*Record, error) {
	return m.byOrg[orgCode], nil
}

func (m *mockSavingsRepo) ListByPresentation(ctx context.Context, presentationCode string, period prescribing.Period) ([]*Record, error) {
	return nil, nil
}

func TestService_FloorAtZero(t *testing.T) {
	repo := &mockSavingsRepo{byOrg: map[string][]*Record{
		"P001": {
			{OrgCode: "P001", PresentationCode: "A", PossibleSavings: 40},
			{OrgCode: "P001", PresentationCode: "B", PossibleSavings: -15},
		},
	}}

	signed, err := NewService(repo, false).OrgSavings(context.Background(), "P001", "2024-06")
	if err != nil {
		t.Fatal(err)
	}
	if signed[1].PossibleSavings != -15 {
		t.Errorf("signed service altered stored value: %v", signed[1].PossibleSavings)
	}

	floored, err := NewService(repo, true).OrgSavings(context.Background(), "P001", "2024-06")
	if err != nil {
		t.Fatal(err)
	}
	if floored[0].PossibleSavings != 40 || floored[1].PossibleSavings != 0 {
		t.Errorf("floored = %v, %v; want 40, 0", floored[0].PossibleSavings, floored[1].PossibleSavings)
	}
	// The floor is presentation-only: the stored row keeps its sign.
	if repo.byOrg["P001"][1].PossibleSavings != -15 {
		t.Error("floor mutated the underlying record")
	}
}

func TestService_TotalForOrg(t *testing.T) {
	repo := &mockSavingsRepo{byOrg: map[string][]*Record{
		"P001": {
			{PossibleSavings: 40},
			{PossibleSavings: -15},
			{PossibleSavings: 60},
		},
	}}

	total, err := NewService(repo, false).TotalForOrg(context.Background(), "P001", "2024-06")
	if err != nil {
		t.Fatal(err)
	}
	if total != 100 {
		t.Errorf("total = %v, want 100 (negatives not offset)", total)
	}
}
