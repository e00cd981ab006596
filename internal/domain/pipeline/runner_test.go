package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rxmetrics/rxmetrics/internal/domain/measure"
	"github.com/rxmetrics/rxmetrics/internal/domain/organization"
	"github.com/rxmetrics/rxmetrics/internal/domain/prescribing"
	"github.com/rxmetrics/rxmetrics/internal/platform/runlog"
)

func strptr(s string) *string { return &s }

type mockOrgRepo struct{ nodes []*organization.Node }

func (m *mockOrgRepo) List(ctx context.Context) ([]*organization.Node, error) { return m.nodes, nil }

func (m *mockOrgRepo) GetByCode(ctx context.Context, code string) (*organization.Node, error) {
	for _, n := range m.nodes {
		if n.Code == code {
			return n, nil
		}
	}
	return nil, fmt.Errorf("no organization %s", code)
}

type mockFeed struct {
	records map[prescribing.Period][]*prescribing.Record
	failOn  map[prescribing.Period]error
}

func (m *mockFeed) ListByPeriod(ctx context.Context, period prescribing.Period) ([]*prescribing.Record, error) {
	if err := m.failOn[period]; err != nil {
		return nil, err
	}
	return m.records[period], nil
}

func (m *mockFeed) Periods(ctx context.Context) ([]prescribing.Period, error) {
	var out []prescribing.Period
	for p := range m.records {
		out = append(out, p)
	}
	for p := range m.failOn {
		out = append(out, p)
	}
	return out, nil
}

type replaceCall struct {
	measureID string
	period    prescribing.Period
	values    []*measure.Value
	globals   []*measure.Global
}

type mockValueRepo struct {
	mu     sync.Mutex
	calls  []replaceCall
	failOn string
}

func (m *mockValueRepo) ReplacePeriod(ctx context.Context, measureID string, period prescribing.Period, values []*measure.Value, globals []*measure.Global) error {
	if measureID == m.failOn {
		return errors.New("write refused")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, replaceCall{measureID: measureID, period: period, values: values, globals: globals})
	return nil
}

func (m *mockValueRepo) GetValue(ctx context.Context, measureID, orgCode string, period prescribing.Period) (*measure.Value, error) {
	return nil, errors.New("not implemented")
}

func (m *mockValueRepo) ListByMeasurePeriod(ctx context.Context, measureID string, period prescribing.Period) ([]*measure.Value, error) {
	return nil, errors.New("not implemented")
}

func (m *mockValueRepo) ListByOrg(ctx context.Context, measureID, orgCode string) ([]*measure.Value, error) {
	return nil, errors.New("not implemented")
}

func (m *mockValueRepo) GetGlobal(ctx context.Context, measureID string, period prescribing.Period, orgType organization.OrgType) (*measure.Global, error) {
	return nil, errors.New("not implemented")
}

func (m *mockValueRepo) call(measureID string, period prescribing.Period) *replaceCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.calls {
		if m.calls[i].measureID == measureID && m.calls[i].period == period {
			return &m.calls[i]
		}
	}
	return nil
}

type mockRunLog struct {
	mu      sync.Mutex
	entries []*runlog.Entry
}

func (m *mockRunLog) Record(ctx context.Context, e *runlog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRunLog) LatestByCategory(ctx context.Context, category string) (*runlog.Entry, error) {
	return nil, errors.New("not implemented")
}

func testNodes() []*organization.Node {
	opened := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	return []*organization.Node{
		{Code: "C01", Type: organization.TypeCCG, OpenedAt: opened},
		{Code: "P001", Type: organization.TypePractice, ParentCode: strptr("C01"), OpenedAt: opened},
		{Code: "P002", Type: organization.TypePractice, ParentCode: strptr("C01"), OpenedAt: opened},
	}
}

func testDef(id string) *measure.Definition {
	return &measure.Definition{
		ID:          id,
		Name:        id,
		Numerator:   measure.Predicate{CodePrefixes: []string{"0703021Q0B"}},
		Denominator: measure.Predicate{CodePrefixes: []string{"0703021Q0"}},
	}
}

func testRunner(feed prescribing.Feed, values measure.ValueRepository, runs runlog.Repository) *Runner {
	orgs := organization.NewService(&mockOrgRepo{nodes: testNodes()})
	return NewRunner(feed, orgs, values, runs, 2, 100, zerolog.Nop())
}

func TestRunner_Run(t *testing.T) {
	period := prescribing.Period("2024-06")
	feed := &mockFeed{records: map[prescribing.Period][]*prescribing.Record{
		period: {
			{OrgCode: "P001", Period: period, BNFCode: "0703021Q0BB", Quantity: 30, Items: 40},
			{OrgCode: "P001", Period: period, BNFCode: "0703021Q0AA", Quantity: 100, Items: 60},
			{OrgCode: "P002", Period: period, BNFCode: "0703021Q0AA", Quantity: 50, Items: 50},
		},
	}}
	repo := &mockValueRepo{}
	runs := &mockRunLog{}

	report, err := testRunner(feed, repo, runs).Run(context.Background(), RunOptions{
		Definitions: []*measure.Definition{testDef("desogestrel")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Units) != 1 || report.Units[0].Err != nil {
		t.Fatalf("report = %+v", report.Units)
	}

	call := repo.call("desogestrel", period)
	if call == nil {
		t.Fatal("nothing persisted")
	}
	// 2 practices + 1 ccg.
	if len(call.values) != 3 {
		t.Fatalf("persisted %d rows, want 3", len(call.values))
	}
	// One global per organization type present.
	if len(call.globals) != 2 {
		t.Fatalf("persisted %d globals, want 2", len(call.globals))
	}

	byOrg := map[string]*measure.Value{}
	for _, v := range call.values {
		byOrg[v.OrgCode] = v
	}
	p1 := byOrg["P001"]
	if p1.CalcValue == nil || *p1.CalcValue != 0.30 {
		t.Errorf("P001 calc value = %v, want 0.30", p1.CalcValue)
	}
	// Percentiles are stored 0-100. P002 ranks below P001.
	if p1.Percentile == nil || *p1.Percentile != 100 {
		t.Errorf("P001 percentile = %v, want 100", p1.Percentile)
	}
	p2 := byOrg["P002"]
	if p2.Percentile == nil || *p2.Percentile != 0 {
		t.Errorf("P002 percentile = %v, want 0", p2.Percentile)
	}
	// The lone ccg ranks against itself only.
	if ccg := byOrg["C01"]; ccg.Percentile == nil || *ccg.Percentile != 0 {
		t.Errorf("C01 percentile = %v, want 0", ccg.Percentile)
	}

	if len(runs.entries) != 1 {
		t.Fatalf("run log entries = %d, want 1", len(runs.entries))
	}
	entry := runs.entries[0]
	if entry.Category != runlog.CategoryMeasures || entry.RowsWritten != 3 {
		t.Errorf("run log entry = %+v", entry)
	}
	if entry.PeriodStart != "2024-06" || entry.PeriodEnd != "2024-06" {
		t.Errorf("run log bounds = %s..%s", entry.PeriodStart, entry.PeriodEnd)
	}
}

func TestRunner_FailureIsolation(t *testing.T) {
	period := prescribing.Period("2024-06")
	feed := &mockFeed{records: map[prescribing.Period][]*prescribing.Record{
		period: {
			{OrgCode: "P001", Period: period, BNFCode: "0703021Q0AA", Quantity: 10, Items: 10},
		},
	}}
	repo := &mockValueRepo{failOn: "poisoned"}

	report, err := testRunner(feed, repo, nil).Run(context.Background(), RunOptions{
		Definitions: []*measure.Definition{testDef("desogestrel"), testDef("poisoned")},
	})
	if err != nil {
		t.Fatal(err)
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].MeasureID != "poisoned" {
		t.Fatalf("failed = %+v", failed)
	}
	if repo.call("desogestrel", period) == nil {
		t.Error("healthy measure did not persist")
	}
	if report.RowsWritten() != 3 {
		t.Errorf("rows written = %d, want 3 (failed unit excluded)", report.RowsWritten())
	}
}

func TestRunner_UpstreamErrorFailsOnlyThatPeriod(t *testing.T) {
	good := prescribing.Period("2024-06")
	bad := prescribing.Period("2024-07")
	feed := &mockFeed{
		records: map[prescribing.Period][]*prescribing.Record{
			good: {{OrgCode: "P001", Period: good, BNFCode: "0703021Q0AA", Quantity: 10, Items: 10}},
		},
		failOn: map[prescribing.Period]error{bad: errors.New("feed offline")},
	}
	repo := &mockValueRepo{}

	report, err := testRunner(feed, repo, nil).Run(context.Background(), RunOptions{
		Definitions: []*measure.Definition{testDef("m")},
		Periods:     []prescribing.Period{good, bad},
	})
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
	if repo.call("m", good) == nil {
		t.Error("healthy period did not persist")
	}
	if repo.call("m", bad) != nil {
		t.Error("failed period persisted anyway")
	}
}

func TestRunner_NoMeasures(t *testing.T) {
	_, err := testRunner(&mockFeed{}, &mockValueRepo{}, nil).Run(context.Background(), RunOptions{})
	if err == nil {
		t.Error("expected error with no measures")
	}
}

func TestFinalize_NullPropagation(t *testing.T) {
	def := testDef("m")
	period := prescribing.Period("2024-06")
	calc := 0.5
	values := map[string]*measure.Value{
		"P001": {MeasureID: "m", OrgCode: "P001", OrgType: organization.TypePractice, Period: period, CalcValue: &calc},
		"P002": {MeasureID: "m", OrgCode: "P002", OrgType: organization.TypePractice, Period: period},
	}

	rows, globals := finalize(def, period, values, 100)

	for _, v := range rows {
		if (v.CalcValue == nil) != (v.Percentile == nil) {
			t.Errorf("%s: calc=%v percentile=%v, want both null or both set",
				v.OrgCode, v.CalcValue, v.Percentile)
		}
	}
	if len(globals) != 1 {
		t.Fatalf("globals = %d, want 1", len(globals))
	}
	if v := globals[0].Centiles[50]; v == nil || *v != 0.5 {
		t.Errorf("median = %v, want 0.5", v)
	}
}

func TestFinalize_RanksPerOrgType(t *testing.T) {
	def := testDef("m")
	period := prescribing.Period("2024-06")
	low, high := 0.1, 0.9
	values := map[string]*measure.Value{
		"P001": {OrgCode: "P001", OrgType: organization.TypePractice, CalcValue: &low},
		"P002": {OrgCode: "P002", OrgType: organization.TypePractice, CalcValue: &high},
		"C01":  {OrgCode: "C01", OrgType: organization.TypeCCG, CalcValue: &high},
	}

	rows, _ := finalize(def, period, values, 1)

	byOrg := map[string]*measure.Value{}
	for _, v := range rows {
		byOrg[v.OrgCode] = v
	}
	// The ccg must not be ranked against the practices: alone in its type,
	// it gets 0 despite sharing P002's value.
	if p := byOrg["C01"].Percentile; p == nil || *p != 0 {
		t.Errorf("C01 percentile = %v, want 0", p)
	}
	if p := byOrg["P002"].Percentile; p == nil || *p != 1 {
		t.Errorf("P002 percentile = %v, want 1", p)
	}
}
