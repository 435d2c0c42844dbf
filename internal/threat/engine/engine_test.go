package engine

import (
	"context"
	"math"
	"testing"
	"time"

	auditdomain "membership-crm/core/internal/audit/domain"
	"membership-crm/core/internal/threat/domain"
)

type fakeAudits struct {
	failures       int
	distinctActors int
	hourlyCounts   []int
}

func (f *fakeAudits) Create(ctx context.Context, e *auditdomain.Event) error { return nil }

func (f *fakeAudits) ListRecent(ctx context.Context, limit int32) ([]*auditdomain.Event, error) {
	return nil, nil
}

func (f *fakeAudits) CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	return f.failures, nil
}

func (f *fakeAudits) CountDistinctFailureActorsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	return f.distinctActors, nil
}

func (f *fakeAudits) FailureCountsByHour(ctx context.Context, since time.Time) ([]int, error) {
	return f.hourlyCounts, nil
}

func (f *fakeAudits) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeThreats struct {
	records []*domain.SecurityThreat
}

func (f *fakeThreats) Create(ctx context.Context, threat *domain.SecurityThreat) error {
	cp := *threat
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeThreats) GetOpen(ctx context.Context, ip string, threatType domain.ThreatType) (*domain.SecurityThreat, error) {
	for _, rec := range f.records {
		if rec.IPAddress == ip && rec.Type == threatType && rec.Status.Open() {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeThreats) Update(ctx context.Context, threat *domain.SecurityThreat) error {
	for i, rec := range f.records {
		if rec.ID == threat.ID {
			cp := *threat
			f.records[i] = &cp
			return nil
		}
	}
	return nil
}

func (f *fakeThreats) ListOpen(ctx context.Context, limit int32) ([]*domain.SecurityThreat, error) {
	var out []*domain.SecurityThreat
	for _, rec := range f.records {
		if rec.Status.Open() {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeThreats) byType(threatType domain.ThreatType) []*domain.SecurityThreat {
	var out []*domain.SecurityThreat
	for _, rec := range f.records {
		if rec.Type == threatType {
			out = append(out, rec)
		}
	}
	return out
}

type fakeBaselines struct {
	baseline *domain.SecurityBaseline
}

func (f *fakeBaselines) Get(ctx context.Context, category string) (*domain.SecurityBaseline, error) {
	if f.baseline == nil || f.baseline.Category != category {
		return nil, nil
	}
	cp := *f.baseline
	return &cp, nil
}

func (f *fakeBaselines) Upsert(ctx context.Context, baseline *domain.SecurityBaseline) error {
	cp := *baseline
	f.baseline = &cp
	return nil
}

func newTestEngine(audits *fakeAudits, baseline *domain.SecurityBaseline) (*Engine, *fakeThreats, *fakeBaselines) {
	threats := &fakeThreats{}
	baselines := &fakeBaselines{baseline: baseline}
	e := New(audits, threats, baselines)
	e.rand = func() float64 { return 1 } // never recalculate inline
	return e, threats, baselines
}

func TestAnalyze_BruteForce(t *testing.T) {
	audits := &fakeAudits{failures: 5}
	e, threats, _ := newTestEngine(audits, nil)

	if err := e.Analyze(context.Background(), "10.0.0.1", "u1"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	brute := threats.byType(domain.TypeBruteForce)
	if len(brute) != 1 {
		t.Fatalf("BRUTE_FORCE threats = %d, want 1", len(brute))
	}
	if brute[0].Severity != domain.SeverityHigh {
		t.Errorf("severity = %s, want HIGH", brute[0].Severity)
	}
	if brute[0].Status != domain.StatusActive || brute[0].EvidenceCount != 1 {
		t.Errorf("threat = %+v", brute[0])
	}
	if spikes := threats.byType(domain.TypeAnomalySpike); len(spikes) != 0 {
		t.Errorf("ANOMALY_SPIKE created without a trained baseline")
	}
}

func TestAnalyze_BruteForceCritical(t *testing.T) {
	audits := &fakeAudits{failures: 10}
	e, threats, _ := newTestEngine(audits, nil)

	if err := e.Analyze(context.Background(), "10.0.0.1", ""); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	brute := threats.byType(domain.TypeBruteForce)
	if len(brute) != 1 || brute[0].Severity != domain.SeverityCritical {
		t.Errorf("threats = %+v, want one CRITICAL BRUTE_FORCE", brute)
	}
}

func TestAnalyze_BelowThresholdIsQuiet(t *testing.T) {
	audits := &fakeAudits{failures: 4, distinctActors: 2}
	e, threats, _ := newTestEngine(audits, nil)

	if err := e.Analyze(context.Background(), "10.0.0.1", ""); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(threats.records) != 0 {
		t.Errorf("threats = %+v, want none", threats.records)
	}
}

func TestAnalyze_CredentialStuffing(t *testing.T) {
	audits := &fakeAudits{failures: 10, distinctActors: 3}
	e, threats, _ := newTestEngine(audits, nil)

	if err := e.Analyze(context.Background(), "10.0.0.1", "u3"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	stuffing := threats.byType(domain.TypeCredentialStuffing)
	if len(stuffing) != 1 {
		t.Fatalf("CREDENTIAL_STUFFING threats = %d, want 1", len(stuffing))
	}
	if stuffing[0].Severity != domain.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", stuffing[0].Severity)
	}
	if got := stuffing[0].Metadata["account_count"]; got != 3 {
		t.Errorf("account_count = %v, want 3", got)
	}
}

func TestAnalyze_NoAnomalyWithThinBaseline(t *testing.T) {
	// A baseline at exactly the gate does not unlock the statistical path,
	// no matter how loud the failure volume is.
	audits := &fakeAudits{failures: 500}
	e, threats, _ := newTestEngine(audits, &domain.SecurityBaseline{
		Category:              domain.CategoryGlobal,
		AvgFailuresPerHour:    1,
		StdDevFailuresPerHour: 1,
		SampleSize:            100,
		AnomalyThreshold:      3,
	})

	if err := e.Analyze(context.Background(), "10.0.0.1", ""); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if spikes := threats.byType(domain.TypeAnomalySpike); len(spikes) != 0 {
		t.Errorf("ANOMALY_SPIKE created with sampleSize at the gate")
	}
}

func TestAnalyze_AnomalySpike(t *testing.T) {
	baseline := &domain.SecurityBaseline{
		Category:              domain.CategoryGlobal,
		AvgFailuresPerHour:    6, // scaled mean 1
		StdDevFailuresPerHour: 3, // scaled stddev floors at 1
		SampleSize:            101,
		AnomalyThreshold:      3,
	}

	// z = failures - 1 after scaling. 5 failures: z=4, HIGH. 12 failures:
	// z=11, CRITICAL.
	audits := &fakeAudits{failures: 5}
	e, threats, _ := newTestEngine(audits, baseline)
	if err := e.Analyze(context.Background(), "10.0.0.1", ""); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	spikes := threats.byType(domain.TypeAnomalySpike)
	if len(spikes) != 1 || spikes[0].Severity != domain.SeverityHigh {
		t.Fatalf("spikes = %+v, want one HIGH ANOMALY_SPIKE", spikes)
	}

	audits = &fakeAudits{failures: 12}
	e, threats, _ = newTestEngine(audits, baseline)
	if err := e.Analyze(context.Background(), "10.0.0.1", ""); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	spikes = threats.byType(domain.TypeAnomalySpike)
	if len(spikes) != 1 || spikes[0].Severity != domain.SeverityCritical {
		t.Fatalf("spikes = %+v, want one CRITICAL ANOMALY_SPIKE", spikes)
	}
}

func TestAnalyze_RepeatEvidenceFoldsIntoOneThreat(t *testing.T) {
	audits := &fakeAudits{failures: 5}
	e, threats, _ := newTestEngine(audits, nil)
	ctx := context.Background()

	if err := e.Analyze(ctx, "10.0.0.1", ""); err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	audits.failures = 10
	if err := e.Analyze(ctx, "10.0.0.1", ""); err != nil {
		t.Fatalf("second Analyze: %v", err)
	}

	brute := threats.byType(domain.TypeBruteForce)
	if len(brute) != 1 {
		t.Fatalf("BRUTE_FORCE records = %d, want 1", len(brute))
	}
	if brute[0].EvidenceCount != 2 {
		t.Errorf("evidenceCount = %d, want 2", brute[0].EvidenceCount)
	}
	// Newest observation wins.
	if brute[0].Severity != domain.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL after escalation", brute[0].Severity)
	}
}

func TestAnalyze_ResolvedThreatOpensFreshRecord(t *testing.T) {
	audits := &fakeAudits{failures: 5}
	e, threats, _ := newTestEngine(audits, nil)
	ctx := context.Background()

	if err := e.Analyze(ctx, "10.0.0.1", ""); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	threats.records[0].Status = domain.StatusResolved

	if err := e.Analyze(ctx, "10.0.0.1", ""); err != nil {
		t.Fatalf("Analyze after resolve: %v", err)
	}
	brute := threats.byType(domain.TypeBruteForce)
	if len(brute) != 2 {
		t.Fatalf("BRUTE_FORCE records = %d, want 2 after resolution", len(brute))
	}
	if brute[1].EvidenceCount != 1 || brute[1].Status != domain.StatusActive {
		t.Errorf("fresh record = %+v", brute[1])
	}
}

func TestAnalyze_EmptyIPIsNoop(t *testing.T) {
	audits := &fakeAudits{failures: 100}
	e, threats, _ := newTestEngine(audits, nil)
	if err := e.Analyze(context.Background(), "", "u1"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(threats.records) != 0 {
		t.Errorf("threats created for empty ip")
	}
}

func TestAnalyze_InlineRecalculation(t *testing.T) {
	audits := &fakeAudits{hourlyCounts: []int{2, 4, 6}}
	e, _, baselines := newTestEngine(audits, nil)
	e.rand = func() float64 { return 0 } // always recalculate

	if err := e.Analyze(context.Background(), "10.0.0.1", ""); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if baselines.baseline == nil {
		t.Fatal("inline recalculation did not upsert a baseline")
	}
	if baselines.baseline.SampleSize != 12 {
		t.Errorf("sampleSize = %d, want 12", baselines.baseline.SampleSize)
	}
}

func TestRecalculateBaseline(t *testing.T) {
	audits := &fakeAudits{hourlyCounts: []int{2, 4, 6}}
	e, _, baselines := newTestEngine(audits, nil)

	if err := e.RecalculateBaseline(context.Background()); err != nil {
		t.Fatalf("RecalculateBaseline: %v", err)
	}

	b := baselines.baseline
	if b == nil {
		t.Fatal("no baseline upserted")
	}
	if b.AvgFailuresPerHour != 4 {
		t.Errorf("mean = %f, want 4", b.AvgFailuresPerHour)
	}
	wantStdDev := math.Sqrt(8.0 / 3.0)
	if math.Abs(b.StdDevFailuresPerHour-wantStdDev) > 1e-9 {
		t.Errorf("stddev = %f, want %f", b.StdDevFailuresPerHour, wantStdDev)
	}
	if b.SampleSize != 12 {
		t.Errorf("sampleSize = %d, want 12", b.SampleSize)
	}
	if b.AnomalyThreshold != defaultAnomalyThreshold {
		t.Errorf("anomalyThreshold = %f, want default", b.AnomalyThreshold)
	}
}

func TestRecalculateBaseline_KeepsTunedThreshold(t *testing.T) {
	audits := &fakeAudits{hourlyCounts: []int{1, 1}}
	e, _, baselines := newTestEngine(audits, &domain.SecurityBaseline{
		Category:         domain.CategoryGlobal,
		AnomalyThreshold: 5.5,
	})

	if err := e.RecalculateBaseline(context.Background()); err != nil {
		t.Fatalf("RecalculateBaseline: %v", err)
	}
	if baselines.baseline.AnomalyThreshold != 5.5 {
		t.Errorf("anomalyThreshold = %f, want 5.5 preserved", baselines.baseline.AnomalyThreshold)
	}
}

func TestRecalculateBaseline_EmptyWindow(t *testing.T) {
	audits := &fakeAudits{}
	e, _, baselines := newTestEngine(audits, nil)

	if err := e.RecalculateBaseline(context.Background()); err != nil {
		t.Fatalf("RecalculateBaseline: %v", err)
	}
	b := baselines.baseline
	if b.AvgFailuresPerHour != 0 || b.StdDevFailuresPerHour != 0 || b.SampleSize != 0 {
		t.Errorf("baseline = %+v, want zeroed stats", b)
	}
}
