package engine

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	auditrepo "membership-crm/core/internal/audit/repository"
	"membership-crm/core/internal/threat/domain"
	"membership-crm/core/internal/threat/repository"
)

const (
	// analysisWindow is the trailing window one analysis pass looks at.
	analysisWindow = 10 * time.Minute
	// baselineWindow is the trailing window a baseline is computed over.
	baselineWindow = 24 * time.Hour

	// minSampleSize gates the statistical path: below this the baseline is
	// too thin to call anything an anomaly.
	minSampleSize = 100
	// hourlyToWindow scales an hourly baseline down to the analysis window.
	hourlyToWindow = 6

	bruteForceThreshold = 5
	bruteForceCritical  = 10
	stuffingThreshold   = 3
	criticalZScore      = 10

	defaultAnomalyThreshold = 3.0

	// recalcProbability is the chance one analysis pass also refreshes the
	// baseline inline. The worker's scheduled job is the authoritative path.
	recalcProbability = 0.01
)

// Engine runs rule-based and statistical detection over the audit trail.
// It is always invoked fire-and-forget relative to the request that produced
// the triggering event; its errors are the queue's problem, never the
// caller's.
type Engine struct {
	audits    auditrepo.Repository
	threats   repository.ThreatRepository
	baselines repository.BaselineRepository
	now       func() time.Time
	rand      func() float64
}

// New wires a detection engine over the given repositories.
func New(audits auditrepo.Repository, threats repository.ThreatRepository, baselines repository.BaselineRepository) *Engine {
	return &Engine{
		audits:    audits,
		threats:   threats,
		baselines: baselines,
		now:       func() time.Time { return time.Now().UTC() },
		rand:      rand.Float64,
	}
}

// Analyze inspects the trailing window of failures from ip. The statistical
// path only fires once the baseline has seen enough samples; the rule path
// always runs. actor is the account the triggering event concerned, carried
// for evidence only.
func (e *Engine) Analyze(ctx context.Context, ip, actor string) error {
	if ip == "" {
		return nil
	}
	now := e.now()
	since := now.Add(-analysisWindow)

	recentFailures, err := e.audits.CountFailuresByIP(ctx, ip, since)
	if err != nil {
		return err
	}

	baseline, err := e.baselines.Get(ctx, domain.CategoryGlobal)
	if err != nil {
		return err
	}
	if baseline != nil && baseline.SampleSize > minSampleSize {
		scaledMean := baseline.AvgFailuresPerHour / hourlyToWindow
		scaledStdDev := baseline.StdDevFailuresPerHour / hourlyToWindow
		if scaledStdDev < 1 {
			scaledStdDev = 1
		}
		z := (float64(recentFailures) - scaledMean) / scaledStdDev
		if z > baseline.AnomalyThreshold {
			severity := domain.SeverityHigh
			if z > criticalZScore {
				severity = domain.SeverityCritical
			}
			err := e.CreateOrUpdateThreat(ctx, ip, domain.TypeAnomalySpike, severity, map[string]any{
				"z_score":         z,
				"recent_failures": recentFailures,
			})
			if err != nil {
				return err
			}
		}
	}

	if recentFailures >= bruteForceThreshold {
		severity := domain.SeverityHigh
		if recentFailures >= bruteForceCritical {
			severity = domain.SeverityCritical
		}
		err := e.CreateOrUpdateThreat(ctx, ip, domain.TypeBruteForce, severity, map[string]any{
			"failure_count": recentFailures,
			"last_actor":    actor,
		})
		if err != nil {
			return err
		}
	}

	accountCount, err := e.audits.CountDistinctFailureActorsByIP(ctx, ip, since)
	if err != nil {
		return err
	}
	if accountCount >= stuffingThreshold {
		err := e.CreateOrUpdateThreat(ctx, ip, domain.TypeCredentialStuffing, domain.SeverityCritical, map[string]any{
			"account_count": accountCount,
			"failure_count": recentFailures,
		})
		if err != nil {
			return err
		}
	}

	if e.rand() < recalcProbability {
		if err := e.RecalculateBaseline(ctx); err != nil {
			log.Printf("threat: inline baseline recalculation failed: %v", err)
		}
	}
	return nil
}

// RecalculateBaseline recomputes the global baseline from the trailing day of
// hourly failure counts and upserts it. An operator-tuned anomaly threshold
// survives recalculation.
func (e *Engine) RecalculateBaseline(ctx context.Context) error {
	now := e.now()
	counts, err := e.audits.FailureCountsByHour(ctx, now.Add(-baselineWindow))
	if err != nil {
		return err
	}

	var sum int
	for _, c := range counts {
		sum += c
	}
	var mean, stdDev float64
	if len(counts) > 0 {
		mean = float64(sum) / float64(len(counts))
		var variance float64
		for _, c := range counts {
			d := float64(c) - mean
			variance += d * d
		}
		stdDev = math.Sqrt(variance / float64(len(counts)))
	}

	threshold := defaultAnomalyThreshold
	if prev, err := e.baselines.Get(ctx, domain.CategoryGlobal); err == nil && prev != nil && prev.AnomalyThreshold > 0 {
		threshold = prev.AnomalyThreshold
	}

	return e.baselines.Upsert(ctx, &domain.SecurityBaseline{
		Category:              domain.CategoryGlobal,
		AvgFailuresPerHour:    mean,
		StdDevFailuresPerHour: stdDev,
		SampleSize:            sum,
		AnomalyThreshold:      threshold,
		LastUpdated:           now,
	})
}

// CreateOrUpdateThreat folds the observation into the open threat for
// (ip, threatType), or opens a new ACTIVE one. The newest observation wins:
// severity and metadata are overwritten, never downgraded-and-kept.
func (e *Engine) CreateOrUpdateThreat(ctx context.Context, ip string, threatType domain.ThreatType, severity domain.Severity, metadata map[string]any) error {
	now := e.now()
	existing, err := e.threats.GetOpen(ctx, ip, threatType)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.EvidenceCount++
		existing.Severity = severity
		existing.LastDetected = now
		existing.Metadata = metadata
		return e.threats.Update(ctx, existing)
	}
	return e.threats.Create(ctx, &domain.SecurityThreat{
		ID:            uuid.NewString(),
		IPAddress:     ip,
		Type:          threatType,
		Severity:      severity,
		Status:        domain.StatusActive,
		EvidenceCount: 1,
		FirstDetected: now,
		LastDetected:  now,
		Metadata:      metadata,
	})
}

// ActiveThreats returns open threats for the admin surface, newest first.
func (e *Engine) ActiveThreats(ctx context.Context, limit int32) ([]*domain.SecurityThreat, error) {
	return e.threats.ListOpen(ctx, limit)
}

// CurrentBaseline returns the global baseline, or nil before the first
// recalculation.
func (e *Engine) CurrentBaseline(ctx context.Context) (*domain.SecurityBaseline, error) {
	return e.baselines.Get(ctx, domain.CategoryGlobal)
}
