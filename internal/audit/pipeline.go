// Package audit normalizes heterogeneous caller input into canonical audit
// events, persists them append-only, and fires threat analysis for
// security-relevant outcomes without ever blocking or failing the caller.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"membership-crm/core/internal/audit/domain"
	auditrepo "membership-crm/core/internal/audit/repository"
)

// AnalysisTrigger receives fire-and-forget analysis requests. Implementations
// must not block: the pipeline calls Trigger on the request path.
type AnalysisTrigger interface {
	Trigger(ip, actor string)
}

// EventParams is the loose caller input LogEvent normalizes. Only Action is
// required. IP and UserAgent fall back to the ambient request context;
// Severity falls back to the status-derived default.
type EventParams struct {
	EventType string
	Action    string
	Status    domain.Status
	Severity  domain.Severity
	Actor     string
	Target    string
	IP        string
	UserAgent string
	Metadata  domain.Metadata
}

// Pipeline is the audit entry point shared by every component in this core.
type Pipeline struct {
	repo    auditrepo.Repository
	trigger AnalysisTrigger
	now     func() time.Time
}

// NewPipeline returns a Pipeline persisting to repo. trigger may be nil, in
// which case events are recorded but never analyzed.
func NewPipeline(repo auditrepo.Repository, trigger AnalysisTrigger) *Pipeline {
	return &Pipeline{
		repo:    repo,
		trigger: trigger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// LogEvent normalizes params into a canonical event and persists it.
// It never returns an error: audit persistence failures are logged and
// swallowed so the primary operation is unaffected. FAILURE/WARNING outcomes
// and security-sensitive actions additionally trigger threat analysis,
// asynchronously and without awaiting its result.
func (p *Pipeline) LogEvent(ctx context.Context, params EventParams) {
	e := p.normalize(ctx, params)

	if p.repo != nil {
		if err := p.repo.Create(ctx, e); err != nil {
			log.Printf("audit: failed to persist event %s/%s: %v", e.EventType, e.Action, err)
		}
	}

	if p.trigger == nil || e.Context.IP == "" {
		return
	}
	if e.Status == domain.StatusFailure || e.Severity != domain.SeverityInfo || domain.SecuritySensitive(e.Action) {
		p.trigger.Trigger(e.Context.IP, e.Actor)
	}
}

func (p *Pipeline) normalize(ctx context.Context, params EventParams) *domain.Event {
	e := &domain.Event{
		ID:        uuid.New().String(),
		Timestamp: p.now(),
		EventType: params.EventType,
		Status:    params.Status,
		Actor:     params.Actor,
		Target:    params.Target,
		Action:    params.Action,
		Context: domain.RequestContext{
			IP:        params.IP,
			UserAgent: params.UserAgent,
		},
		Metadata: params.Metadata,
	}
	if e.EventType == "" {
		e.EventType = "GENERAL"
	}
	if e.Status == "" {
		e.Status = domain.StatusSuccess
	}
	if e.Context.IP == "" || e.Context.UserAgent == "" {
		if info, ok := ClientInfoFromContext(ctx); ok {
			if e.Context.IP == "" {
				e.Context.IP = info.IP
			}
			if e.Context.UserAgent == "" {
				e.Context.UserAgent = info.UserAgent
			}
		}
	}
	enrichUserAgent(&e.Context)

	switch {
	case params.Severity != "":
		e.Severity = params.Severity
	case e.Status == domain.StatusFailure:
		e.Severity = domain.SeverityWarning
	default:
		e.Severity = domain.SeverityInfo
	}
	return e
}
