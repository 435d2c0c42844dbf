package repository

import (
	"context"
	"time"

	"membership-crm/core/internal/audit/domain"
)

// Repository defines persistence for the append-only audit trail, including
// the aggregate reads the threat detection engine runs over it.
type Repository interface {
	Create(ctx context.Context, e *domain.Event) error
	ListRecent(ctx context.Context, limit int32) ([]*domain.Event, error)
	// CountFailuresByIP counts FAILURE events from ip since the given time.
	CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error)
	// CountDistinctFailureActorsByIP counts distinct non-empty actors among
	// FAILURE events from ip since the given time.
	CountDistinctFailureActorsByIP(ctx context.Context, ip string, since time.Time) (int, error)
	// FailureCountsByHour returns per-(day,hour) FAILURE counts since the given
	// time, for baseline recalculation.
	FailureCountsByHour(ctx context.Context, since time.Time) ([]int, error)
	// DeleteOlderThan removes events past the retention window.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
