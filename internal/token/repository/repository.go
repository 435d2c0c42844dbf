package repository

import (
	"context"
	"time"

	"membership-crm/core/internal/token/domain"
)

// SessionRepository persists the per-user live session lists. Delete is the
// atomic claim concurrent rotations race on: exactly one caller sees true.
type SessionRepository interface {
	Create(ctx context.Context, rec *domain.RefreshTokenRecord) error
	// Get returns the record for tokenID, or nil if absent.
	Get(ctx context.Context, tokenID string) (*domain.RefreshTokenRecord, error)
	// ListByUser returns the user's sessions, oldest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.RefreshTokenRecord, error)
	// Delete removes one session entry and reports whether this call removed it.
	Delete(ctx context.Context, userID, tokenID string) (bool, error)
	// DeleteAllByUser clears the user's session list.
	DeleteAllByUser(ctx context.Context, userID string) error
	TouchLastUsed(ctx context.Context, tokenID string, at time.Time) error
	// DeleteExpired removes sessions whose tokens have expired on their own.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// BlacklistRepository persists append-only revocation entries. Lookups must
// treat entries past their TTL as absent.
type BlacklistRepository interface {
	// Add records a blacklist entry. Adding an already-blacklisted tokenID is a
	// no-op, which makes concurrent rotations of the same token safe.
	Add(ctx context.Context, entry *domain.BlacklistEntry) error
	Contains(ctx context.Context, tokenID string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
