package repository

import (
	"context"
	"time"

	"membership-crm/core/internal/rfid/domain"
)

// Repository persists RFID card credentials.
type Repository interface {
	Create(ctx context.Context, cred *domain.Credential) error
	// GetByCardUID returns nil when no credential matches cardUID.
	GetByCardUID(ctx context.Context, cardUID string) (*domain.Credential, error)
	// SetPresence flips the in-space flag and stamps the matching timestamp
	// (check-in when inSpace is true, check-out when false).
	SetPresence(ctx context.Context, cardUID string, inSpace bool, at time.Time) error
	// RotateAPIKey replaces the stored apiKey, invalidating issued card tokens.
	RotateAPIKey(ctx context.Context, cardUID, apiKey string) error
}
