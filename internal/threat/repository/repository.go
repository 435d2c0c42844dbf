package repository

import (
	"context"

	"membership-crm/core/internal/threat/domain"
)

// ThreatRepository persists detected threats.
type ThreatRepository interface {
	Create(ctx context.Context, threat *domain.SecurityThreat) error
	// GetOpen returns the open (ACTIVE or FLAGGED) threat for (ip, type), or
	// nil when none exists. Terminal records never match.
	GetOpen(ctx context.Context, ip string, threatType domain.ThreatType) (*domain.SecurityThreat, error)
	// Update overwrites the mutable fields of an existing threat: severity,
	// status, evidence count, last-detected timestamp and metadata.
	Update(ctx context.Context, threat *domain.SecurityThreat) error
	// ListOpen returns open threats, most recently detected first.
	ListOpen(ctx context.Context, limit int32) ([]*domain.SecurityThreat, error)
}

// BaselineRepository persists the per-category failure baselines.
type BaselineRepository interface {
	// Get returns the baseline for category, or nil if never calculated.
	Get(ctx context.Context, category string) (*domain.SecurityBaseline, error)
	Upsert(ctx context.Context, baseline *domain.SecurityBaseline) error
}
