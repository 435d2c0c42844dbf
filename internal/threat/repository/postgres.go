package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"membership-crm/core/internal/threat/domain"
)

// PostgresThreatRepository stores threats in security_threat.
type PostgresThreatRepository struct {
	db *sql.DB
}

// NewPostgresThreatRepository returns a threat repository backed by db.
func NewPostgresThreatRepository(db *sql.DB) *PostgresThreatRepository {
	return &PostgresThreatRepository{db: db}
}

func (r *PostgresThreatRepository) Create(ctx context.Context, threat *domain.SecurityThreat) error {
	meta, err := json.Marshal(threat.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO security_threat (id, ip_address, threat_type, severity, status,
			evidence_count, first_detected, last_detected, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		threat.ID, threat.IPAddress, string(threat.Type), string(threat.Severity),
		string(threat.Status), threat.EvidenceCount, threat.FirstDetected,
		threat.LastDetected, meta,
	)
	return err
}

// GetOpen returns the open threat for (ip, type), or nil. At most one such
// row exists: dedupe is enforced at write time by the engine.
func (r *PostgresThreatRepository) GetOpen(ctx context.Context, ip string, threatType domain.ThreatType) (*domain.SecurityThreat, error) {
	threat, err := scanThreat(r.db.QueryRowContext(ctx, `
		SELECT id, ip_address, threat_type, severity, status, evidence_count,
			first_detected, last_detected, metadata
		FROM security_threat
		WHERE ip_address = $1 AND threat_type = $2 AND status IN ('ACTIVE', 'FLAGGED')
		ORDER BY last_detected DESC LIMIT 1`, ip, string(threatType)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return threat, nil
}

func (r *PostgresThreatRepository) Update(ctx context.Context, threat *domain.SecurityThreat) error {
	meta, err := json.Marshal(threat.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE security_threat
		SET severity = $2, status = $3, evidence_count = $4, last_detected = $5, metadata = $6
		WHERE id = $1`,
		threat.ID, string(threat.Severity), string(threat.Status),
		threat.EvidenceCount, threat.LastDetected, meta,
	)
	return err
}

func (r *PostgresThreatRepository) ListOpen(ctx context.Context, limit int32) ([]*domain.SecurityThreat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ip_address, threat_type, severity, status, evidence_count,
			first_detected, last_detected, metadata
		FROM security_threat
		WHERE status IN ('ACTIVE', 'FLAGGED')
		ORDER BY last_detected DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SecurityThreat
	for rows.Next() {
		threat, err := scanThreat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, threat)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThreat(row rowScanner) (*domain.SecurityThreat, error) {
	threat := &domain.SecurityThreat{}
	var threatType, severity, status string
	var meta []byte
	err := row.Scan(&threat.ID, &threat.IPAddress, &threatType, &severity, &status,
		&threat.EvidenceCount, &threat.FirstDetected, &threat.LastDetected, &meta)
	if err != nil {
		return nil, err
	}
	threat.Type = domain.ThreatType(threatType)
	threat.Severity = domain.Severity(severity)
	threat.Status = domain.Status(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &threat.Metadata); err != nil {
			return nil, err
		}
	}
	return threat, nil
}

// PostgresBaselineRepository stores baselines in security_baseline.
type PostgresBaselineRepository struct {
	db *sql.DB
}

// NewPostgresBaselineRepository returns a baseline repository backed by db.
func NewPostgresBaselineRepository(db *sql.DB) *PostgresBaselineRepository {
	return &PostgresBaselineRepository{db: db}
}

func (r *PostgresBaselineRepository) Get(ctx context.Context, category string) (*domain.SecurityBaseline, error) {
	baseline := &domain.SecurityBaseline{}
	err := r.db.QueryRowContext(ctx, `
		SELECT category, avg_failures_per_hour, stddev_failures_per_hour,
			sample_size, anomaly_threshold, last_updated
		FROM security_baseline WHERE category = $1`, category,
	).Scan(&baseline.Category, &baseline.AvgFailuresPerHour, &baseline.StdDevFailuresPerHour,
		&baseline.SampleSize, &baseline.AnomalyThreshold, &baseline.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return baseline, nil
}

func (r *PostgresBaselineRepository) Upsert(ctx context.Context, baseline *domain.SecurityBaseline) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO security_baseline (category, avg_failures_per_hour, stddev_failures_per_hour,
			sample_size, anomaly_threshold, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (category) DO UPDATE SET
			avg_failures_per_hour = EXCLUDED.avg_failures_per_hour,
			stddev_failures_per_hour = EXCLUDED.stddev_failures_per_hour,
			sample_size = EXCLUDED.sample_size,
			anomaly_threshold = EXCLUDED.anomaly_threshold,
			last_updated = EXCLUDED.last_updated`,
		baseline.Category, baseline.AvgFailuresPerHour, baseline.StdDevFailuresPerHour,
		baseline.SampleSize, baseline.AnomalyThreshold, baseline.LastUpdated,
	)
	return err
}
