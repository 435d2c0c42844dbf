package repository

import (
	"context"
	"database/sql"
	"time"

	"membership-crm/core/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends one audit event. Events are never updated or deleted outside
// the retention prune.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Event) error {
	kind, payload, err := domain.EncodeMetadata(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, event_type, severity, status, actor, target, action,
			ip, user_agent, os, browser, device, metadata_kind, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		e.ID, e.Timestamp, e.EventType, string(e.Severity), string(e.Status),
		nullIfEmpty(e.Actor), nullIfEmpty(e.Target), e.Action,
		e.Context.IP, nullIfEmpty(e.Context.UserAgent), nullIfEmpty(e.Context.OS),
		nullIfEmpty(e.Context.Browser), nullIfEmpty(e.Context.Device), kind, payload,
	)
	return err
}

// ListRecent returns the newest events, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int32) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ts, event_type, severity, status, actor, target, action,
			ip, user_agent, os, browser, device, metadata_kind, metadata
		FROM audit_log ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountFailuresByIP counts FAILURE events from ip since the given time.
func (r *PostgresRepository) CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_log
		WHERE ip = $1 AND status = 'FAILURE' AND ts >= $2`, ip, since).Scan(&n)
	return n, err
}

// CountDistinctFailureActorsByIP counts distinct failing account identifiers
// seen from ip since the given time.
func (r *PostgresRepository) CountDistinctFailureActorsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT actor) FROM audit_log
		WHERE ip = $1 AND status = 'FAILURE' AND actor IS NOT NULL AND ts >= $2`, ip, since).Scan(&n)
	return n, err
}

// FailureCountsByHour returns hourly FAILURE counts since the given time.
// Hours with no failures produce no row; baseline math treats the returned
// rows as the sample.
func (r *PostgresRepository) FailureCountsByHour(ctx context.Context, since time.Time) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COUNT(*) FROM audit_log
		WHERE status = 'FAILURE' AND ts >= $1
		GROUP BY date_trunc('hour', ts)
		ORDER BY date_trunc('hour', ts)`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes events older than cutoff and returns how many rows went.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEvent(rows *sql.Rows) (*domain.Event, error) {
	var (
		e        domain.Event
		severity, status string
		actor, target, ua, osName, browser, device sql.NullString
		kind     string
		payload  []byte
	)
	if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &severity, &status,
		&actor, &target, &e.Action, &e.Context.IP, &ua, &osName, &browser, &device,
		&kind, &payload); err != nil {
		return nil, err
	}
	e.Severity = domain.Severity(severity)
	e.Status = domain.Status(status)
	e.Actor = actor.String
	e.Target = target.String
	e.Context.UserAgent = ua.String
	e.Context.OS = osName.String
	e.Context.Browser = browser.String
	e.Context.Device = device.String
	meta, err := domain.DecodeMetadata(kind, payload)
	if err != nil {
		return nil, err
	}
	e.Metadata = meta
	return &e, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
