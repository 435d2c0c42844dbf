package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"membership-crm/core/internal/token/domain"
)

// PostgresSessionRepository stores refresh sessions in refresh_sessions.
type PostgresSessionRepository struct {
	db *sql.DB
}

// NewPostgresSessionRepository returns a session repository backed by db.
func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

// Create persists one session entry.
func (r *PostgresSessionRepository) Create(ctx context.Context, rec *domain.RefreshTokenRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_id, user_id, expires_at, created_at, last_used_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.TokenID, rec.UserID, rec.ExpiresAt, rec.CreatedAt,
		timeToNullTime(rec.LastUsedAt),
		sql.NullString{String: rec.UserAgent, Valid: rec.UserAgent != ""},
		sql.NullString{String: rec.IPAddress, Valid: rec.IPAddress != ""},
	)
	return err
}

// Get returns the session for tokenID, or nil if absent. Errors only on
// database failures, not for missing rows.
func (r *PostgresSessionRepository) Get(ctx context.Context, tokenID string) (*domain.RefreshTokenRecord, error) {
	rec, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT token_id, user_id, expires_at, created_at, last_used_at, user_agent, ip_address
		FROM refresh_sessions WHERE token_id = $1`, tokenID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ListByUser returns the user's sessions, oldest first.
func (r *PostgresSessionRepository) ListByUser(ctx context.Context, userID string) ([]*domain.RefreshTokenRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT token_id, user_id, expires_at, created_at, last_used_at, user_agent, ip_address
		FROM refresh_sessions WHERE user_id = $1 ORDER BY created_at ASC, token_id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RefreshTokenRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes one session entry. The single-row DELETE is the atomic claim:
// of two concurrent rotations, exactly one observes removed=true.
func (r *PostgresSessionRepository) Delete(ctx context.Context, userID, tokenID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_sessions WHERE user_id = $1 AND token_id = $2`, userID, tokenID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteAllByUser clears the user's session list.
func (r *PostgresSessionRepository) DeleteAllByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE user_id = $1`, userID)
	return err
}

// TouchLastUsed stamps the session's last-used time.
func (r *PostgresSessionRepository) TouchLastUsed(ctx context.Context, tokenID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET last_used_at = $2 WHERE token_id = $1`, tokenID, at)
	return err
}

// DeleteExpired removes sessions whose tokens have expired on their own.
func (r *PostgresSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.RefreshTokenRecord, error) {
	var (
		rec      domain.RefreshTokenRecord
		lastUsed sql.NullTime
		ua, ip   sql.NullString
	)
	if err := row.Scan(&rec.TokenID, &rec.UserID, &rec.ExpiresAt, &rec.CreatedAt, &lastUsed, &ua, &ip); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		rec.LastUsedAt = &lastUsed.Time
	}
	rec.UserAgent = ua.String
	rec.IPAddress = ip.String
	return &rec, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// PostgresBlacklistRepository stores revocation entries in token_blacklist.
type PostgresBlacklistRepository struct {
	db *sql.DB
}

// NewPostgresBlacklistRepository returns a blacklist repository backed by db.
func NewPostgresBlacklistRepository(db *sql.DB) *PostgresBlacklistRepository {
	return &PostgresBlacklistRepository{db: db}
}

// Add records a blacklist entry. ON CONFLICT DO NOTHING keeps the first
// reason: entries are append-only and never mutated.
func (r *PostgresBlacklistRepository) Add(ctx context.Context, entry *domain.BlacklistEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO token_blacklist (token_id, user_id, reason, blacklisted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_id) DO NOTHING`,
		entry.TokenID, entry.UserID, string(entry.Reason), entry.BlacklistedAt, entry.ExpiresAt)
	return err
}

// Contains reports whether tokenID has a live blacklist entry. Expired entries
// count as absent; by then the token's own exp claim rejects it anyway.
func (r *PostgresBlacklistRepository) Contains(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM token_blacklist WHERE token_id = $1 AND expires_at > $2
		)`, tokenID, now).Scan(&exists)
	return exists, err
}

// DeleteExpired prunes entries past their TTL.
func (r *PostgresBlacklistRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM token_blacklist WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
