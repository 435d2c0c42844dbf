package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"membership-crm/core/internal/rfid/domain"
)

// PostgresRepository stores card credentials in rfid_credentials.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a credential repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, cred *domain.Credential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rfid_credentials (card_uid, api_key, user_id, in_space, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		cred.CardUID, cred.APIKey, cred.UserID, cred.InSpace, cred.CreatedAt,
	)
	return err
}

// GetByCardUID returns the credential for cardUID, or nil if the card is not
// registered.
func (r *PostgresRepository) GetByCardUID(ctx context.Context, cardUID string) (*domain.Credential, error) {
	cred := &domain.Credential{}
	var checkedIn, checkedOut sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT card_uid, api_key, user_id, in_space, checked_in_at, checked_out_at, created_at
		FROM rfid_credentials WHERE card_uid = $1`, cardUID,
	).Scan(&cred.CardUID, &cred.APIKey, &cred.UserID, &cred.InSpace, &checkedIn, &checkedOut, &cred.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if checkedIn.Valid {
		t := checkedIn.Time
		cred.CheckedInAt = &t
	}
	if checkedOut.Valid {
		t := checkedOut.Time
		cred.CheckedOutAt = &t
	}
	return cred, nil
}

func (r *PostgresRepository) SetPresence(ctx context.Context, cardUID string, inSpace bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rfid_credentials
		SET in_space = $2,
		    checked_in_at = CASE WHEN $2 THEN $3 ELSE checked_in_at END,
		    checked_out_at = CASE WHEN NOT $2 THEN $3 ELSE checked_out_at END
		WHERE card_uid = $1`,
		cardUID, inSpace, at,
	)
	return err
}

func (r *PostgresRepository) RotateAPIKey(ctx context.Context, cardUID, apiKey string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rfid_credentials SET api_key = $2 WHERE card_uid = $1`,
		cardUID, apiKey,
	)
	return err
}
