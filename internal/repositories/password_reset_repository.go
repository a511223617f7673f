package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"blogapi/internal/dbx"
	"blogapi/internal/models"
)

type PasswordResetRepository interface {
	// Upsert stores the pending code for an email, replacing any earlier one.
	Upsert(ctx context.Context, reset *models.PasswordReset) error
	GetForUpdate(ctx context.Context, email string) (*models.PasswordReset, error)
	// Consume deletes the row only if it still carries tokenHash and has not
	// expired at now. It reports whether a row was deleted.
	Consume(ctx context.Context, email, tokenHash string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type passwordResetRepository struct {
	DB dbx.DBTX
}

func NewPasswordResetRepository(db dbx.DBTX) PasswordResetRepository {
	return &passwordResetRepository{DB: db}
}

func (r *passwordResetRepository) Upsert(ctx context.Context, reset *models.PasswordReset) error {
	const q = `
		INSERT INTO password_resets (email, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
		SET token_hash = EXCLUDED.token_hash,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at
	`
	_, err := r.DB.ExecContext(ctx, q, reset.Email, reset.TokenHash, reset.CreatedAt, reset.ExpiresAt)
	if err != nil {
		return oops.In("password_resets").With("operation", "upsert").Wrap(err)
	}
	return nil
}

func (r *passwordResetRepository) GetForUpdate(ctx context.Context, email string) (*models.PasswordReset, error) {
	const q = `
		SELECT email, token_hash, created_at, expires_at
		FROM password_resets
		WHERE email = $1
		FOR UPDATE
	`
	pr := &models.PasswordReset{}
	err := r.DB.QueryRowContext(ctx, q, email).Scan(&pr.Email, &pr.TokenHash, &pr.CreatedAt, &pr.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("password_resets").With("operation", "get").Wrap(err)
	}
	return pr, nil
}

func (r *passwordResetRepository) Consume(ctx context.Context, email, tokenHash string, now time.Time) (bool, error) {
	const q = `
		DELETE FROM password_resets
		WHERE email = $1 AND token_hash = $2 AND expires_at > $3
	`
	res, err := r.DB.ExecContext(ctx, q, email, tokenHash, now)
	if err != nil {
		return false, oops.In("password_resets").With("operation", "consume").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *passwordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM password_resets WHERE expires_at <= $1`
	res, err := r.DB.ExecContext(ctx, q, now)
	if err != nil {
		return 0, oops.In("password_resets").With("operation", "delete_expired").Wrap(err)
	}
	return res.RowsAffected()
}
