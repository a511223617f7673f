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

type AccessTokenRepository interface {
	Create(ctx context.Context, token *models.AccessToken) error
	GetByID(ctx context.Context, id string) (*models.AccessToken, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

type accessTokenRepository struct {
	DB dbx.DBTX
}

func NewAccessTokenRepository(db dbx.DBTX) AccessTokenRepository {
	return &accessTokenRepository{DB: db}
}

func (r *accessTokenRepository) Create(ctx context.Context, token *models.AccessToken) error {
	const q = `
		INSERT INTO access_tokens (id, user_id, name, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	var expiresAt sql.NullTime
	if token.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *token.ExpiresAt, Valid: true}
	}
	err := r.DB.QueryRowContext(ctx, q, token.ID, token.UserID, token.Name, token.TokenHash, expiresAt).
		Scan(&token.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return oops.In("access_tokens").With("operation", "create").Wrap(err)
	}
	return nil
}

func (r *accessTokenRepository) GetByID(ctx context.Context, id string) (*models.AccessToken, error) {
	const q = `
		SELECT id, user_id, name, token_hash, created_at, last_used_at, expires_at
		FROM access_tokens
		WHERE id = $1
	`
	t := &models.AccessToken{}
	var lastUsed, expires sql.NullTime
	err := r.DB.QueryRowContext(ctx, q, id).
		Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.CreatedAt, &lastUsed, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("access_tokens").With("operation", "get").Wrap(err)
	}
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.Time
	}
	if expires.Valid {
		t.ExpiresAt = &expires.Time
	}
	return t, nil
}

func (r *accessTokenRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE access_tokens SET last_used_at = $1 WHERE id = $2`
	if _, err := r.DB.ExecContext(ctx, q, at, id); err != nil {
		return oops.In("access_tokens").With("operation", "touch").Wrap(err)
	}
	return nil
}

// Delete removes one token. Deleting a token that is already gone is not an error.
func (r *accessTokenRepository) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM access_tokens WHERE id = $1`
	if _, err := r.DB.ExecContext(ctx, q, id); err != nil {
		return oops.In("access_tokens").With("operation", "delete").Wrap(err)
	}
	return nil
}

func (r *accessTokenRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	const q = `DELETE FROM access_tokens WHERE user_id = $1`
	res, err := r.DB.ExecContext(ctx, q, userID)
	if err != nil {
		return 0, oops.In("access_tokens").With("operation", "delete_by_user").Wrap(err)
	}
	return res.RowsAffected()
}
