package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/samber/oops"

	"blogapi/internal/dbx"
	"blogapi/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

type userRepository struct {
	DB dbx.DBTX
}

func NewUserRepository(db dbx.DBTX) UserRepository {
	return &userRepository{DB: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	const q = `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.DB.QueryRowContext(ctx, q, user.Name, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return oops.In("users").With("operation", "create").Wrap(err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	const q = `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(ctx, q, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return r.scanOne(ctx, q, email)
}

func (r *userRepository) scanOne(ctx context.Context, q string, arg any) (*models.User, error) {
	u := &models.User{}
	err := r.DB.QueryRowContext(ctx, q, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("users").With("operation", "get").Wrap(err)
	}
	return u, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const q = `
		UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2
	`
	res, err := r.DB.ExecContext(ctx, q, passwordHash, id)
	if err != nil {
		return oops.In("users").With("operation", "update_password").Wrap(err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
