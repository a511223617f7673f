package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/samber/oops"

	"blogapi/internal/dbx"
	"blogapi/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	List(ctx context.Context) ([]*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id int64) error
}

type postRepository struct {
	DB dbx.DBTX
}

func NewPostRepository(db dbx.DBTX) PostRepository {
	return &postRepository{DB: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	const q = `
		INSERT INTO posts (user_id, title, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.DB.QueryRowContext(ctx, q, post.UserID, post.Title, post.Content).
		Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return oops.In("posts").With("operation", "create").Wrap(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	const q = `
		SELECT id, user_id, title, content, created_at, updated_at
		FROM posts
		WHERE id = $1
	`
	p := &models.Post{}
	err := r.DB.QueryRowContext(ctx, q, id).
		Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("posts").With("operation", "get").With("post_id", id).Wrap(err)
	}
	return p, nil
}

func (r *postRepository) List(ctx context.Context) ([]*models.Post, error) {
	const q = `
		SELECT id, user_id, title, content, created_at, updated_at
		FROM posts
		ORDER BY id
	`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, oops.In("posts").With("operation", "list").Wrap(err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p := &models.Post{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, oops.In("posts").With("operation", "list").Wrap(err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("posts").With("operation", "list").Wrap(err)
	}
	return posts, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	const q = `
		UPDATE posts SET title = $1, content = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at
	`
	err := r.DB.QueryRowContext(ctx, q, post.Title, post.Content, post.ID).Scan(&post.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return oops.In("posts").With("operation", "update").With("post_id", post.ID).Wrap(err)
	}
	return nil
}

// Delete removes the post; its comments go with it through ON DELETE CASCADE.
func (r *postRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return oops.In("posts").With("operation", "delete").With("post_id", id).Wrap(err)
	}
	return expectAffected(res)
}
