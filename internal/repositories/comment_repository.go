package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/samber/oops"

	"blogapi/internal/dbx"
	"blogapi/internal/models"
)

type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id int64) (*models.Comment, error)
	// ListByPosts loads the comments of several posts in one query, ordered by id.
	ListByPosts(ctx context.Context, postIDs []int64) ([]*models.Comment, error)
	Delete(ctx context.Context, id int64) error
}

type commentRepository struct {
	DB dbx.DBTX
}

func NewCommentRepository(db dbx.DBTX) CommentRepository {
	return &commentRepository{DB: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	const q = `
		INSERT INTO comments (user_id, post_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.DB.QueryRowContext(ctx, q, comment.UserID, comment.PostID, comment.Content).
		Scan(&comment.ID, &comment.CreatedAt, &comment.UpdatedAt)
	if err != nil {
		return oops.In("comments").With("operation", "create").With("post_id", comment.PostID).Wrap(err)
	}
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id int64) (*models.Comment, error) {
	const q = `
		SELECT id, user_id, post_id, content, created_at, updated_at
		FROM comments
		WHERE id = $1
	`
	c := &models.Comment{}
	err := r.DB.QueryRowContext(ctx, q, id).
		Scan(&c.ID, &c.UserID, &c.PostID, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("comments").With("operation", "get").With("comment_id", id).Wrap(err)
	}
	return c, nil
}

func (r *commentRepository) ListByPosts(ctx context.Context, postIDs []int64) ([]*models.Comment, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	const q = `
		SELECT id, user_id, post_id, content, created_at, updated_at
		FROM comments
		WHERE post_id = ANY($1)
		ORDER BY id
	`
	rows, err := r.DB.QueryContext(ctx, q, pq.Array(postIDs))
	if err != nil {
		return nil, oops.In("comments").With("operation", "list").Wrap(err)
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		c := &models.Comment{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.PostID, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, oops.In("comments").With("operation", "list").Wrap(err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("comments").With("operation", "list").Wrap(err)
	}
	return comments, nil
}

func (r *commentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return oops.In("comments").With("operation", "delete").With("comment_id", id).Wrap(err)
	}
	return expectAffected(res)
}
