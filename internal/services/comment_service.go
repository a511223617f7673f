package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"blogapi/internal/authz"
	"blogapi/internal/dbx"
	"blogapi/internal/models"
	"blogapi/internal/repositories"
)

type CommentService interface {
	// Create adds a comment and notifies the post owner. A failed
	// notification is logged and does not fail the call.
	Create(ctx context.Context, caller *Caller, postID int64, content string) (*models.Comment, error)
	Delete(ctx context.Context, caller *Caller, postID, commentID int64) error
}

type commentService struct {
	db       dbx.DBTX
	repos    repositories.Manager
	users    UserService
	notifier Notifier
	logger   *slog.Logger
}

func NewCommentService(db dbx.DBTX, repos repositories.Manager, users UserService, notifier Notifier, logger *slog.Logger) CommentService {
	return &commentService{db: db, repos: repos, users: users, notifier: notifier, logger: logger}
}

func (s *commentService) Create(ctx context.Context, caller *Caller, postID int64, content string) (*models.Comment, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}

	post, err := s.repos.Posts(s.db).GetByID(ctx, postID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("comments").Code("POST_LOOKUP_FAILED").With("post_id", postID).Wrap(err)
	}

	comment := &models.Comment{UserID: caller.UserID, PostID: post.ID, Content: content}
	if err := s.repos.Comments(s.db).Create(ctx, comment); err != nil {
		return nil, oops.In("comments").Code("COMMENT_CREATE_FAILED").With("post_id", postID).Wrap(err)
	}

	s.notifyOwner(ctx, post)
	return comment, nil
}

func (s *commentService) notifyOwner(ctx context.Context, post *models.Post) {
	owner, err := s.users.GetByID(ctx, post.UserID)
	if err != nil {
		s.logger.Warn("comment notification skipped: owner lookup failed", "post_id", post.ID, "error", err)
		return
	}
	subject, body := newCommentMessage(post.Title)
	if err := s.notifier.Send(ctx, owner.Email, subject, body); err != nil {
		s.logger.Warn("comment notification failed", "post_id", post.ID, "owner_id", owner.ID, "error", err)
	}
}

func (s *commentService) Delete(ctx context.Context, caller *Caller, postID, commentID int64) error {
	if caller == nil {
		return ErrUnauthenticated
	}

	post, err := s.repos.Posts(s.db).GetByID(ctx, postID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return oops.In("comments").Code("POST_LOOKUP_FAILED").With("post_id", postID).Wrap(err)
	}
	comment, cerr := s.repos.Comments(s.db).GetByID(ctx, commentID)
	if cerr != nil && !errors.Is(cerr, repositories.ErrNotFound) {
		return oops.In("comments").Code("COMMENT_LOOKUP_FAILED").With("comment_id", commentID).Wrap(cerr)
	}
	if post == nil || comment == nil || comment.PostID != post.ID {
		return ErrNotFound
	}
	if !authz.CanDeleteComment(caller.UserID, comment, post) {
		return ErrForbidden
	}

	err = s.repos.Comments(s.db).Delete(ctx, commentID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return oops.In("comments").Code("COMMENT_DELETE_FAILED").With("comment_id", commentID).Wrap(err)
	}
	return nil
}
