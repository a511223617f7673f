package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"

	"blogapi/internal/authz"
	"blogapi/internal/dbx"
	"blogapi/internal/models"
	"blogapi/internal/repositories"
)

const maxTitleLength = 255

type PostService interface {
	// List returns every post with its comments attached.
	List(ctx context.Context) ([]*models.Post, error)
	Get(ctx context.Context, id int64) (*models.Post, error)
	Create(ctx context.Context, caller *Caller, title, content string) (*models.Post, error)
	// Update changes the non-nil fields. Only the owner may update.
	Update(ctx context.Context, caller *Caller, id int64, title, content *string) (*models.Post, error)
	Delete(ctx context.Context, caller *Caller, id int64) error
}

type postService struct {
	db    dbx.DBTX
	repos repositories.Manager
}

func NewPostService(db dbx.DBTX, repos repositories.Manager) PostService {
	return &postService{db: db, repos: repos}
}

func validateTitle(title string) error {
	if title == "" {
		return invalid("title", "The title field is required.")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return invalid("title", "The title field must not be greater than %d characters.", maxTitleLength)
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return invalid("content", "The content field is required.")
	}
	return nil
}

func (s *postService) List(ctx context.Context) ([]*models.Post, error) {
	posts, err := s.repos.Posts(s.db).List(ctx)
	if err != nil {
		return nil, oops.In("posts").Code("POST_LIST_FAILED").Wrap(err)
	}
	if err := s.attachComments(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *postService) Get(ctx context.Context, id int64) (*models.Post, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachComments(ctx, []*models.Post{post}); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *postService) Create(ctx context.Context, caller *Caller, title, content string) (*models.Post, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}

	post := &models.Post{UserID: caller.UserID, Title: title, Content: content}
	if err := s.repos.Posts(s.db).Create(ctx, post); err != nil {
		return nil, oops.In("posts").Code("POST_CREATE_FAILED").With("user_id", caller.UserID).Wrap(err)
	}
	return post, nil
}

func (s *postService) Update(ctx context.Context, caller *Caller, id int64, title, content *string) (*models.Post, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanModifyPost(caller.UserID, post) {
		return nil, ErrForbidden
	}

	if title != nil {
		t := strings.TrimSpace(*title)
		if err := validateTitle(t); err != nil {
			return nil, err
		}
		post.Title = t
	}
	if content != nil {
		if err := validateContent(*content); err != nil {
			return nil, err
		}
		post.Content = *content
	}

	err = s.repos.Posts(s.db).Update(ctx, post)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("posts").Code("POST_UPDATE_FAILED").With("post_id", id).Wrap(err)
	}
	return post, nil
}

func (s *postService) Delete(ctx context.Context, caller *Caller, id int64) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	post, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanModifyPost(caller.UserID, post) {
		return ErrForbidden
	}

	err = s.repos.Posts(s.db).Delete(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return oops.In("posts").Code("POST_DELETE_FAILED").With("post_id", id).Wrap(err)
	}
	return nil
}

func (s *postService) load(ctx context.Context, id int64) (*models.Post, error) {
	post, err := s.repos.Posts(s.db).GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("posts").Code("POST_LOOKUP_FAILED").With("post_id", id).Wrap(err)
	}
	return post, nil
}

func (s *postService) attachComments(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(posts))
	byID := make(map[int64]*models.Post, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
		byID[p.ID] = p
		p.Comments = []*models.Comment{}
	}

	comments, err := s.repos.Comments(s.db).ListByPosts(ctx, ids)
	if err != nil {
		return oops.In("posts").Code("COMMENT_LIST_FAILED").Wrap(err)
	}
	for _, c := range comments {
		if p, ok := byID[c.PostID]; ok {
			p.Comments = append(p.Comments, c)
		}
	}
	return nil
}
