package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/oops"

	"blogapi/internal/dbx"
	"blogapi/internal/metrics"
	"blogapi/internal/models"
)

type AuthService interface {
	// Register creates the account and its first token atomically, then
	// sends the welcome mail. A failed mail is reported as
	// ErrNotificationFailed but the account and token are kept.
	Register(ctx context.Context, name, email, password string) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	// Logout revokes only the token the caller authenticated with.
	Logout(ctx context.Context, caller *Caller) (*models.User, error)
	CurrentUser(ctx context.Context, caller *Caller) (*models.User, error)
}

type authService struct {
	db       dbx.DBTX
	tx       dbx.Transactor
	users    UserService
	tokens   TokenService
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewAuthService(
	db dbx.DBTX,
	tx dbx.Transactor,
	users UserService,
	tokens TokenService,
	notifier Notifier,
	logger *slog.Logger,
	m *metrics.Metrics,
) AuthService {
	return &authService{
		db:       db,
		tx:       tx,
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
	}
}

func (s *authService) Register(ctx context.Context, name, email, password string) (*models.User, string, error) {
	var (
		user  *models.User
		token string
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if user, err = s.users.Create(ctx, tx, name, email, password); err != nil {
			return err
		}
		token, err = s.tokens.Issue(ctx, tx, user)
		return err
	})
	if err != nil {
		s.metrics.AuthEvent("register", "failure")
		return nil, "", err
	}
	s.logger.Info("user registered", "user_id", user.ID)

	subject, body := welcomeMessage(user.Name)
	if err := s.notifier.Send(ctx, user.Email, subject, body); err != nil {
		s.metrics.AuthEvent("register", "notify_failure")
		return nil, "", oops.In("auth").
			Code("WELCOME_NOTIFY_FAILED").
			With("user_id", user.ID).
			Wrap(fmt.Errorf("%w: %w", ErrNotificationFailed, err))
	}

	s.metrics.AuthEvent("register", "success")
	return user, token, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, "", err
	}

	// Runs bcrypt even when the user is missing so both failures cost the same.
	if !s.users.VerifyPassword(user, password) {
		s.metrics.AuthEvent("login", "failure")
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(ctx, s.db, user)
	if err != nil {
		return nil, "", err
	}
	s.metrics.AuthEvent("login", "success")
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, token, nil
}

func (s *authService) Logout(ctx context.Context, caller *Caller) (*models.User, error) {
	user, err := s.CurrentUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Revoke(ctx, caller.TokenID); err != nil {
		return nil, err
	}
	s.metrics.AuthEvent("logout", "success")
	s.logger.Info("user logged out", "user_id", user.ID, "token_id", caller.TokenID)
	return user, nil
}

func (s *authService) CurrentUser(ctx context.Context, caller *Caller) (*models.User, error) {
	if caller == nil || caller.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.GetByID(ctx, caller.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrUnauthenticated
	}
	return user, err
}
