package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"blogapi/internal/dbx"
	"blogapi/internal/metrics"
	"blogapi/internal/models"
	"blogapi/internal/repositories"
	"blogapi/internal/utils"
)

type PasswordResetService interface {
	// RequestReset issues a fresh code for email, replacing any earlier one,
	// and mails it. The stored code and the mail succeed or fail together.
	RequestReset(ctx context.Context, email string) error
	// ResetPassword consumes a matching, unexpired code and sets the new
	// password. A code can be consumed at most once.
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	PurgeExpired(ctx context.Context) (int64, error)
}

type PasswordResetOptions struct {
	CodeTTL             time.Duration
	RevokeTokensOnReset bool
}

type passwordResetService struct {
	db       dbx.DBTX
	tx       dbx.Transactor
	repos    repositories.Manager
	users    UserService
	tokens   TokenService
	notifier Notifier
	opts     PasswordResetOptions
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewPasswordResetService(
	db dbx.DBTX,
	tx dbx.Transactor,
	repos repositories.Manager,
	users UserService,
	tokens TokenService,
	notifier Notifier,
	opts PasswordResetOptions,
	logger *slog.Logger,
	m *metrics.Metrics,
) PasswordResetService {
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = time.Hour
	}
	return &passwordResetService{
		db:       db,
		tx:       tx,
		repos:    repos,
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
		metrics:  m,
	}
}

func (s *passwordResetService) RequestReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.metrics.AuthEvent("forgot_password", "unknown_user")
		}
		return err
	}

	code, err := utils.NewResetCode()
	if err != nil {
		return oops.In("password_reset").Code("RESET_CODE_FAILED").Wrap(err)
	}

	now := s.now()
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		reset := &models.PasswordReset{
			Email:     user.Email,
			TokenHash: utils.HashToken(code),
			CreatedAt: now,
			ExpiresAt: now.Add(s.opts.CodeTTL),
		}
		if err := s.repos.PasswordResets(tx).Upsert(ctx, reset); err != nil {
			return oops.In("password_reset").Code("RESET_UPSERT_FAILED").Wrap(err)
		}

		subject, body := resetCodeMessage(code)
		if err := s.notifier.Send(ctx, user.Email, subject, body); err != nil {
			return oops.In("password_reset").
				Code("RESET_NOTIFY_FAILED").
				With("user_id", user.ID).
				Wrap(fmt.Errorf("%w: %w", ErrNotificationFailed, err))
		}
		return nil
	})
	if err != nil {
		s.metrics.AuthEvent("forgot_password", "failure")
		return err
	}

	s.metrics.AuthEvent("forgot_password", "success")
	s.logger.Info("password reset code issued", "user_id", user.ID, "expires_in", s.opts.CodeTTL.String())
	return nil
}

func (s *passwordResetService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if err := validateEmail(email); err != nil {
		return err
	}
	if code == "" {
		return invalid("code", "The code field is required.")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	now := s.now()
	var userID int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		resets := s.repos.PasswordResets(tx)

		pending, err := resets.GetForUpdate(ctx, email)
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidCode
		}
		if err != nil {
			return oops.In("password_reset").Code("RESET_LOOKUP_FAILED").Wrap(err)
		}
		if !utils.EqualDigest(pending.TokenHash, utils.HashToken(code)) || pending.Expired(now) {
			return ErrInvalidCode
		}

		consumed, err := resets.Consume(ctx, email, pending.TokenHash, now)
		if err != nil {
			return oops.In("password_reset").Code("RESET_CONSUME_FAILED").Wrap(err)
		}
		if !consumed {
			return ErrInvalidCode
		}

		user, err := s.repos.Users(tx).GetByEmail(ctx, email)
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return oops.In("password_reset").Code("USER_LOOKUP_FAILED").Wrap(err)
		}
		if err := s.users.UpdatePassword(ctx, tx, user, newPassword); err != nil {
			return err
		}
		userID = user.ID

		if s.opts.RevokeTokensOnReset {
			if _, err := s.tokens.RevokeAllForUser(ctx, tx, user.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.AuthEvent("reset_password", "failure")
		return err
	}

	s.metrics.AuthEvent("reset_password", "success")
	s.logger.Info("password reset completed", "user_id", userID, "tokens_revoked", s.opts.RevokeTokensOnReset)
	return nil
}

func (s *passwordResetService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repos.PasswordResets(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, oops.In("password_reset").Code("RESET_PURGE_FAILED").Wrap(err)
	}
	s.metrics.ResetCodesRemoved(n)
	return n, nil
}
