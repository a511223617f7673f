package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"blogapi/internal/dbx"
	"blogapi/internal/models"
	"blogapi/internal/repositories"
	"blogapi/internal/utils"
)

// Caller identifies the authenticated user and the token presented on the
// current request.
type Caller struct {
	UserID  int64
	TokenID string
}

type TokenService interface {
	// Issue creates a token for user through db (the service's own handle
	// when nil) and returns its plaintext, which is never stored and cannot
	// be recovered later.
	Issue(ctx context.Context, db dbx.DBTX, user *models.User) (string, error)
	Authenticate(ctx context.Context, presented string) (*Caller, error)
	Revoke(ctx context.Context, tokenID string) error
	RevokeAllForUser(ctx context.Context, db dbx.DBTX, userID int64) (int64, error)
}

type tokenService struct {
	db     dbx.DBTX
	repos  repositories.Manager
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewTokenService returns a TokenService signing with secret. A zero ttl
// issues tokens that live until revoked.
func NewTokenService(db dbx.DBTX, repos repositories.Manager, secret []byte, ttl time.Duration, logger *slog.Logger) TokenService {
	return &tokenService{
		db:     db,
		repos:  repos,
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

func tokenLabel(user *models.User) string {
	return "Api token of " + user.Name
}

func (s *tokenService) Issue(ctx context.Context, db dbx.DBTX, user *models.User) (string, error) {
	if db == nil {
		db = s.db
	}
	now := s.now()
	id := uuid.NewString()

	claims := jwt.RegisteredClaims{
		ID:       id,
		Subject:  strconv.FormatInt(user.ID, 10),
		IssuedAt: jwt.NewNumericDate(now),
	}
	record := &models.AccessToken{ID: id, UserID: user.ID, Name: tokenLabel(user)}
	if s.ttl > 0 {
		exp := now.Add(s.ttl)
		claims.ExpiresAt = jwt.NewNumericDate(exp)
		record.ExpiresAt = &exp
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.In("tokens").Code("TOKEN_SIGN_FAILED").With("user_id", user.ID).Wrap(err)
	}
	record.TokenHash = utils.HashToken(signed)

	if err := s.repos.AccessTokens(db).Create(ctx, record); err != nil {
		return "", oops.In("tokens").Code("TOKEN_STORE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	return signed, nil
}

func (s *tokenService) Authenticate(ctx context.Context, presented string) (*Caller, error) {
	if presented == "" {
		return nil, ErrUnauthenticated
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(presented, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrUnauthenticated
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return nil, ErrUnauthenticated
	}

	record, err := s.repos.AccessTokens(s.db).GetByID(ctx, claims.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, oops.In("tokens").Code("TOKEN_LOOKUP_FAILED").Wrap(err)
	}

	now := s.now()
	if !utils.EqualDigest(record.TokenHash, utils.HashToken(presented)) ||
		claims.Subject != strconv.FormatInt(record.UserID, 10) ||
		record.Expired(now) {
		return nil, ErrUnauthenticated
	}

	if err := s.repos.AccessTokens(s.db).Touch(ctx, record.ID, now); err != nil {
		s.logger.Warn("touch access token failed", "token_id", record.ID, "error", err)
	}
	return &Caller{UserID: record.UserID, TokenID: record.ID}, nil
}

func (s *tokenService) Revoke(ctx context.Context, tokenID string) error {
	if err := s.repos.AccessTokens(s.db).Delete(ctx, tokenID); err != nil {
		return oops.In("tokens").Code("TOKEN_REVOKE_FAILED").With("token_id", tokenID).Wrap(err)
	}
	return nil
}

func (s *tokenService) RevokeAllForUser(ctx context.Context, db dbx.DBTX, userID int64) (int64, error) {
	if db == nil {
		db = s.db
	}
	n, err := s.repos.AccessTokens(db).DeleteByUser(ctx, userID)
	if err != nil {
		return 0, oops.In("tokens").Code("TOKEN_REVOKE_FAILED").With("user_id", userID).Wrap(err)
	}
	return n, nil
}
