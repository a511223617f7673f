package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"blogapi/internal/dbx"
	"blogapi/internal/models"
	"blogapi/internal/repositories"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordBytes = 72
	maxNameLength    = 255
)

// UserService is the credential store: it owns password hashing and the
// lookup of users by email or id.
type UserService interface {
	Create(ctx context.Context, db dbx.DBTX, name, email, password string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// VerifyPassword reports whether password matches user's hash. With a
	// nil user it still runs a bcrypt comparison and returns false.
	VerifyPassword(user *models.User, password string) bool
	UpdatePassword(ctx context.Context, db dbx.DBTX, user *models.User, newPassword string) error
}

type userService struct {
	db        dbx.DBTX
	repos     repositories.Manager
	cost      int
	dummyHash []byte
}

func NewUserService(db dbx.DBTX, repos repositories.Manager, bcryptCost int) (UserService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("timing-equaliser-password"), bcryptCost)
	if err != nil {
		return nil, oops.In("users").Code("BCRYPT_INIT_FAILED").Wrap(err)
	}
	return &userService{db: db, repos: repos, cost: bcryptCost, dummyHash: dummy}, nil
}

// NormalizeEmail trims and lower-cases an address. Emails are compared
// case-insensitively everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validate applies the same rules as the request binding tags, so an
// address accepted at the HTTP edge is accepted here too.
var validate = validator.New()

func validateEmail(email string) error {
	if email == "" {
		return invalid("email", "The email field is required.")
	}
	if err := validate.Var(email, "email,max=255"); err != nil {
		return invalid("email", "The email field must be a valid email address.")
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return invalid("password", "The password field must be at least %d characters.", MinPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return invalid("password", "The password field must not be greater than %d bytes.", maxPasswordBytes)
	}
	return nil
}

func (s *userService) Create(ctx context.Context, db dbx.DBTX, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" {
		return nil, invalid("name", "The name field is required.")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, invalid("name", "The name field must not be greater than %d characters.", maxNameLength)
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, oops.In("users").Code("PASSWORD_HASH_FAILED").Wrap(err)
	}

	user := &models.User{Name: name, Email: email, PasswordHash: string(hash)}
	err = s.repos.Users(db).Create(ctx, user)
	if errors.Is(err, repositories.ErrDuplicate) {
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, oops.In("users").Code("USER_CREATE_FAILED").Wrap(err)
	}
	return user, nil
}

func (s *userService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repos.Users(s.db).GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, oops.In("users").Code("USER_LOOKUP_FAILED").Wrap(err)
	}
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repos.Users(s.db).GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, oops.In("users").Code("USER_LOOKUP_FAILED").With("user_id", id).Wrap(err)
	}
	return user, nil
}

func (s *userService) VerifyPassword(user *models.User, password string) bool {
	hash := s.dummyHash
	if user != nil && user.PasswordHash != "" {
		hash = []byte(user.PasswordHash)
	}
	ok := bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
	return ok && user != nil && user.PasswordHash != ""
}

func (s *userService) UpdatePassword(ctx context.Context, db dbx.DBTX, user *models.User, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return oops.In("users").Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	err = s.repos.Users(db).UpdatePassword(ctx, user.ID, string(hash))
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return oops.In("users").Code("PASSWORD_UPDATE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	user.PasswordHash = string(hash)
	return nil
}
