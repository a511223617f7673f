package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_IssuesWorkingToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, token, err := env.auth.Register(ctx, "  Ann ", "Ann@Example.com", "password123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.Equal(t, "Ann", user.Name)
	assert.Equal(t, "ann@example.com", user.Email)
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.True(t, env.users.VerifyPassword(user, "password123"))

	caller, err := env.tokens.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, caller.UserID)

	tok, err := env.store.AccessTokens(nil).GetByID(ctx, caller.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "Api token of Ann", tok.Name)
	assert.NotEqual(t, token, tok.TokenHash, "plaintext token must not be stored")

	mail := env.notifier.last(t)
	assert.Equal(t, "ann@example.com", mail.To)
	assert.Equal(t, "Welcome to the Application", mail.Subject)
	assert.Contains(t, mail.Body, "Welcome to the application, Ann!")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.AuthEvents.WithLabelValues("register", "success")))
}

func TestRegister_DuplicateEmailIgnoresCase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "Ann", "ann@example.com")

	_, _, err := env.auth.Register(ctx, "Other", "ANN@example.com ", "password123")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, 1, env.notifier.count())
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name, user, email, password, field string
	}{
		{"missing name", "  ", "a@example.com", "password123", "name"},
		{"bad email", "Ann", "not-an-email", "password123", "email"},
		{"display-name email", "Ann", "Ann <a@example.com>", "password123", "email"},
		{"short password", "Ann", "a@example.com", "short", "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, _, err := env.auth.Register(context.Background(), tt.user, tt.email, tt.password)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, env.notifier.count())
		})
	}
}

func TestRegister_WelcomeMailFailureKeepsAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.notifier.fail(errSMTPDown)

	_, _, err := env.auth.Register(ctx, "Ann", "ann@example.com", "password123")
	require.ErrorIs(t, err, ErrNotificationFailed)
	assert.ErrorIs(t, err, errSMTPDown)

	// The account exists and can log in.
	env.notifier.fail(nil)
	user, token, err := env.auth.Login(ctx, "ann@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 2, env.store.tokenCount(user.ID))
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "Ann", "ann@example.com")

	_, _, errWrongPassword := env.auth.Login(ctx, "ann@example.com", "wrong-password")
	_, _, errUnknownUser := env.auth.Login(ctx, "nobody@example.com", "password123")

	assert.ErrorIs(t, errWrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknownUser, ErrInvalidCredentials)
	assert.Equal(t, errWrongPassword.Error(), errUnknownUser.Error())
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.AuthEvents.WithLabelValues("login", "failure")))
}

func TestLogin_IssuesAdditionalToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, first, _ := env.register(t, "Ann", "ann@example.com")

	got, second, err := env.auth.Login(ctx, " ANN@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, env.store.tokenCount(user.ID))

	for _, tok := range []string{first, second} {
		caller, err := env.tokens.Authenticate(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, user.ID, caller.UserID)
	}
}

func TestLogout_RevokesOnlyPresentedToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, first, firstCaller := env.register(t, "Ann", "ann@example.com")
	_, second, err := env.auth.Login(ctx, "ann@example.com", "password123")
	require.NoError(t, err)

	user, err := env.auth.Logout(ctx, firstCaller)
	require.NoError(t, err)
	assert.Equal(t, "Ann", user.Name)

	_, err = env.tokens.Authenticate(ctx, first)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = env.tokens.Authenticate(ctx, second)
	assert.NoError(t, err)

	// Revoking an already revoked token is harmless.
	_, err = env.auth.Logout(ctx, firstCaller)
	assert.NoError(t, err)
}

func TestLogout_RequiresCaller(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.Logout(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _, caller := env.register(t, "Ann", "ann@example.com")

	got, err := env.auth.CurrentUser(ctx, caller)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = env.auth.CurrentUser(ctx, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	env.store.deleteUser(user.ID)
	_, err = env.auth.CurrentUser(ctx, caller)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
