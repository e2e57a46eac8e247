package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/auth"
	"github.com/sakif/activerecord/internal/model"
	"github.com/sakif/activerecord/internal/testutil"
)

func newTestUserService(t *testing.T) *UserService {
	t.Helper()
	passwords := model.NewPasswords(bcrypt.MinCost)
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)
	return NewUserService(model.User(newTestDB(t), passwords), passwords, tokens, testutil.NewTestLogger(t))
}

func TestRegister(t *testing.T) {
	svc := newTestUserService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, map[string]any{
		model.UserLogin:    "ada",
		model.UserEmail:    "ada@example.com",
		model.UserPassword: "correct-horse",
		"is_admin":         true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.Key())
	assert.False(t, u.Has("is_admin"))
	assert.NotContains(t, u.ToMap(), model.UserPassword)

	got, err := svc.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Get(model.UserLogin))
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestUserService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		attrs map[string]any
	}{
		{name: "missing login", attrs: map[string]any{model.UserPassword: "correct-horse"}},
		{name: "missing password", attrs: map[string]any{model.UserLogin: "ada"}},
		{name: "short password", attrs: map[string]any{model.UserLogin: "ada", model.UserPassword: "short"}},
		{name: "bad email", attrs: map[string]any{model.UserLogin: "ada", model.UserPassword: "correct-horse", model.UserEmail: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.attrs)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestRegister_DuplicateLogin(t *testing.T) {
	svc := newTestUserService(t)
	ctx := context.Background()
	attrs := map[string]any{model.UserLogin: "ada", model.UserPassword: "correct-horse"}

	_, err := svc.Register(ctx, attrs)
	require.NoError(t, err)

	_, err = svc.Register(ctx, attrs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registering user")
}

func TestGetByID_Errors(t *testing.T) {
	svc := newTestUserService(t)

	_, err := svc.GetByID(context.Background(), 0)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestUserService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, map[string]any{model.UserLogin: "ada", model.UserPassword: "correct-horse"})
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, "ada", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "ada", u.Get(model.UserLogin))

	_, err = svc.Authenticate(ctx, "ada", "wrong-horse")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "nobody", "correct-horse")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestLogin(t *testing.T) {
	svc := newTestUserService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, map[string]any{model.UserLogin: "ada", model.UserPassword: "correct-horse"})
	require.NoError(t, err)

	session, err := svc.Login(ctx, "ada", "correct-horse")
	require.NoError(t, err)
	assert.Same(t, u.Type(), session.User.Type())
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)

	subject, err := svc.tokens.Validate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "1", subject)

	current, err := svc.Current(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, "ada", current.Get(model.UserLogin))

	_, err = svc.Login(ctx, "ada", "wrong-horse")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.Current(ctx, "not-a-number")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}
