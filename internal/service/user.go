package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/auth"
	"github.com/sakif/activerecord/internal/model"
	"github.com/sakif/activerecord/internal/orm"
)

// UserService registers and authenticates accounts and issues session
// tokens.
type UserService struct {
	users     *orm.Type
	passwords *model.Passwords
	tokens    *auth.TokenService
	logger    *slog.Logger
}

func NewUserService(users *orm.Type, passwords *model.Passwords, tokens *auth.TokenService, logger *slog.Logger) *UserService {
	return &UserService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		logger:    logger,
	}
}

// Session is the result of a successful login.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *orm.Model `json:"user"`
}

// Register creates a user from attrs. Only login, email and password are
// assignable; is_admin and friends are dropped.
func (s *UserService) Register(ctx context.Context, attrs map[string]any) (*orm.Model, error) {
	login, _ := attrs[model.UserLogin].(string)
	if strings.TrimSpace(login) == "" {
		return nil, apperror.ValidationFailed(model.UserLogin, "login is required")
	}
	if _, ok := attrs[model.UserPassword]; !ok {
		return nil, apperror.ValidationFailed(model.UserPassword, "password is required")
	}

	user, err := s.users.Create(ctx, attrs)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		s.logger.Error("failed to register user",
			slog.String("login", login),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("registering user: %w", err)
	}

	s.logger.Info("user registered", slog.Any("id", user.Key()), slog.String("login", login))
	return user, nil
}

// GetByID returns a user by primary key.
func (s *UserService) GetByID(ctx context.Context, id int64) (*orm.Model, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "user ID must be positive")
	}
	return s.users.Find(ctx, id)
}

// Authenticate returns the user with login when password matches. Unknown
// logins and wrong passwords report the same unauthorized error.
func (s *UserService) Authenticate(ctx context.Context, login, password string) (*orm.Model, error) {
	invalid := apperror.Unauthorized("invalid login or password")

	user, err := s.users.Find(ctx, map[string]any{model.UserLogin: strings.TrimSpace(login)})
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}

	if err := model.CheckPassword(s.passwords, user, password); err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return nil, invalid
		}
		return nil, err
	}
	return user, nil
}

// Login authenticates login and password and signs a token whose subject is
// the user's id.
func (s *UserService) Login(ctx context.Context, login, password string) (*Session, error) {
	user, err := s.Authenticate(ctx, login, password)
	if err != nil {
		s.logger.Warn("login failed", slog.String("login", login))
		return nil, err
	}

	token, expires, err := s.tokens.Generate(fmt.Sprint(user.Key()))
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	s.logger.Info("user logged in", slog.Any("id", user.Key()))
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// Current returns the user a validated token subject refers to.
func (s *UserService) Current(ctx context.Context, userID string) (*orm.Model, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return nil, apperror.Unauthorized("token subject is not a user ID")
	}
	return s.GetByID(ctx, id)
}
