// Package service contains the business rules that sit between the HTTP
// handlers and the models.
//
// Handlers parse requests and write responses; services validate input,
// enforce ownership and drive the orm models. Services accept and return
// plain Go values and apperror errors, never HTTP types.
package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/activerecord/internal/apperror"
	"github.com/sakif/activerecord/internal/model"
	"github.com/sakif/activerecord/internal/orm"
)

const (
	MaxSnippetNameLength = 100
	MaxCodeLength        = 100000 // ~100KB of code
	DefaultListLimit     = 20
	MaxListLimit         = 100
)

// SnippetService manages snippets.
//
// Creating a snippet mints an owner token. The token is stored in the hidden
// owner_token column and returned to the creator once. When the creator is
// signed in, their id is stored in user_id as well. Updates, deletes and
// restores must come from that user or present the token.
type SnippetService struct {
	snippets *orm.Type
	logger   *slog.Logger
}

func NewSnippetService(snippets *orm.Type, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		snippets: snippets,
		logger:   logger,
	}
}

// Caller identifies who is acting on a snippet. Both fields may be empty.
type Caller struct {
	// UserID is the authenticated user, "" for anonymous requests.
	UserID string
	// Token is the owner token presented with the request.
	Token string
}

// ListOptions controls List pagination.
type ListOptions struct {
	Limit       int
	Offset      int
	WithTrashed bool
}

// Create validates attrs and saves a new snippet owned by userID ("" for an
// anonymous creator). It returns the snippet and its owner token.
func (s *SnippetService) Create(ctx context.Context, userID string, attrs map[string]any) (*orm.Model, string, error) {
	snippet, err := s.snippets.New(attrs)
	if err != nil {
		return nil, "", err
	}
	if err := validateSnippet(snippet); err != nil {
		return nil, "", err
	}
	for _, col := range []string{model.SnippetCode, model.SnippetDescription} {
		if !snippet.Has(col) {
			if err := snippet.Set(col, ""); err != nil {
				return nil, "", err
			}
		}
	}
	if userID != "" {
		uid, err := strconv.ParseInt(userID, 10, 64)
		if err != nil {
			return nil, "", apperror.ValidationFailed(model.SnippetUserID, "user ID must be an integer")
		}
		if err := snippet.Set(model.SnippetUserID, uid); err != nil {
			return nil, "", err
		}
	}

	token := xid.New().String()
	if err := snippet.Set(model.SnippetOwnerToken, token); err != nil {
		return nil, "", err
	}

	if err := snippet.Save(ctx); err != nil {
		s.logger.Error("failed to create snippet",
			slog.Any("name", snippet.Get(model.SnippetName)),
			slog.String("error", err.Error()),
		)
		return nil, "", fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.Any("id", snippet.Key()),
		slog.Any("name", snippet.Get(model.SnippetName)),
	)
	return snippet, token, nil
}

// GetByID returns a live snippet. Trashed snippets are not found.
func (s *SnippetService) GetByID(ctx context.Context, id string) (*orm.Model, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	return s.snippets.Find(ctx, id)
}

// List returns snippets newest first. Limit is clamped to 1..MaxListLimit.
func (s *SnippetService) List(ctx context.Context, opts ListOptions) ([]*orm.Model, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	q := s.snippets.Query()
	if opts.WithTrashed {
		q = s.snippets.Unscoped()
	}
	snippets, err := q.
		OrderBy("created_at", "desc").
		OrderBy("id", "desc").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Get(ctx)
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return snippets, nil
}

// Update applies attrs to a snippet the caller owns. Columns outside the
// fillable list are ignored.
func (s *SnippetService) Update(ctx context.Context, id string, caller Caller, attrs map[string]any) (*orm.Model, error) {
	snippet, err := s.owned(ctx, s.snippets.Find, id, caller)
	if err != nil {
		return nil, err
	}
	if err := snippet.Fill(attrs); err != nil {
		return nil, err
	}
	if err := validateSnippet(snippet); err != nil {
		return nil, err
	}

	if err := snippet.Save(ctx); err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated", slog.String("id", id))
	return snippet, nil
}

// Delete soft-deletes a snippet the caller owns.
func (s *SnippetService) Delete(ctx context.Context, id string, caller Caller) error {
	snippet, err := s.owned(ctx, s.snippets.Find, id, caller)
	if err != nil {
		return err
	}
	if err := snippet.Destroy(ctx); err != nil {
		return fmt.Errorf("deleting snippet: %w", err)
	}

	s.logger.Info("snippet deleted", slog.String("id", id))
	return nil
}

// Restore brings back a soft-deleted snippet the caller owns.
func (s *SnippetService) Restore(ctx context.Context, id string, caller Caller) (*orm.Model, error) {
	findTrashed := func(ctx context.Context, id any) (*orm.Model, error) {
		return s.snippets.Unscoped().Find(ctx, id)
	}
	snippet, err := s.owned(ctx, findTrashed, id, caller)
	if err != nil {
		return nil, err
	}
	if err := snippet.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restoring snippet: %w", err)
	}

	s.logger.Info("snippet restored", slog.String("id", id))
	return snippet, nil
}

type finder func(ctx context.Context, id any) (*orm.Model, error)

// owned loads a snippet and checks the caller against its owner: the stored
// user_id when the caller is signed in, then the owner token.
func (s *SnippetService) owned(ctx context.Context, find finder, id string, caller Caller) (*orm.Model, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	snippet, err := find(ctx, id)
	if err != nil {
		return nil, err
	}

	if owner := snippet.Raw(model.SnippetUserID); caller.UserID != "" && owner != nil &&
		fmt.Sprint(owner) == caller.UserID {
		return snippet, nil
	}

	stored, _ := snippet.Raw(model.SnippetOwnerToken).(string)
	if caller.Token == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(caller.Token)) != 1 {
		s.logger.Warn("snippet owner mismatch",
			slog.String("id", id),
			slog.String("user_id", caller.UserID),
		)
		return nil, apperror.Forbidden("caller does not own this snippet")
	}
	return snippet, nil
}

func validateSnippet(snippet *orm.Model) error {
	name, _ := snippet.Get(model.SnippetName).(string)
	if name == "" {
		return apperror.ValidationFailed(model.SnippetName, "snippet name is required")
	}
	if len(name) > MaxSnippetNameLength {
		return apperror.ValidationFailed(model.SnippetName,
			fmt.Sprintf("snippet name must be %d characters or less", MaxSnippetNameLength))
	}
	if code, _ := snippet.Get(model.SnippetCode).(string); len(code) > MaxCodeLength {
		return apperror.ValidationFailed(model.SnippetCode,
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	return nil
}
