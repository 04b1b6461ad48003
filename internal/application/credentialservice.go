package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/giteemirror/internal/domain/model"
	"github.com/ericfisherdev/giteemirror/internal/domain/port/driven"
)

// CredentialService validates and applies changes to a user's linked
// accounts. Tokens pass through to the store and are never logged.
type CredentialService struct {
	store driven.CredentialStore
	cache driven.RepoCache
	now   func() time.Time
}

// NewCredentialService creates a CredentialService. cache may be nil; when set,
// changing the GitHub link drops the user's cached repository listing.
func NewCredentialService(store driven.CredentialStore, cache driven.RepoCache) *CredentialService {
	return &CredentialService{store: store, cache: cache, now: time.Now}
}

// Link stores a credential. Returns ErrConflict when the platform is already
// linked for the user.
func (s *CredentialService) Link(ctx context.Context, userID int64, platform, username, token string) (model.Credential, error) {
	cred, err := s.validate(userID, platform, username, token)
	if err != nil {
		return model.Credential{}, err
	}

	linked, err := s.store.Link(ctx, cred)
	if err != nil {
		return model.Credential{}, fmt.Errorf("linking %s for user %d: %w", cred.Platform, userID, err)
	}

	s.invalidateListing(ctx, userID, cred.Platform)
	slog.Info("account linked", "user_id", userID, "platform", cred.Platform, "username", cred.Username)
	return linked, nil
}

// Relink replaces any existing credential for the platform with a new one.
func (s *CredentialService) Relink(ctx context.Context, userID int64, platform, username, token string) (model.Credential, error) {
	cred, err := s.validate(userID, platform, username, token)
	if err != nil {
		return model.Credential{}, err
	}

	linked, err := s.store.Replace(ctx, cred)
	if err != nil {
		return model.Credential{}, fmt.Errorf("relinking %s for user %d: %w", cred.Platform, userID, err)
	}

	s.invalidateListing(ctx, userID, cred.Platform)
	slog.Info("account relinked", "user_id", userID, "platform", cred.Platform, "username", cred.Username)
	return linked, nil
}

// Unlink removes the credential. Unlinking an unlinked platform succeeds.
func (s *CredentialService) Unlink(ctx context.Context, userID int64, platform string) error {
	p, ok := model.ParsePlatform(platform)
	if !ok {
		return fmt.Errorf("%w: unknown platform %q", driven.ErrInvalidInput, platform)
	}

	if err := s.store.Unlink(ctx, userID, p); err != nil {
		return fmt.Errorf("unlinking %s for user %d: %w", p, userID, err)
	}

	s.invalidateListing(ctx, userID, p)
	slog.Info("account unlinked", "user_id", userID, "platform", p)
	return nil
}

// Status reports which platforms the user has linked, without tokens.
func (s *CredentialService) Status(ctx context.Context, userID int64) (model.LinkStatus, error) {
	names, err := s.store.Usernames(ctx, userID)
	if err != nil {
		return model.LinkStatus{}, fmt.Errorf("loading link status for user %d: %w", userID, err)
	}

	gh, ghOK := names[model.PlatformGitHub]
	gt, gtOK := names[model.PlatformGitee]

	return model.LinkStatus{
		GitHubLinked:   ghOK,
		GiteeLinked:    gtOK,
		GitHubUsername: gh,
		GiteeUsername:  gt,
	}, nil
}

func (s *CredentialService) validate(userID int64, platform, username, token string) (model.Credential, error) {
	p, ok := model.ParsePlatform(platform)
	if !ok {
		return model.Credential{}, fmt.Errorf("%w: unknown platform %q", driven.ErrInvalidInput, platform)
	}
	if userID <= 0 {
		return model.Credential{}, fmt.Errorf("%w: user id must be positive", driven.ErrInvalidInput)
	}

	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(token) == "" {
		return model.Credential{}, fmt.Errorf("%w: username and access token are required", driven.ErrInvalidInput)
	}

	return model.Credential{
		UserID:      userID,
		Platform:    p,
		Username:    username,
		AccessToken: token,
		LinkedAt:    s.now().UTC(),
	}, nil
}

// invalidateListing drops cached GitHub repositories, which belong to the
// previously linked account.
func (s *CredentialService) invalidateListing(ctx context.Context, userID int64, platform model.Platform) {
	if s.cache == nil || platform != model.PlatformGitHub {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		slog.Warn("failed to invalidate repository listing", "user_id", userID, "error", err)
	}
}
