package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	oauthadapter "github.com/smallbiznis/botgate/internal/adapter/oauth"
	"github.com/smallbiznis/botgate/internal/domain"
	"github.com/smallbiznis/botgate/internal/repository"
)

// SessionService owns the credential lifecycle for authenticated identities:
// creation on OAuth callback, expiry-driven refresh, and revocation.
type SessionService struct {
	store          repository.SessionStore
	providerClient oauthadapter.ProviderClient
	provider       oauthadapter.ProviderConfig
	logger         *zap.Logger
	now            func() time.Time

	// Concurrent refreshes for the same identity are coalesced in-process to
	// limit provider rate-limit pressure. Writes across processes still race;
	// the store's last write wins, which is acceptable because every refresh
	// outcome is a valid token from the provider's perspective.
	refreshGroup singleflight.Group
}

// NewSessionService wires the session lifecycle service.
func NewSessionService(
	store repository.SessionStore,
	providerClient oauthadapter.ProviderClient,
	provider oauthadapter.ProviderConfig,
	logger *zap.Logger,
) *SessionService {
	if logger == nil {
		logger = zap.L()
	}
	return &SessionService{
		store:          store,
		providerClient: providerClient,
		provider:       provider,
		logger:         logger,
		now:            time.Now,
	}
}

// Establish creates (or replaces) the session for the identity pair from a
// freshly exchanged token set.
func (s *SessionService) Establish(ctx context.Context, userID, workspaceID string, token *oauthadapter.TokenResponse) (string, error) {
	tokens := domain.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
	}
	if token.ExpiresIn > 0 {
		expiresAt := s.now().Add(time.Duration(token.ExpiresIn) * time.Second).UTC()
		tokens.ExpiresAt = &expiresAt
	}
	key, err := s.store.Create(ctx, userID, workspaceID, tokens)
	if err != nil {
		return "", fmt.Errorf("establish session: %w", err)
	}
	return key, nil
}

// EnsureValid returns a usable credential record for the identity, refreshing
// an expired access token when a refresh token is available. Missing records,
// unrefreshable tokens, and provider rejections all surface as
// domain.ErrReauthRequired; store connectivity failures keep their own error
// so callers fail closed instead of bouncing the user to OAuth.
func (s *SessionService) EnsureValid(ctx context.Context, userID, workspaceID string) (*domain.CredentialRecord, error) {
	record, err := s.store.Get(ctx, userID, workspaceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrReauthRequired
		}
		return nil, err
	}

	if !record.Tokens.Expired(s.now()) {
		return record, nil
	}
	if record.Tokens.RefreshToken == "" {
		return nil, domain.ErrReauthRequired
	}

	refreshed, err, _ := s.refreshGroup.Do(workspaceID+":"+userID, func() (any, error) {
		return s.refresh(ctx, userID, workspaceID, record)
	})
	if err != nil {
		return nil, err
	}
	return refreshed.(*domain.CredentialRecord), nil
}

func (s *SessionService) refresh(ctx context.Context, userID, workspaceID string, record *domain.CredentialRecord) (*domain.CredentialRecord, error) {
	resp, err := s.providerClient.RefreshToken(ctx, s.provider, record.Tokens.RefreshToken)
	if err != nil {
		// Terminal for this request: a rejected or unreachable refresh always
		// requires interactive re-authentication, never a background retry.
		s.logger.Warn("token refresh failed",
			zap.String("user_id", userID),
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
		return nil, domain.ErrReauthRequired
	}

	tokens := domain.TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
	}
	// The provider may omit a rotated refresh token or scope; keep the prior
	// values in that case.
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = record.Tokens.RefreshToken
	}
	if tokens.Scope == "" {
		tokens.Scope = record.Tokens.Scope
	}
	if resp.ExpiresIn > 0 {
		expiresAt := s.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
		tokens.ExpiresAt = &expiresAt
	}

	ok, err := s.store.UpdateTokens(ctx, userID, workspaceID, tokens)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The store TTL lapsed mid-refresh. The session is over; a refreshed
		// provider token does not resurrect it.
		return nil, domain.ErrReauthRequired
	}

	return &domain.CredentialRecord{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Tokens:      tokens,
		CreatedAt:   record.CreatedAt,
	}, nil
}

// Touch resets the store TTL for an active session.
func (s *SessionService) Touch(ctx context.Context, userID, workspaceID string) (bool, error) {
	return s.store.Extend(ctx, userID, workspaceID)
}

// Revoke deletes the session record.
func (s *SessionService) Revoke(ctx context.Context, userID, workspaceID string) (bool, error) {
	return s.store.Delete(ctx, userID, workspaceID)
}
