package domain

import "time"

// TokenSet holds the delegated OAuth credentials for one identity. Only the
// encrypted envelope of this struct ever reaches the store.
type TokenSet struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        string     `json:"scope,omitempty"`
}

// Expired reports whether the access token's own expiry has passed. A token
// without an expiry never expires from the provider's perspective; the store
// TTL still bounds the session.
func (t TokenSet) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// CredentialRecord is the durable session state for one (user, workspace)
// pair. At most one record exists per pair; a second create replaces it.
type CredentialRecord struct {
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	Tokens      TokenSet  `json:"tokens"`
	CreatedAt   time.Time `json:"created_at"`
}

// TokenRefreshResponse models the identity provider's refresh grant response.
type TokenRefreshResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Scope        string
}
