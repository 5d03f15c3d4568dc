package repository

import (
	"context"

	"github.com/smallbiznis/botgate/internal/domain"
)

// SessionStore persists encrypted credential records keyed by
// (userID, workspaceID). Storage connectivity failures surface as
// domain.ErrStoreUnavailable; a missing record is domain.ErrNotFound.
type SessionStore interface {
	// Create writes (or silently replaces) the record for the identity pair
	// and starts the store TTL. It returns the derived storage key.
	Create(ctx context.Context, userID, workspaceID string, tokens domain.TokenSet) (string, error)
	// Get loads and decrypts the record. An undecryptable record reads as
	// not-found; the failure is logged, never propagated.
	Get(ctx context.Context, userID, workspaceID string) (*domain.CredentialRecord, error)
	// Extend resets the TTL without rewriting contents. False when no record
	// exists.
	Extend(ctx context.Context, userID, workspaceID string) (bool, error)
	// UpdateTokens re-encrypts and overwrites in place, refreshing the TTL.
	// False when there is no prior record; an update never creates.
	UpdateTokens(ctx context.Context, userID, workspaceID string, tokens domain.TokenSet) (bool, error)
	// Delete removes the record. False when nothing was stored.
	Delete(ctx context.Context, userID, workspaceID string) (bool, error)
	// Exists checks for a record without paying the decryption cost.
	Exists(ctx context.Context, userID, workspaceID string) (bool, error)
}
