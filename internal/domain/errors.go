package domain

import "errors"

var (
	// ErrNotFound signals that no credential record exists for the identity.
	ErrNotFound = errors.New("session: not found")
	// ErrStoreUnavailable signals a storage connectivity failure, distinct from
	// not-found so callers can fail closed instead of treating the user as
	// logged out.
	ErrStoreUnavailable = errors.New("session: store unavailable")
	// ErrReauthRequired signals that the user must redo the interactive OAuth
	// flow. Terminal for the current request; never retried in the background.
	ErrReauthRequired = errors.New("session: reauth required")
	// ErrInvalidWork signals a work item missing required identifying fields.
	ErrInvalidWork = errors.New("dispatch: invalid work item")
	// ErrTicketMinting signals that the identity infrastructure could not issue
	// a dispatch ticket. Fatal for the enqueue attempt.
	ErrTicketMinting = errors.New("dispatch: ticket minting failed")
	// ErrDispatchFailed signals that the queue rejected or never received the
	// work item.
	ErrDispatchFailed = errors.New("dispatch: enqueue failed")
)
