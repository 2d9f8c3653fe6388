package ports

import (
	"context"
	"time"
)

// SessionPayload is the decoded session content.
type SessionPayload map[string]any

// SessionService exposes session lifecycle operations with client-side
// expiration semantics.
type SessionService interface {
	// Load returns the payload for the key. A missing or expired session
	// yields an empty payload and a nil error: the caller treats the key as
	// unset and never learns why.
	Load(ctx context.Context, key string) (SessionPayload, error)
	// Exists is a bare point lookup; it does not apply the expiry check.
	Exists(ctx context.Context, key string) (bool, error)
	// Create stores the payload under a freshly generated key, retrying
	// generation on collision, and returns the key.
	Create(ctx context.Context, payload SessionPayload, ttl time.Duration) (string, error)
	// Save writes the payload under key and returns the effective key. An
	// empty key delegates to Create. mustCreate maps a conditional-insert
	// conflict to domain.ErrSessionExists. An empty payload deletes the row.
	Save(ctx context.Context, key string, payload SessionPayload, expireAt time.Time, mustCreate bool) (string, error)
	// Delete is best-effort; a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
