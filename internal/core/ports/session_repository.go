package ports

import (
	"context"

	"github.com/cassauth/cassauth/internal/core/domain"
)

// SessionRepository defines the interface for session persistence.
//
// The engine cannot filter on expire_date (no secondary index), so Find
// returns expired rows as-is; expiry is the caller's problem.
type SessionRepository interface {
	// Insert writes the row only if the key is absent, returning
	// domain.ErrSessionExists otherwise.
	Insert(ctx context.Context, session *domain.Session) error
	// Upsert writes the row unconditionally.
	Upsert(ctx context.Context, session *domain.Session) error
	// Find returns domain.ErrSessionNotFound on a miss. Expired rows are
	// returned, not filtered.
	Find(ctx context.Context, key string) (*domain.Session, error)
	// Exists is a bare point lookup on the primary key.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the row; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
