package ports

import (
	"context"
	"time"

	"github.com/cassauth/cassauth/internal/core/domain"
)

// UserRepository defines the interface for credential persistence.
//
// Create must be conditional (insert-if-absent): the storage engine's
// conditional write is the only arbiter of username uniqueness. A pre-read
// existence check is never a substitute.
type UserRepository interface {
	// Create inserts the record only if the username is absent, returning
	// domain.ErrUserExists otherwise.
	Create(ctx context.Context, user *domain.User) error
	// FindByUsername returns domain.ErrUserNotFound on a point-lookup miss.
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	// Save unconditionally upserts the full record.
	Save(ctx context.Context, user *domain.User) error
	// UpdateLastLogin records login bookkeeping without rewriting the row.
	UpdateLastLogin(ctx context.Context, username string, at time.Time) error
}
