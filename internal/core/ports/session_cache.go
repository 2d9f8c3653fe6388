package ports

import (
	"context"
	"time"

	"github.com/cassauth/cassauth/internal/core/domain"
)

// SessionCache is an optional read-through cache in front of the session
// repository. Implementations must treat a miss as (nil, nil); errors are
// advisory — callers fall back to the repository and never fail a request on
// a cache error.
type SessionCache interface {
	Get(ctx context.Context, key string) (*domain.Session, error)
	Set(ctx context.Context, session *domain.Session, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}
