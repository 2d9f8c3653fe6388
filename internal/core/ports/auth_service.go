package ports

import (
	"context"
	"time"

	"github.com/cassauth/cassauth/internal/core/domain"
)

// LoginResult bundles everything a successful login produces: the credential
// record, a signed bearer token, and the server-side session opened for it.
type LoginResult struct {
	User          *domain.User `json:"user"`
	Token         string       `json:"token"`
	SessionKey    string       `json:"-"`
	SessionExpiry time.Time    `json:"-"`
}

type AuthService interface {
	Register(ctx context.Context, username, password string, profile domain.Profile) (*domain.User, error)
	// Authenticate verifies credentials with constant attempt cost: an unknown
	// username still pays one hash comparison before failing.
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
	Deactivate(ctx context.Context, username string) error
}
