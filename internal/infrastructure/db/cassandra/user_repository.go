package cassandra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cassauth/cassauth/internal/api/metrics"
	"github.com/cassauth/cassauth/internal/core/domain"
)

// UserRepository persists credential records in the credentials table.
type UserRepository struct {
	session *gocql.Session
}

func NewUserRepository(session *gocql.Session) *UserRepository {
	return &UserRepository{session: session}
}

const userColumns = `username, password_hash, email, first_name, last_name, is_staff, is_active, is_superuser, groups, user_permissions, last_login, date_joined`

// Create inserts the record with IF NOT EXISTS. A not-applied result means the
// username is taken — that lightweight transaction is the only uniqueness
// check; there is no pre-read.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	timer := prometheus.NewTimer(metrics.StoreOpDuration.WithLabelValues("user_create"))
	defer timer.ObserveDuration()

	applied, err := r.session.Query(
		`INSERT INTO credentials (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		user.Username, user.PasswordHash, user.Email, user.FirstName, user.LastName,
		user.IsStaff, user.IsActive, user.IsSuperuser, user.Groups, user.UserPermissions,
		user.LastLogin, user.DateJoined,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if !applied {
		return domain.ErrUserExists
	}
	return nil
}

// FindByUsername is a point lookup by primary key.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	timer := prometheus.NewTimer(metrics.StoreOpDuration.WithLabelValues("user_find"))
	defer timer.ObserveDuration()

	var u domain.User
	err := r.session.Query(
		`SELECT `+userColumns+` FROM credentials WHERE username = ?`, username,
	).WithContext(ctx).Scan(
		&u.Username, &u.PasswordHash, &u.Email, &u.FirstName, &u.LastName,
		&u.IsStaff, &u.IsActive, &u.IsSuperuser, &u.Groups, &u.UserPermissions,
		&u.LastLogin, &u.DateJoined,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// Save upserts the full record unconditionally. Used to persist in-memory
// mutations such as a password change or deactivation.
func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	timer := prometheus.NewTimer(metrics.StoreOpDuration.WithLabelValues("user_save"))
	defer timer.ObserveDuration()

	err := r.session.Query(
		`INSERT INTO credentials (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.PasswordHash, user.Email, user.FirstName, user.LastName,
		user.IsStaff, user.IsActive, user.IsSuperuser, user.Groups, user.UserPermissions,
		user.LastLogin, user.DateJoined,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// UpdateLastLogin writes login bookkeeping without touching the rest of the
// row.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, username string, at time.Time) error {
	timer := prometheus.NewTimer(metrics.StoreOpDuration.WithLabelValues("user_last_login"))
	defer timer.ObserveDuration()

	err := r.session.Query(
		`UPDATE credentials SET last_login = ? WHERE username = ?`, at, username,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}
