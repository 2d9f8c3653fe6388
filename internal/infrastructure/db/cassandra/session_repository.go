package cassandra

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cassauth/cassauth/internal/api/metrics"
	"github.com/cassauth/cassauth/internal/core/domain"
)

// SessionRepository persists session rows in the sessions table.
type SessionRepository struct {
	session *gocql.Session
}

func NewSessionRepository(session *gocql.Session) *SessionRepository {
	return &SessionRepository{session: session}
}

// Insert writes the row with IF NOT EXISTS. A not-applied result surfaces as
// domain.ErrSessionExists so callers can regenerate the key; no other gocql
// error type crosses this boundary.
func (r *SessionRepository) Insert(ctx context.Context, sess *domain.Session) error {
	timer := prometheus.NewTimer(metrics.StoreOpDuration.WithLabelValues("session_insert"))
	defer timer.ObserveDuration()

	applied, err := r.session.Query(
		`INSERT INTO sessions (session_key, session_data, expire_date) VALUES (?, ?, ?) IF NOT EXISTS`,
		sess.Key, sess.Data, sess.ExpireDate,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if !applied {
		return domain.ErrSessionExists
	}
	return nil
}

// Upsert writes the row unconditionally.
func (r *SessionRepository) Upsert(ctx context.Context, sess *domain.Session) error {
	timer := prometheus.NewTimer(metrics.StoreOpDuration.WithLabelValues("session_upsert"))
	defer timer.ObserveDuration()

	err := r.session.Query(
		`INSERT INTO sessions (session_key, session_data, expire_date) VALUES (?, ?, ?)`,
		sess.Key, sess.Data, sess.ExpireDate,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Find is a point lookup by primary key. Expired rows are returned as-is;
// the engine cannot filter on expire_date.
func (r *SessionRepository) Find(ctx context.Context, key string) (*domain.Session, error) {
	timer := prometheus.NewTimer(metrics.StoreOpDuration.WithLabelValues("session_find"))
	defer timer.ObserveDuration()

	sess := domain.Session{Key: key}
	err := r.session.Query(
		`SELECT session_data, expire_date FROM sessions WHERE session_key = ?`, key,
	).WithContext(ctx).Scan(&sess.Data, &sess.ExpireDate)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &sess, nil
}

// Exists selects only the key column, skipping row materialization.
func (r *SessionRepository) Exists(ctx context.Context, key string) (bool, error) {
	timer := prometheus.NewTimer(metrics.StoreOpDuration.WithLabelValues("session_exists"))
	defer timer.ObserveDuration()

	var found string
	err := r.session.Query(
		`SELECT session_key FROM sessions WHERE session_key = ?`, key,
	).WithContext(ctx).Scan(&found)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("session exists: %w", err)
	}
	return true, nil
}

// Delete removes the row. Cassandra deletes are tombstone writes, so a
// missing key succeeds without comment.
func (r *SessionRepository) Delete(ctx context.Context, key string) error {
	timer := prometheus.NewTimer(metrics.StoreOpDuration.WithLabelValues("session_delete"))
	defer timer.ObserveDuration()

	err := r.session.Query(
		`DELETE FROM sessions WHERE session_key = ?`, key,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
