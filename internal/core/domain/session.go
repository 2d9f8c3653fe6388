package domain

import (
	"errors"
	"time"
)

// MaxSessionKeyLen is the widest key the sessions table accepts.
const MaxSessionKeyLen = 40

var ErrSessionExists = errors.New("session key already exists")
var ErrSessionNotFound = errors.New("session not found")

// Session is a stored session row. Data is an opaque encoded payload; the
// storage layer never interprets it.
type Session struct {
	Key        string    `json:"session_key"`
	Data       string    `json:"session_data"`
	ExpireDate time.Time `json:"expire_date"`
}

// Expired reports whether the session is past its expiry at the given instant.
// A session expiring exactly now is already expired.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpireDate.After(now)
}

// Remaining returns the session's remaining lifetime at the given instant,
// or zero when expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s.Expired(now) {
		return 0
	}
	return s.ExpireDate.Sub(now)
}
