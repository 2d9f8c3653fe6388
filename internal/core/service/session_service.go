package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cassauth/cassauth/internal/api/metrics"
	"github.com/cassauth/cassauth/internal/core/domain"
	"github.com/cassauth/cassauth/internal/core/ports"
)

// sessionKeyBytes is the entropy behind a generated key: 20 random bytes,
// base32-encoded to 32 characters (fits the 40-char key column). At 160 bits
// the chance of ever observing a collision is negligible — the retry loop in
// Create exists for correctness, not because it is expected to run.
const sessionKeyBytes = 20

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// SessionService implements session lifecycle operations over a conditional
// write capable repository, with client-side expiration and an optional
// read-through cache.
type SessionService struct {
	repo       ports.SessionRepository
	cache      ports.SessionCache // nil disables caching
	defaultTTL time.Duration
	log        zerolog.Logger

	// test seams
	now    func() time.Time
	newKey func() (string, error)
}

func NewSessionService(repo ports.SessionRepository, cache ports.SessionCache, defaultTTL time.Duration, log zerolog.Logger) *SessionService {
	if defaultTTL <= 0 {
		defaultTTL = 14 * 24 * time.Hour
	}
	return &SessionService{
		repo:       repo,
		cache:      cache,
		defaultTTL: defaultTTL,
		log:        log,
		now:        time.Now,
		newKey:     generateSessionKey,
	}
}

// generateSessionKey returns a fresh random key: lowercase base32 of
// sessionKeyBytes bytes from crypto/rand.
func generateSessionKey() (string, error) {
	buf := make([]byte, sessionKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	return strings.ToLower(keyEncoding.EncodeToString(buf)), nil
}

// Load fetches and decodes the payload for key. Missing, expired, and
// undecodable sessions all collapse to an empty payload with a nil error;
// the distinction never crosses this boundary.
func (s *SessionService) Load(ctx context.Context, key string) (ports.SessionPayload, error) {
	if key == "" {
		return ports.SessionPayload{}, nil
	}

	sess, err := s.cachedFind(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			metrics.SessionLoadsTotal.WithLabelValues("miss").Inc()
			return ports.SessionPayload{}, nil
		}
		return nil, err
	}

	// The engine can't filter on expire_date at the storage layer, so the
	// expiry check happens here, after the fetch.
	if sess.Expired(s.now()) {
		metrics.SessionLoadsTotal.WithLabelValues("expired").Inc()
		return ports.SessionPayload{}, nil
	}

	payload, err := decodePayload(sess.Data)
	if err != nil {
		metrics.SessionLoadsTotal.WithLabelValues("corrupt").Inc()
		s.log.Warn().Err(err).Str("session_key", key).Msg("undecodable session payload, treating as unset")
		return ports.SessionPayload{}, nil
	}

	metrics.SessionLoadsTotal.WithLabelValues("hit").Inc()
	return payload, nil
}

// Exists is a bare point lookup on the primary key. It deliberately skips the
// expiry check Load applies: an expired-but-unswept key still reports true.
// That keeps Exists a single cheap row read, which is all its callers need.
func (s *SessionService) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	return s.repo.Exists(ctx, key)
}

// Create stores the payload under a freshly generated key. On a conditional
// insert conflict the key is regenerated and the insert retried; the engine's
// conditional write is the sole arbiter of uniqueness.
func (s *SessionService) Create(ctx context.Context, payload ports.SessionPayload, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	data, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	for {
		key, err := s.newKey()
		if err != nil {
			return "", err
		}
		sess := &domain.Session{Key: key, Data: data, ExpireDate: s.now().Add(ttl)}
		err = s.repo.Insert(ctx, sess)
		if errors.Is(err, domain.ErrSessionExists) {
			metrics.SessionKeyCollisionsTotal.Inc()
			s.log.Warn().Str("session_key", key).Msg("session key collision, regenerating")
			continue
		}
		if err != nil {
			return "", err
		}
		metrics.SessionsCreatedTotal.Inc()
		s.cacheSet(ctx, sess)
		return key, nil
	}
}

// Save writes the payload under key and returns the effective key.
//
// An empty key delegates to Create. An empty payload deletes the row: a
// session with nothing in it is indistinguishable from no session. With
// mustCreate the write is a conditional insert and a conflict surfaces as
// domain.ErrSessionExists so the caller can regenerate; otherwise the write
// is an unconditional upsert.
func (s *SessionService) Save(ctx context.Context, key string, payload ports.SessionPayload, expireAt time.Time, mustCreate bool) (string, error) {
	if key == "" {
		var ttl time.Duration
		if !expireAt.IsZero() {
			ttl = expireAt.Sub(s.now())
		}
		return s.Create(ctx, payload, ttl)
	}

	if len(payload) == 0 {
		return key, s.Delete(ctx, key)
	}

	data, err := encodePayload(payload)
	if err != nil {
		return "", err
	}
	if expireAt.IsZero() {
		expireAt = s.now().Add(s.defaultTTL)
	}
	sess := &domain.Session{Key: key, Data: data, ExpireDate: expireAt}

	if mustCreate {
		if err := s.repo.Insert(ctx, sess); err != nil {
			return "", err
		}
	} else {
		if err := s.repo.Upsert(ctx, sess); err != nil {
			return "", err
		}
	}
	s.cacheSet(ctx, sess)
	return key, nil
}

// Delete removes the session. A missing key is not an error.
func (s *SessionService) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.repo.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	s.cacheInvalidate(ctx, key)
	return nil
}

// cachedFind consults the cache before the repository, populating the cache
// on a repository hit. Cache errors degrade to the repository.
func (s *SessionService) cachedFind(ctx context.Context, key string) (*domain.Session, error) {
	if s.cache != nil {
		sess, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.SessionCacheTotal.WithLabelValues("error").Inc()
			s.log.Warn().Err(err).Str("session_key", key).Msg("session cache read failed, falling back to store")
		case sess != nil:
			metrics.SessionCacheTotal.WithLabelValues("hit").Inc()
			return sess, nil
		default:
			metrics.SessionCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	sess, err := s.repo.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, sess)
	return sess, nil
}

func (s *SessionService) cacheSet(ctx context.Context, sess *domain.Session) {
	if s.cache == nil {
		return
	}
	ttl := sess.Remaining(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, sess, ttl); err != nil {
		s.log.Warn().Err(err).Str("session_key", sess.Key).Msg("session cache write failed")
	}
}

func (s *SessionService) cacheInvalidate(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("session_key", key).Msg("session cache invalidation failed")
	}
}

func encodePayload(payload ports.SessionPayload) (string, error) {
	if payload == nil {
		payload = ports.SessionPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode session payload: %w", err)
	}
	return string(data), nil
}

func decodePayload(data string) (ports.SessionPayload, error) {
	if data == "" {
		return ports.SessionPayload{}, nil
	}
	var payload ports.SessionPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	return payload, nil
}
