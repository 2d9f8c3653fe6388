package service

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cassauth/cassauth/internal/core/domain"
	"github.com/cassauth/cassauth/internal/core/ports"
)

type stubSessionRepo struct {
	rows        map[string]domain.Session
	insertCalls int
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{rows: make(map[string]domain.Session)}
}

func (r *stubSessionRepo) Insert(_ context.Context, s *domain.Session) error {
	r.insertCalls++
	if _, exists := r.rows[s.Key]; exists {
		return domain.ErrSessionExists
	}
	r.rows[s.Key] = *s
	return nil
}

func (r *stubSessionRepo) Upsert(_ context.Context, s *domain.Session) error {
	r.rows[s.Key] = *s
	return nil
}

func (r *stubSessionRepo) Find(_ context.Context, key string) (*domain.Session, error) {
	s, ok := r.rows[key]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (r *stubSessionRepo) Exists(_ context.Context, key string) (bool, error) {
	_, ok := r.rows[key]
	return ok, nil
}

func (r *stubSessionRepo) Delete(_ context.Context, key string) error {
	delete(r.rows, key)
	return nil
}

func newTestSessionService(repo ports.SessionRepository) *SessionService {
	return NewSessionService(repo, nil, time.Hour, zerolog.Nop())
}

func TestGenerateSessionKey(t *testing.T) {
	seen := make(map[string]bool)
	pattern := regexp.MustCompile(`^[a-z2-7]+$`)
	for i := 0; i < 32; i++ {
		key, err := generateSessionKey()
		if err != nil {
			t.Fatalf("generateSessionKey: %v", err)
		}
		if len(key) != 32 {
			t.Fatalf("key length = %d, want 32", len(key))
		}
		if len(key) > domain.MaxSessionKeyLen {
			t.Fatalf("key exceeds column width: %d", len(key))
		}
		if !pattern.MatchString(key) {
			t.Fatalf("key %q is not lowercase base32", key)
		}
		if seen[key] {
			t.Fatalf("duplicate key generated: %q", key)
		}
		seen[key] = true
	}
}

func TestSessionService_CreateLoadRoundTrip(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newTestSessionService(repo)

	payload := ports.SessionPayload{"cart": []any{float64(1), float64(2)}}
	key, err := svc.Create(context.Background(), payload, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if key == "" {
		t.Fatalf("Create returned empty key")
	}

	got, err := svc.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, payload) {
		t.Fatalf("round trip mismatch: got %v, want %v", got, payload)
	}
}

func TestSessionService_LoadMissingIsUnset(t *testing.T) {
	svc := newTestSessionService(newStubSessionRepo())

	got, err := svc.Load(context.Background(), "nosuchkey")
	if err != nil {
		t.Fatalf("Load on missing key returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Load on missing key = %v, want empty", got)
	}

	if got, err := svc.Load(context.Background(), ""); err != nil || len(got) != 0 {
		t.Fatalf("Load on empty key = %v, %v", got, err)
	}
}

func TestSessionService_ExpiredLoadDivergesFromExists(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newTestSessionService(repo)

	repo.rows["stale"] = domain.Session{
		Key:        "stale",
		Data:       `{"user":"gone"}`,
		ExpireDate: time.Now().Add(-time.Minute),
	}

	got, err := svc.Load(context.Background(), "stale")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expired session leaked payload: %v", got)
	}

	// Exists is a bare point lookup: the unswept row still reports true.
	exists, err := svc.Exists(context.Background(), "stale")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatalf("Exists = false for an unswept expired row")
	}
}

func TestSessionService_ClockAdvancePastTTL(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newTestSessionService(repo)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	svc.now = func() time.Time { return current }

	key, err := svc.Create(context.Background(), ports.SessionPayload{"cart": []any{float64(1), float64(2)}}, 3600*time.Second)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Load(context.Background(), key)
	if err != nil || len(got) == 0 {
		t.Fatalf("Load before expiry = %v, %v", got, err)
	}

	current = base.Add(3601 * time.Second)
	got, err = svc.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("Load after expiry: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Load after expiry = %v, want empty", got)
	}
}

func TestSessionService_SaveMustCreateConflict(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newTestSessionService(repo)

	key, err := svc.Create(context.Background(), ports.SessionPayload{"v": "one"}, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.Save(context.Background(), key, ports.SessionPayload{"v": "two"}, time.Now().Add(time.Hour), true)
	if !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("Save(mustCreate) on existing key = %v, want ErrSessionExists", err)
	}
	if got, _ := svc.Load(context.Background(), key); got["v"] != "one" {
		t.Fatalf("conflicting save mutated the row: %v", got)
	}

	if _, err := svc.Save(context.Background(), key, ports.SessionPayload{"v": "two"}, time.Now().Add(time.Hour), false); err != nil {
		t.Fatalf("unconditional Save: %v", err)
	}
	if got, _ := svc.Load(context.Background(), key); got["v"] != "two" {
		t.Fatalf("upsert did not overwrite: %v", got)
	}
}

func TestSessionService_SaveEmptyKeyDelegatesToCreate(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newTestSessionService(repo)

	key, err := svc.Save(context.Background(), "", ports.SessionPayload{"v": "fresh"}, time.Now().Add(time.Hour), false)
	if err != nil {
		t.Fatalf("Save with empty key: %v", err)
	}
	if key == "" {
		t.Fatalf("Save with empty key returned no key")
	}
	if got, _ := svc.Load(context.Background(), key); got["v"] != "fresh" {
		t.Fatalf("payload not stored: %v", got)
	}
}

func TestSessionService_SaveEmptyPayloadDeletes(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newTestSessionService(repo)

	key, err := svc.Create(context.Background(), ports.SessionPayload{"v": "soon gone"}, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Save(context.Background(), key, ports.SessionPayload{}, time.Now().Add(time.Hour), false); err != nil {
		t.Fatalf("Save with empty payload: %v", err)
	}
	if _, ok := repo.rows[key]; ok {
		t.Fatalf("row survived an empty-payload save")
	}
}

func TestSessionService_CreateRetriesOnCollision(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newTestSessionService(repo)

	// Force the first generated key to collide with an existing row.
	repo.rows["collision"] = domain.Session{Key: "collision", Data: `{"v":"original"}`, ExpireDate: time.Now().Add(time.Hour)}
	keys := []string{"collision", "freshkey"}
	svc.newKey = func() (string, error) {
		k := keys[0]
		if len(keys) > 1 {
			keys = keys[1:]
		}
		return k, nil
	}

	key, err := svc.Create(context.Background(), ports.SessionPayload{"v": "new"}, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if key != "freshkey" {
		t.Fatalf("Create returned %q, want the regenerated key", key)
	}
	if repo.insertCalls != 2 {
		t.Fatalf("insert attempts = %d, want exactly one retry", repo.insertCalls)
	}
	if got, _ := svc.Load(context.Background(), "collision"); got["v"] != "original" {
		t.Fatalf("collision corrupted the existing row: %v", got)
	}
}

func TestSessionService_DeleteMissingKeyIsNoError(t *testing.T) {
	svc := newTestSessionService(newStubSessionRepo())
	if err := svc.Delete(context.Background(), "never-existed"); err != nil {
		t.Fatalf("Delete on missing key: %v", err)
	}
	if err := svc.Delete(context.Background(), ""); err != nil {
		t.Fatalf("Delete on empty key: %v", err)
	}
}

func TestSessionService_CorruptPayloadTreatedAsUnset(t *testing.T) {
	repo := newStubSessionRepo()
	svc := newTestSessionService(repo)

	repo.rows["broken"] = domain.Session{Key: "broken", Data: "{not json", ExpireDate: time.Now().Add(time.Hour)}

	got, err := svc.Load(context.Background(), "broken")
	if err != nil {
		t.Fatalf("Load of corrupt payload returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("corrupt payload leaked content: %v", got)
	}
}

// stubSessionCache counts hits and can fail on demand.
type stubSessionCache struct {
	entries map[string]domain.Session
	failGet bool
	gets    int
	sets    int
}

func newStubSessionCache() *stubSessionCache {
	return &stubSessionCache{entries: make(map[string]domain.Session)}
}

func (c *stubSessionCache) Get(_ context.Context, key string) (*domain.Session, error) {
	c.gets++
	if c.failGet {
		return nil, errors.New("cache down")
	}
	s, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *stubSessionCache) Set(_ context.Context, s *domain.Session, _ time.Duration) error {
	c.sets++
	c.entries[s.Key] = *s
	return nil
}

func (c *stubSessionCache) Invalidate(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func TestSessionService_CacheReadThrough(t *testing.T) {
	repo := newStubSessionRepo()
	cache := newStubSessionCache()
	svc := NewSessionService(repo, cache, time.Hour, zerolog.Nop())

	key, err := svc.Create(context.Background(), ports.SessionPayload{"v": "cached"}, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cache.sets == 0 {
		t.Fatalf("Create did not populate the cache")
	}

	// Drop the backing row: a cache hit must still serve the session.
	delete(repo.rows, key)
	got, err := svc.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got["v"] != "cached" {
		t.Fatalf("cache hit not served: %v", got)
	}

	// Delete must invalidate.
	if err := svc.Delete(context.Background(), key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := svc.Load(context.Background(), key); len(got) != 0 {
		t.Fatalf("invalidated session still served: %v", got)
	}
}

func TestSessionService_CacheErrorFallsBackToStore(t *testing.T) {
	repo := newStubSessionRepo()
	cache := newStubSessionCache()
	cache.failGet = true
	svc := NewSessionService(repo, cache, time.Hour, zerolog.Nop())

	repo.rows["durable"] = domain.Session{Key: "durable", Data: `{"v":"stored"}`, ExpireDate: time.Now().Add(time.Hour)}

	got, err := svc.Load(context.Background(), "durable")
	if err != nil {
		t.Fatalf("Load with failing cache: %v", err)
	}
	if got["v"] != "stored" {
		t.Fatalf("fallback to store failed: %v", got)
	}
}
