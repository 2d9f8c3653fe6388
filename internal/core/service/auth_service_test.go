package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/cassauth/cassauth/internal/core/domain"
	"github.com/cassauth/cassauth/internal/core/ports"
)

type stubUserRepo struct {
	users map[string]*domain.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) error {
	if _, exists := r.users[user.Username]; exists {
		return domain.ErrUserExists
	}
	r.users[user.Username] = cloneUser(user)
	return nil
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) Save(_ context.Context, user *domain.User) error {
	r.users[user.Username] = cloneUser(user)
	return nil
}

func (r *stubUserRepo) UpdateLastLogin(_ context.Context, username string, at time.Time) error {
	u, ok := r.users[username]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastLogin = at
	return nil
}

func newTestAuthService(repo ports.UserRepository, sessions ports.SessionService) *AuthService {
	return NewAuthService(repo, sessions, "secret", time.Hour, time.Hour, zerolog.Nop())
}

func newTestAuthStack() (*stubUserRepo, *stubSessionRepo, *AuthService) {
	userRepo := newStubUserRepo()
	sessionRepo := newStubSessionRepo()
	sessions := newTestSessionService(sessionRepo)
	return userRepo, sessionRepo, newTestAuthService(userRepo, sessions)
}

func TestAuthService_Register_Success(t *testing.T) {
	_, _, svc := newTestAuthStack()

	user, err := svc.Register(context.Background(), "alice", "pass12345", domain.Profile{Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.PasswordHash == "pass12345" {
		t.Fatalf("expected password to be hashed")
	}
	if !user.CheckPassword("pass12345") {
		t.Fatalf("stored hash does not match password")
	}
	if !user.IsActive {
		t.Fatalf("new user should be active")
	}
	if user.IsStaff || user.IsSuperuser {
		t.Fatalf("new user should not have elevated flags")
	}
	if user.DateJoined.IsZero() {
		t.Fatalf("date joined not set")
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	_, _, svc := newTestAuthStack()

	if _, err := svc.Register(context.Background(), "abc", "pass12345", domain.Profile{}); !errors.Is(err, domain.ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername for short name, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "has space", "pass12345", domain.Profile{}); !errors.Is(err, domain.ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername for bad charset, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "goodname", "", domain.Profile{}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty password, got %v", err)
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	_, _, svc := newTestAuthStack()

	if _, err := svc.Register(context.Background(), "bob1", "pass12345", domain.Profile{}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := svc.Register(context.Background(), "bob1", "other-pass", domain.Profile{}); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	repo, _, svc := newTestAuthStack()

	if _, err := svc.Register(context.Background(), "carol", "s3cret-pass", domain.Profile{}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, err := svc.Authenticate(context.Background(), "carol", "s3cret-pass")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.Username != "carol" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := svc.Authenticate(context.Background(), "carol", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", err)
	}

	repo.users["carol"].IsActive = false
	if _, err := svc.Authenticate(context.Background(), "carol", "s3cret-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("inactive user: got %v", err)
	}
}

// Unknown-user and wrong-password attempts must both pay one bcrypt
// comparison, so neither outcome is distinguishable by latency. Medians over
// a few samples keep scheduler noise out.
func TestAuthService_Authenticate_TimingParity(t *testing.T) {
	if testing.Short() {
		t.Skip("bcrypt timing samples are slow")
	}
	_, _, svc := newTestAuthStack()

	if _, err := svc.Register(context.Background(), "victim", "correct-pass", domain.Profile{}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	sample := func(username string) time.Duration {
		const n = 5
		durations := make([]time.Duration, n)
		for i := 0; i < n; i++ {
			start := time.Now()
			_, _ = svc.Authenticate(context.Background(), username, "not-the-password")
			durations[i] = time.Since(start)
		}
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		return durations[n/2]
	}

	known := sample("victim")
	unknown := sample("ghost-user")

	// The unknown path must not be meaningfully cheaper than the known path.
	if unknown < known/2 {
		t.Fatalf("unknown-user path too fast: %v vs %v (username enumeration)", unknown, known)
	}
}

func TestAuthService_Login(t *testing.T) {
	repo, sessionRepo, svc := newTestAuthStack()

	if _, err := svc.Register(context.Background(), "diana", "pass12345", domain.Profile{Staff: true}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	result, err := svc.Login(context.Background(), "diana", "pass12345")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.Token == "" {
		t.Fatalf("expected token")
	}
	if result.SessionKey == "" {
		t.Fatalf("expected session key")
	}
	if repo.users["diana"].LastLogin.IsZero() {
		t.Fatalf("last login not recorded")
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(result.Token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	if claims["sub"] != "diana" || claims["staff"] != true {
		t.Fatalf("unexpected claims: %v", claims)
	}

	// The session payload binds the username and the credential's auth hash.
	sess, err := sessionRepo.Find(context.Background(), result.SessionKey)
	if err != nil {
		t.Fatalf("session missing: %v", err)
	}
	payload, err := decodePayload(sess.Data)
	if err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if payload[SessionUserKey] != "diana" {
		t.Fatalf("session payload missing username: %v", payload)
	}
	if payload[SessionHashKey] != result.User.SessionAuthHash() {
		t.Fatalf("session payload hash mismatch")
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	repo, _, svc := newTestAuthStack()

	if _, err := svc.Register(context.Background(), "frank", "old-password", domain.Profile{}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	oldHash := repo.users["frank"].SessionAuthHash()

	if err := svc.ChangePassword(context.Background(), "frank", "wrong", "new-password"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong old password: got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), "frank", "old-password", ""); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("empty new password: got %v", err)
	}

	if err := svc.ChangePassword(context.Background(), "frank", "old-password", "new-password"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "frank", "new-password"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "frank", "old-password"); err == nil {
		t.Fatalf("old password still accepted")
	}
	if repo.users["frank"].SessionAuthHash() == oldHash {
		t.Fatalf("session auth hash did not rotate with the password")
	}
}

func TestAuthService_Deactivate(t *testing.T) {
	repo, _, svc := newTestAuthStack()

	if _, err := svc.Register(context.Background(), "grace", "pass12345", domain.Profile{}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := svc.Deactivate(context.Background(), "grace"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if repo.users["grace"].IsActive {
		t.Fatalf("user still active")
	}
	// The record survives: deactivation, never deletion.
	if _, ok := repo.users["grace"]; !ok {
		t.Fatalf("record removed")
	}

	if err := svc.Deactivate(context.Background(), "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("deactivate unknown user: got %v", err)
	}
}
