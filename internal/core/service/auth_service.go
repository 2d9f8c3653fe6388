package service

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/cassauth/cassauth/internal/api/metrics"
	"github.com/cassauth/cassauth/internal/core/domain"
	"github.com/cassauth/cassauth/internal/core/ports"
)

// Session payload keys written at login and checked by the session middleware.
const (
	SessionUserKey = "auth_username"
	SessionHashKey = "auth_hash"
)

// dummyHash is compared against when the username does not exist, so the
// unknown-user path costs the same one bcrypt verification as the
// wrong-password path. Must use the same cost as real hashes.
var dummyHash []byte

func init() {
	var err error
	dummyHash, err = bcrypt.GenerateFromPassword([]byte("cassauth timing equalizer"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
}

// AuthService implements registration, authentication, and login bookkeeping
// over a credential repository.
type AuthService struct {
	repo       ports.UserRepository
	sessions   ports.SessionService
	jwtSecret  string
	tokenTTL   time.Duration
	sessionTTL time.Duration
	log        zerolog.Logger

	now func() time.Time // test seam
}

func NewAuthService(repo ports.UserRepository, sessions ports.SessionService, jwtSecret string, tokenTTL, sessionTTL time.Duration, log zerolog.Logger) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		repo:       repo,
		sessions:   sessions,
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
		sessionTTL: sessionTTL,
		log:        log,
		now:        time.Now,
	}
}

// Register validates the username, hashes the password, and performs the
// conditional insert. Uniqueness is enforced solely by the insert: a losing
// racer gets domain.ErrUserExists, never a silently overwritten row.
func (s *AuthService) Register(ctx context.Context, username, password string, profile domain.Profile) (*domain.User, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user := &domain.User{
		Username:    username,
		Email:       profile.Email,
		FirstName:   profile.FirstName,
		LastName:    profile.LastName,
		IsStaff:     profile.Staff,
		IsSuperuser: profile.Superuser,
		IsActive:    true,
		DateJoined:  s.now().UTC(),
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	metrics.UsersCreatedTotal.Inc()
	s.log.Info().Str("username", username).Msg("user created")
	return user, nil
}

// Authenticate verifies the credentials. All failure modes collapse to
// domain.ErrInvalidCredentials, and the unknown-user path burns one bcrypt
// comparison against a dummy hash so its timing matches the wrong-password
// path (no username enumeration through response latency).
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		metrics.AuthAttemptsTotal.WithLabelValues("unknown_user").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	if !user.CheckPassword(password) {
		if !user.HasUsablePassword() {
			// CheckPassword short-circuits on unusable hashes; keep the
			// attempt cost constant anyway.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		}
		metrics.AuthAttemptsTotal.WithLabelValues("bad_password").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	if !user.Active() {
		metrics.AuthAttemptsTotal.WithLabelValues("inactive").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	metrics.AuthAttemptsTotal.WithLabelValues("ok").Inc()
	return user, nil
}

// Login authenticates, records last_login, opens a server-side session bound
// to the credential's session-auth hash, and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*ports.LoginResult, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.Username, now); err != nil {
		// Bookkeeping, not an auth failure.
		s.log.Warn().Err(err).Str("username", user.Username).Msg("failed to record last login")
	} else {
		user.LastLogin = now
	}

	sessionKey, err := s.sessions.Create(ctx, ports.SessionPayload{
		SessionUserKey: user.Username,
		SessionHashKey: user.SessionAuthHash(),
	}, s.sessionTTL)
	if err != nil {
		return nil, err
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}

	ttl := s.sessionTTL
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &ports.LoginResult{
		User:          user,
		Token:         token,
		SessionKey:    sessionKey,
		SessionExpiry: now.Add(ttl),
	}, nil
}

// ChangePassword verifies the old password, replaces the hash, and persists
// the record. Existing sessions carry the old session-auth hash and stop
// validating once the save lands.
func (s *AuthService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	user, err := s.Authenticate(ctx, username, oldPassword)
	if err != nil {
		return err
	}
	if newPassword == "" {
		return domain.ErrInvalidCredentials
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	return s.repo.Save(ctx, user)
}

// Deactivate flips is_active off. Credential records are never hard-deleted.
func (s *AuthService) Deactivate(ctx context.Context, username string) error {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	user.IsActive = false
	if err := s.repo.Save(ctx, user); err != nil {
		return err
	}
	s.log.Info().Str("username", username).Msg("user deactivated")
	return nil
}

func (s *AuthService) generateToken(user *domain.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.Username,
		"staff": user.IsStaff,
		"super": user.IsSuperuser,
		"exp":   s.now().Add(s.tokenTTL).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.jwtSecret))
}
