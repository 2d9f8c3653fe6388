package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	UsernameMinLen = 4
	UsernameMaxLen = 30
)

// unusablePrefix marks a password hash that can never verify. Set for accounts
// that authenticate by other means (or not at all).
const unusablePrefix = "!"

// sessionHashSalt keys the HMAC binding a session to the credential that opened
// it. Changing it invalidates every live session.
const sessionHashSalt = "cassauth.domain.User.SessionAuthHash"

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

var ErrUserExists = errors.New("username already taken")
var ErrUserNotFound = errors.New("user not found")
var ErrInvalidUsername = errors.New("invalid username")
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is a credential record: the single source of identity for the system.
// A zero LastLogin means the user has never logged in.
type User struct {
	Username        string    `json:"username"`
	PasswordHash    string    `json:"-"`
	Email           string    `json:"email,omitempty"`
	FirstName       string    `json:"first_name,omitempty"`
	LastName        string    `json:"last_name,omitempty"`
	IsStaff         bool      `json:"is_staff"`
	IsActive        bool      `json:"is_active"`
	IsSuperuser     bool      `json:"is_superuser"`
	Groups          []string  `json:"groups,omitempty"`
	UserPermissions []string  `json:"user_permissions,omitempty"`
	LastLogin       time.Time `json:"last_login"`
	DateJoined      time.Time `json:"date_joined"`
}

// Profile carries the optional attributes supplied at registration.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
	Staff     bool
	Superuser bool
}

// ValidateUsername checks length and charset (letters, digits, and @/./+/-/_).
func ValidateUsername(username string) error {
	if len(username) < UsernameMinLen || len(username) > UsernameMaxLen {
		return ErrInvalidUsername
	}
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// SetPassword replaces the stored hash in memory. Persisting the change is the
// caller's responsibility.
func (u *User) SetPassword(raw string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether raw matches the stored hash.
func (u *User) CheckPassword(raw string) bool {
	if !u.HasUsablePassword() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(raw)) == nil
}

// SetUnusablePassword stores a sentinel that no password will ever match.
func (u *User) SetUnusablePassword() {
	u.PasswordHash = unusablePrefix
}

func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != "" && !strings.HasPrefix(u.PasswordHash, unusablePrefix)
}

// SessionAuthHash returns an HMAC of the password hash. Sessions record it at
// login; a password change rotates it and orphans every older session.
func (u *User) SessionAuthHash() string {
	mac := hmac.New(sha256.New, []byte(sessionHashSalt))
	mac.Write([]byte(u.PasswordHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// Name returns the identifying username.
func (u *User) Name() string { return u.Username }

// Active reports whether the account may authenticate.
func (u *User) Active() bool { return u.IsActive }

// Permissions returns the permissions granted directly to the user.
func (u *User) Permissions() []string { return u.UserPermissions }

// FullName returns first and last name separated by a space.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ShortName returns the user's first name.
func (u *User) ShortName() string { return u.FirstName }

// HasPerm reports whether the user holds the named permission. Active
// superusers hold every permission.
func (u *User) HasPerm(perm string) bool {
	if u.IsActive && u.IsSuperuser {
		return true
	}
	for _, p := range u.UserPermissions {
		if p == perm {
			return true
		}
	}
	return false
}

// HasPerms reports whether the user holds all named permissions.
func (u *User) HasPerms(perms ...string) bool {
	for _, p := range perms {
		if !u.HasPerm(p) {
			return false
		}
	}
	return true
}
