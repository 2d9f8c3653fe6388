package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cassauth/cassauth/internal/core/ports"
	"github.com/cassauth/cassauth/internal/core/service"
)

// Context keys populated by the Session middleware.
const (
	ContextUserKey       = "user"
	ContextSessionKeyKey = "session_key"
)

// Session authenticates requests by session cookie. The cookie value is
// resolved through the session service (missing and expired both come back as
// an empty payload), the referenced credential is fetched, and the session's
// recorded auth hash is compared against the credential's current one so a
// password change invalidates every session opened before it.
func Session(cookieName string, sessions ports.SessionService, users ports.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
			}

			payload, err := sessions.Load(c.Request().Context(), cookie.Value)
			if err != nil {
				return err
			}

			username, _ := payload[service.SessionUserKey].(string)
			if username == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
			}

			user, err := users.FindByUsername(c.Request().Context(), username)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
			}

			sessionHash, _ := payload[service.SessionHashKey].(string)
			if subtle.ConstantTimeCompare([]byte(sessionHash), []byte(user.SessionAuthHash())) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "session no longer valid")
			}

			if !user.Active() {
				return echo.NewHTTPError(http.StatusUnauthorized, "account disabled")
			}

			c.Set(ContextUserKey, user)
			c.Set(ContextSessionKeyKey, cookie.Value)

			return next(c)
		}
	}
}
