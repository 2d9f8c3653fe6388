package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cassauth/cassauth/internal/core/domain"
)

// StaffOnly gates admin routes. Must run after Session; the presence of a
// user in context proves the session middleware ran.
func StaffOnly() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := c.Get(ContextUserKey).(*domain.User)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication")
			}
			if !user.IsStaff {
				return echo.NewHTTPError(http.StatusForbidden, "staff access required")
			}
			return next(c)
		}
	}
}
