package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cassauth/cassauth/internal/api/middleware"
	"github.com/cassauth/cassauth/internal/core/domain"
)

// ctxUser extracts the credential record injected by the Session middleware.
// Its absence means the route was wired without the middleware — fail closed.
func ctxUser(c echo.Context) (*domain.User, error) {
	user, ok := c.Get(middleware.ContextUserKey).(*domain.User)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication")
	}
	return user, nil
}
