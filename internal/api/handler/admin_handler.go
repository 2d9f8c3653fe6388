package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cassauth/cassauth/internal/core/ports"
)

// SessionSweeper is what the admin surface needs from the expired-session
// sweeper: one synchronous pass, returning the number of rows removed.
type SessionSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// AdminHandler exposes staff-only operational endpoints.
type AdminHandler struct {
	users       ports.UserRepository
	authService ports.AuthService
	sweeper     SessionSweeper // nil when sweeping is not configured
}

func NewAdminHandler(users ports.UserRepository, authService ports.AuthService, sweeper SessionSweeper) *AdminHandler {
	return &AdminHandler{users: users, authService: authService, sweeper: sweeper}
}

// GetUser returns a credential record by username.
//
// @Summary      Look up a user
// @Tags         admin
// @Produce      json
// @Param        username  path      string  true  "Username"
// @Success      200       {object}  domain.User
// @Failure      404       {object}  map[string]string
// @Router       /admin/users/{username} [get]
func (h *AdminHandler) GetUser(c echo.Context) error {
	user, err := h.users.FindByUsername(c.Request().Context(), c.Param("username"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// DeactivateUser flips is_active off. Records are never hard-deleted.
//
// @Summary      Deactivate a user
// @Tags         admin
// @Param        username  path  string  true  "Username"
// @Success      204       "user deactivated"
// @Failure      404       {object}  map[string]string
// @Router       /admin/users/{username}/deactivate [post]
func (h *AdminHandler) DeactivateUser(c echo.Context) error {
	if err := h.authService.Deactivate(c.Request().Context(), c.Param("username")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type sweepResponse struct {
	Deleted int `json:"deleted"`
}

// SweepSessions runs one synchronous expired-session sweep.
//
// @Summary      Sweep expired sessions
// @Tags         admin
// @Produce      json
// @Success      200  {object}  sweepResponse
// @Router       /admin/sessions/sweep [post]
func (h *AdminHandler) SweepSessions(c echo.Context) error {
	if h.sweeper == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "sweeping not configured")
	}
	deleted, err := h.sweeper.Sweep(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sweepResponse{Deleted: deleted})
}
