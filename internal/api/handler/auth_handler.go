package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cassauth/cassauth/internal/api/middleware"
	"github.com/cassauth/cassauth/internal/core/domain"
	"github.com/cassauth/cassauth/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
	sessions    ports.SessionService
	cookieName  string
}

func NewAuthHandler(authService ports.AuthService, sessions ports.SessionService, cookieName string) *AuthHandler {
	return &AuthHandler{authService: authService, sessions: sessions, cookieName: cookieName}
}

type registerRequest struct {
	Username  string `json:"username" validate:"required,min=4,max=30"`
	Password  string `json:"password" validate:"required,min=8"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	FirstName string `json:"first_name,omitempty" validate:"max=100"`
	LastName  string `json:"last_name,omitempty" validate:"max=100"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type authResponse struct {
	Token string       `json:"token,omitempty"`
	User  *domain.User `json:"user,omitempty"`
}

// Register creates a new credential record.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  authResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, err := h.authService.Register(c.Request().Context(), req.Username, req.Password, domain.Profile{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, authResponse{User: user})
}

// Login authenticates a user, opens a server-side session (returned as an
// http-only cookie), and returns a bearer token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     h.cookieName,
		Value:    result.SessionKey,
		Path:     "/",
		Expires:  result.SessionExpiry,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, authResponse{Token: result.Token, User: result.User})
}

// Logout deletes the server-side session and clears the cookie.
//
// @Summary      Logout
// @Tags         auth
// @Success      204  "session deleted"
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	key, _ := c.Get(middleware.ContextSessionKeyKey).(string)
	if err := h.sessions.Delete(c.Request().Context(), key); err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})

	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user's record.
//
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Success      200  {object}  domain.User
// @Failure      401  {object}  map[string]string
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// ChangePassword rotates the authenticated user's password. The current
// session dies with the old hash; the client must log in again.
//
// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Success      204  "password changed"
// @Failure      401  {object}  map[string]string
// @Router       /auth/password [post]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.authService.ChangePassword(c.Request().Context(), user.Username, req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
