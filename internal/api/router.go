package api

import (
	"github.com/gocql/gocql"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cassauth/cassauth/internal/api/handler"
	"github.com/cassauth/cassauth/internal/api/middleware"
	"github.com/cassauth/cassauth/internal/core/service"
	"github.com/cassauth/cassauth/internal/infrastructure/config"
	"github.com/cassauth/cassauth/internal/infrastructure/db/cassandra"
	redisdb "github.com/cassauth/cassauth/internal/infrastructure/db/redis"
)

// NewRouter builds and returns the Echo instance with all routes registered.
// rdb may be nil; the session cache and its readiness check are then skipped.
func NewRouter(session *gocql.Session, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("cassauth"))

	// --- Dependencies ---
	userRepo := cassandra.NewUserRepository(session)
	sessionRepo := cassandra.NewSessionRepository(session)

	var cache *redisdb.SessionCache
	if rdb != nil {
		cache = redisdb.NewSessionCache(rdb)
	}
	sessionService := newSessionService(sessionRepo, cache, cfg, log)
	authService := service.NewAuthService(userRepo, sessionService, cfg.JWTSecret, cfg.Session.TokenTTL, cfg.Session.TTL, log)
	sweeper := cassandra.NewSweeper(session, cfg.Sweep.PageSize, cfg.Sweep.PagesPerSec, log)

	authHandler := handler.NewAuthHandler(authService, sessionService, cfg.Session.CookieName)
	adminHandler := handler.NewAdminHandler(userRepo, authService, sweeper)
	sessionAuth := middleware.Session(cfg.Session.CookieName, sessionService, userRepo)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/logout", authHandler.Logout, sessionAuth)
	e.GET("/auth/me", authHandler.Me, sessionAuth)
	e.POST("/auth/password", authHandler.ChangePassword, sessionAuth)

	// --- Admin routes (staff only) ---
	admin := e.Group("/admin", sessionAuth, middleware.StaffOnly())
	admin.GET("/users/:username", adminHandler.GetUser)
	admin.POST("/users/:username/deactivate", adminHandler.DeactivateUser)
	admin.POST("/sessions/sweep", adminHandler.SweepSessions)

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(session, rdb)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}

// newSessionService keeps the nil-cache case a true nil interface; passing a
// typed nil pointer through ports.SessionCache would defeat the service's
// nil check.
func newSessionService(repo *cassandra.SessionRepository, cache *redisdb.SessionCache, cfg *config.Config, log zerolog.Logger) *service.SessionService {
	if cache == nil {
		return service.NewSessionService(repo, nil, cfg.Session.TTL, log)
	}
	return service.NewSessionService(repo, cache, cfg.Session.TTL, log)
}
