package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gocql/gocql"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/cassauth/cassauth/internal/infrastructure/db/cassandra"
)

// HealthHandler handles GET /health — liveness probe.
// Returns 200 immediately; confirms the process is alive.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HealthDependenciesHandler handles GET /health/ready — readiness probe.
// Checks Cassandra (and Redis, when the session cache is enabled) before
// declaring the service ready.
type HealthDependenciesHandler struct {
	cassandra *gocql.Session
	redis     *redis.Client // nil when the session cache is disabled
}

func NewHealthDependenciesHandler(session *gocql.Session, rdb *redis.Client) *HealthDependenciesHandler {
	return &HealthDependenciesHandler{
		cassandra: session,
		redis:     rdb,
	}
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

func (h *HealthDependenciesHandler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	deps := make(map[string]dependencyStatus)
	healthy := true

	// --- Cassandra trivial read ---
	if _, err := cassandra.HealthCheck(ctx, h.cassandra); err != nil {
		deps["cassandra"] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
		healthy = false
	} else {
		deps["cassandra"] = dependencyStatus{Status: "ok"}
	}

	// --- Redis ping (only when the session cache is wired) ---
	if h.redis != nil {
		if _, err := h.redis.Ping(ctx).Result(); err != nil {
			deps["redis"] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
			healthy = false
		} else {
			deps["redis"] = dependencyStatus{Status: "ok"}
		}
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, readinessResponse{
		Status:       status,
		Dependencies: deps,
	})
}
