package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a backing database answers.  *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness checks used by load
// balancers and orchestrators.
type HealthHandler struct {
	DB Pinger
}

// NewHealthHandler returns health checks over db.  A nil db (the in-memory store)
// is always ready.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{DB: db}
}

// Live answers 200 "ok" for as long as the process serves HTTP.
func (h *HealthHandler) Live(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready answers 200 "ready" when the database answers a ping within two
// seconds and 503 {"error": "database unavailable"} when it does not.
func (h *HealthHandler) Ready(c echo.Context) error {
	if h.DB == nil {
		return c.String(http.StatusOK, "ready")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		c.Logger().Errorf("readiness ping: %v", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
	}
	return c.String(http.StatusOK, "ready")
}
