package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"obligation-service/pkg/logger"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	service string
	ping    func(ctx context.Context) error
}

// NewHealthHandler creates a HealthHandler. ping checks the database.
func NewHealthHandler(service string, ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{service: service, ping: ping}
}

// HealthCheck handles the health check endpoint
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": h.service,
	})
}

// Ready handles the readiness endpoint
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.ping(ctx); err != nil {
		logger.FromEcho(c).Warn("Readiness check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":  "unavailable",
			"service": h.service,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "ready",
		"service": h.service,
	})
}
