package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"obligation-service/internal/apperr"
	"obligation-service/internal/audit"
	"obligation-service/internal/model"
)

// ActivityHandler serves /api/activity.
type ActivityHandler struct {
	activity *audit.Service
}

// NewActivityHandler creates an ActivityHandler.
func NewActivityHandler(activity *audit.Service) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// ListActivity handles GET /api/activity?entity_type=&entity_id=&limit=
func (h *ActivityHandler) ListActivity(c echo.Context) error {
	f := audit.Filter{
		EntityType: model.EntityType(c.QueryParam("entity_type")),
		EntityID:   c.QueryParam("entity_id"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return apperr.Validation("limit must be a positive integer")
		}
		f.Limit = limit
	}

	entries, err := h.activity.ListActivity(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}
