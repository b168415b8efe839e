package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"obligation-service/internal/party"
)

// PartyRequest is the body of party create and update requests. Omitted
// fields are left unchanged on update.
type PartyRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// PartyHandler serves /api/parties.
type PartyHandler struct {
	parties *party.Service
}

// NewPartyHandler creates a PartyHandler.
func NewPartyHandler(parties *party.Service) *PartyHandler {
	return &PartyHandler{parties: parties}
}

// ListParties handles GET /api/parties
func (h *PartyHandler) ListParties(c echo.Context) error {
	parties, err := h.parties.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, parties)
}

// GetParty handles GET /api/parties/:id
func (h *PartyHandler) GetParty(c echo.Context) error {
	p, err := h.parties.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// CreateParty handles POST /api/parties
func (h *PartyHandler) CreateParty(c echo.Context) error {
	var req PartyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := h.parties.Create(c.Request().Context(), party.Input(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

// UpdateParty handles PATCH /api/parties/:id
func (h *PartyHandler) UpdateParty(c echo.Context) error {
	var req PartyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := h.parties.Update(c.Request().Context(), c.Param("id"), party.Input(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// DeleteParty handles DELETE /api/parties/:id
func (h *PartyHandler) DeleteParty(c echo.Context) error {
	if err := h.parties.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
