package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/service"
	"github.com/iliyamo/dac-governance/internal/validator"
)

// LibraryCardHandler serves /v1/libraryCard.
type LibraryCardHandler struct {
	Cards *service.LibraryCardService
}

func NewLibraryCardHandler(s *service.LibraryCardService) *LibraryCardHandler {
	return &LibraryCardHandler{Cards: s}
}

// List handles GET /v1/libraryCard?userId=.  Without userId it lists the
// caller's cards.
func (h *LibraryCardHandler) List(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	userID := u.ID
	if q := c.QueryParam("userId"); q != "" {
		if userID, err = strconv.ParseUint(q, 10, 64); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid userId")
		}
	}
	cards, err := h.Cards.List(c.Request().Context(), u, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cards)
}

// Create handles POST /v1/libraryCard.  Signing officials issue cards for
// users of their own institution only; anything else is 403.  409 when the
// user already holds a card for the institution.
func (h *LibraryCardHandler) Create(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	var req validator.LibraryCardRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	card, err := h.Cards.Create(c.Request().Context(), u, req.UserID, req.InstitutionID, req.EraCommonsID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, card)
}

// Delete handles DELETE /v1/libraryCard/:id.  204 on success, 404 or 403.
func (h *LibraryCardHandler) Delete(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.Cards.Delete(c.Request().Context(), u, id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
