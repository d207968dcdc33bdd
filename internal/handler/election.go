package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/service"
	"github.com/iliyamo/dac-governance/internal/validator"
)

// ElectionHandler serves /v1/election.
type ElectionHandler struct {
	Elections *service.ElectionService
}

func NewElectionHandler(s *service.ElectionService) *ElectionHandler {
	return &ElectionHandler{Elections: s}
}

// Create handles POST /v1/election/:type?referenceId=&datasetId=.  A
// missing datasetId opens one election over every dataset of the request.
func (h *ElectionHandler) Create(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	var p validator.ElectionParams
	if err := bindParams(c, &p); err != nil {
		return err
	}
	typ, _ := model.ParseElectionType(p.Type)
	d, err := h.Elections.CreateElection(c.Request().Context(), u, typ, p.ReferenceID, p.DatasetID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

// Get handles GET /v1/election/:id.  Returns 200 with the election and its
// votes, or 404 when it is missing or outside the caller's DACs.
func (h *ElectionHandler) Get(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	d, err := h.Elections.GetElection(c.Request().Context(), u, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// List handles GET /v1/election?referenceId=.  Only elections the caller
// may view are returned.  400 without referenceId.
func (h *ElectionHandler) List(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	ref := c.QueryParam("referenceId")
	if ref == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "referenceId is required")
	}
	list, err := h.Elections.ListElectionsForReference(c.Request().Context(), u, ref)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Delete handles DELETE /v1/election/:referenceId/:electionId.  It returns
// 204 once the election and its votes are gone, 404 when no such election
// exists for the reference, 403 when the caller does not chair its DAC and
// 400 when it is already closed.
func (h *ElectionHandler) Delete(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "electionId")
	if err != nil {
		return err
	}
	if err := h.Elections.DeleteElection(c.Request().Context(), u, c.Param("referenceId"), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
