package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/service"
	"github.com/iliyamo/dac-governance/internal/validator"
)

// DarHandler serves /v1/dar and /v1/darCollection.
type DarHandler struct {
	Dars *service.DarService
}

func NewDarHandler(s *service.DarService) *DarHandler {
	return &DarHandler{Dars: s}
}

func darInput(req validator.DarRequest) service.DarInput {
	return service.DarInput{
		ReferenceID:  req.ReferenceID,
		DatasetIDs:   req.DatasetIDs,
		ProjectTitle: req.ProjectTitle,
		Rationale:    req.Rationale,
	}
}

// Submit handles POST /v1/dar.  It submits the caller's request, a new one
// or an existing draft named by referenceId, inside a fresh collection and
// returns 201 with the collection.  It returns 400 when the caller holds
// no library card, a dataset is unknown or inactive, or the draft already
// belongs to a collection, and 404 when the named draft is not the caller's.
func (h *DarHandler) Submit(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	var req validator.DarRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	col, err := h.Dars.Submit(c.Request().Context(), u, darInput(req))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, col)
}

// SaveDraft handles POST /v1/dar/draft.  Without referenceId it creates a
// draft and returns 201; with one it replaces that draft's data and returns
// 200.  404 when the draft is missing or someone else's, 400 when it is no
// longer a draft.
func (h *DarHandler) SaveDraft(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	var req validator.DarRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	dar, err := h.Dars.SaveDraft(c.Request().Context(), u, darInput(req))
	if err != nil {
		return fail(c, err)
	}
	status := http.StatusOK
	if req.ReferenceID == "" {
		status = http.StatusCreated
	}
	return c.JSON(status, dar)
}

// Get handles GET /v1/dar/:referenceId.  Requests the caller may not see
// answer 404 like missing ones.
func (h *DarHandler) Get(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	dar, err := h.Dars.GetDar(c.Request().Context(), u, c.Param("referenceId"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dar)
}

// ListCollections handles GET /v1/darCollection?role=.  The role selects
// the caller's point of view and must be one the caller holds (400
// otherwise).  Always 200, with an empty array when nothing is visible.
func (h *DarHandler) ListCollections(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	list, err := h.Dars.ListCollections(c.Request().Context(), u, c.QueryParam("role"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// GetCollection handles GET /v1/darCollection/:id.
func (h *DarHandler) GetCollection(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	col, err := h.Dars.GetCollection(c.Request().Context(), u, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, col)
}

// Cancel handles POST /v1/darCollection/:id/cancel?role=.  Researchers
// cancel their own collections and Admins any; a Chairperson cancels the
// open elections touching their DACs.  Returns 200 with the collection,
// 404 when it is missing or invisible, 403 when visible but not theirs to
// cancel and 400 when already canceled.  Everything runs in one
// transaction.
func (h *DarHandler) Cancel(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	col, err := h.Dars.Cancel(c.Request().Context(), u, id, c.QueryParam("role"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, col)
}

// Resubmit handles POST /v1/darCollection/:id/resubmit.  It copies a
// canceled collection's request into a new draft and returns 201 with it;
// 400 when the collection is not canceled, 404 when it is not the caller's.
func (h *DarHandler) Resubmit(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	draft, err := h.Dars.Resubmit(c.Request().Context(), u, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, draft)
}

// CreateElections handles POST /v1/darCollection/:id/election.  It opens a
// DataAccess election and, when an RP vote is wanted, an RP election per
// dataset the caller may govern.  201 with the created elections, 400 when
// none could be opened, 403/404 as for Cancel.
func (h *DarHandler) CreateElections(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	created, err := h.Dars.CreateElectionsForCollection(c.Request().Context(), u, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}
