package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/service"
	"github.com/iliyamo/dac-governance/internal/validator"
)

// VoteHandler serves /v1/vote.
type VoteHandler struct {
	Votes *service.VoteService
}

func NewVoteHandler(s *service.VoteService) *VoteHandler {
	return &VoteHandler{Votes: s}
}

// Update handles PUT /v1/vote.  All votes are written in one transaction
// or none are.  The response lists the updated votes and the elections the
// update closed.  404 when a vote is missing or not the caller's, 403 when
// the caller no longer sits on the election's DAC, 400 when an election no
// longer accepts votes.
func (h *VoteHandler) Update(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	var req validator.VoteUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	out, err := h.Votes.UpdateVotesWithValue(c.Request().Context(), u, req.VoteIDs, *req.Vote, req.Rationale)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// UpdateRationale handles PUT /v1/vote/rationale.  Rationales follow the
// vote write rules: RP votes stay editable after closure, others only while
// the election is open (400).
func (h *VoteHandler) UpdateRationale(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	var req validator.RationaleUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	votes, err := h.Votes.UpdateRationale(c.Request().Context(), u, req.VoteIDs, req.Rationale)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, votes)
}
