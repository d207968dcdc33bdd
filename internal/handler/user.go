package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/service"
	"github.com/iliyamo/dac-governance/internal/validator"
)

// UserHandler serves /v1/user/:userId/role/:role.
type UserHandler struct {
	Users *service.UserService
}

func NewUserHandler(s *service.UserService) *UserHandler {
	return &UserHandler{Users: s}
}

// AddRole handles PUT /v1/user/:userId/role/:role?dacId=.  It returns 200
// with the updated user, 304 when the role is already held, 403 when the
// caller may not grant it and 400 for an unknown role or a DAC role
// without dacId.  Granting a DAC role adds the user's votes to that DAC's
// open elections in the same transaction.
func (h *UserHandler) AddRole(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	var p validator.RoleParams
	if err := bindParams(c, &p); err != nil {
		return err
	}
	updated, err := h.Users.AddRole(c.Request().Context(), u, p.UserID, p.Role, p.DacID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// RemoveRole handles DELETE /v1/user/:userId/role/:role?dacId=.  As AddRole,
// with 304 when the role is not held and 403 when it would leave a DAC
// without a chairperson.  The user's pending votes in the DAC's open
// elections are removed, which may close them.
func (h *UserHandler) RemoveRole(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	var p validator.RoleParams
	if err := bindParams(c, &p); err != nil {
		return err
	}
	updated, err := h.Users.RemoveRole(c.Request().Context(), u, p.UserID, p.Role, p.DacID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}
