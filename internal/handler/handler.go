// Package handler maps HTTP requests onto the services.  Handlers bind and
// validate input, call one service operation and translate its error kind
// into a status code.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/middleware"
	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/service"
)

// ErrorHandler renders errors returned by handlers and middleware as
// {"error": message}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, msg := http.StatusInternalServerError, "internal"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	} else {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, echo.Map{"error": msg})
	}
	if err != nil {
		c.Logger().Error(err)
	}
}

var statusOf = map[service.Kind]int{
	service.KindInternal:    http.StatusInternalServerError,
	service.KindNotFound:    http.StatusNotFound,
	service.KindBadRequest:  http.StatusBadRequest,
	service.KindForbidden:   http.StatusForbidden,
	service.KindConflict:    http.StatusConflict,
	service.KindNotModified: http.StatusNotModified,
}

// fail writes the response for a service error.  Internal causes are
// logged, never sent.
func fail(c echo.Context, err error) error {
	kind := service.KindOf(err)
	switch kind {
	case service.KindNotModified:
		return c.NoContent(http.StatusNotModified)
	case service.KindInternal:
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(statusOf[kind], echo.Map{"error": service.Message(err)})
}

// bind decodes the body into req and validates it.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return validate(c, req)
}

// bindParams binds path and query parameters, whatever the method, and
// validates them.
func bindParams(c echo.Context, dst interface{}) error {
	b := &echo.DefaultBinder{}
	if err := b.BindPathParams(c, dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid path parameter")
	}
	if err := b.BindQueryParams(c, dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameter")
	}
	return validate(c, dst)
}

func validate(c echo.Context, v interface{}) error {
	if err := c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func idParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// actor returns the user loaded by middleware.LoadUser.
func actor(c echo.Context) (model.User, error) {
	u, ok := middleware.Actor(c)
	if !ok {
		return model.User{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	return u, nil
}
