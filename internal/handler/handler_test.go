package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/repository"
	"github.com/iliyamo/dac-governance/internal/service"
)

func TestFail(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"not found", repository.ErrNotFound, http.StatusNotFound, "not found"},
		{"conflict", fmt.Errorf("insert: %w", repository.ErrConflict), http.StatusConflict, "conflict"},
		{"not modified", &service.Error{Kind: service.KindNotModified, Msg: "held"}, http.StatusNotModified, ""},
		{"forbidden", &service.Error{Kind: service.KindForbidden, Msg: "no"}, http.StatusForbidden, `"no"`},
		{"internal hides cause", errors.New("dial tcp 10.0.0.1: refused"), http.StatusInternalServerError, `"internal"`},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			if err := fail(c, tt.err); err != nil {
				t.Fatal(err)
			}
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("body = %q, want it to contain %q", rec.Body, tt.body)
			}
			if strings.Contains(rec.Body.String(), "10.0.0.1") {
				t.Errorf("body leaks cause: %q", rec.Body)
			}
		})
	}
}

func TestErrorHandler(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	ErrorHandler(echo.NewHTTPError(http.StatusBadRequest, "invalid body"), c)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"error":"invalid body"`) {
		t.Errorf("got %d %q", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	ErrorHandler(echo.ErrMethodNotAllowed, c)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}
