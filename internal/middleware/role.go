package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/model"
)

// RequireRole rejects callers that hold none of roles, under any scope.
// It only gates routes coarsely; the services make the scoped decision.
func RequireRole(roles ...model.RoleName) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := Actor(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			for _, r := range roles {
				if u.HasRole(r) {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
}
