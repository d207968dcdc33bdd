package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository"
)

const contextActor = "actor"

// LoadUser reads the authenticated user, with its roles, from the store.
// It must run after JWTAuth.  Tokens of deleted users are rejected.
func LoadUser(users repository.UserStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := c.Get(ContextUserID).(uint64)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			u, err := users.GetUser(c.Request().Context(), id)
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown user"})
			}
			if err != nil {
				c.Logger().Errorf("load user %d: %v", id, err)
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
			}
			c.Set(contextActor, u)
			return next(c)
		}
	}
}

// Actor returns the user stored by LoadUser.
func Actor(c echo.Context) (model.User, bool) {
	u, ok := c.Get(contextActor).(model.User)
	return u, ok
}

// userKey identifies the caller in cache and rate limit keys.
func userKey(c echo.Context) string {
	if id, ok := c.Get(ContextUserID).(uint64); ok && id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
