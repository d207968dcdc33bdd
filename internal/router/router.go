// Package router registers the HTTP routes and their middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/handler"
	"github.com/iliyamo/dac-governance/internal/middleware"
	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository"
)

// Handlers are the endpoint groups of the API.
type Handlers struct {
	Auth        *handler.AuthHandler
	Elections   *handler.ElectionHandler
	Votes       *handler.VoteHandler
	Dars        *handler.DarHandler
	Users       *handler.UserHandler
	LibraryCard *handler.LibraryCardHandler
}

// Options carry the shared middleware inputs.  A nil middleware disables
// it.  Invalidate runs on every protected route and must accompany Cache.
type Options struct {
	JWTSecret  string
	Users      repository.UserStore
	Cache      echo.MiddlewareFunc
	Invalidate echo.MiddlewareFunc
	RateLimit  echo.MiddlewareFunc
}

// RegisterRoutes installs the error renderer and the unauthenticated
// health checks: /healthz for liveness and /readyz for database readiness.
func RegisterRoutes(e *echo.Echo, health *handler.HealthHandler) {
	e.HTTPErrorHandler = handler.ErrorHandler
	e.GET("/healthz", health.Live)
	e.GET("/readyz", health.Ready)
}

// RegisterAPI registers /v1/auth and the protected /v1 routes.  Protected
// routes authenticate the bearer token, load the caller with its roles and
// then apply the rate limit, so limits are per user.
func RegisterAPI(e *echo.Echo, h Handlers, opts Options) {
	limit := orNoop(opts.RateLimit)
	cache := orNoop(opts.Cache)

	a := e.Group("/v1/auth", limit)
	a.POST("/register", h.Auth.Register)
	a.POST("/login", h.Auth.Login)
	a.POST("/refresh", h.Auth.Refresh)
	a.POST("/logout", h.Auth.Logout)

	v1 := e.Group("/v1", middleware.JWTAuth(opts.JWTSecret), middleware.LoadUser(opts.Users), limit, orNoop(opts.Invalidate))
	v1.GET("/me", h.Auth.Me)

	v1.POST("/election/:type", h.Elections.Create, middleware.RequireRole(model.RoleAdmin, model.RoleChairperson))
	v1.GET("/election", h.Elections.List, cache)
	v1.GET("/election/:id", h.Elections.Get)
	v1.DELETE("/election/:referenceId/:electionId", h.Elections.Delete, middleware.RequireRole(model.RoleAdmin, model.RoleChairperson))

	v1.PUT("/vote", h.Votes.Update)
	v1.PUT("/vote/rationale", h.Votes.UpdateRationale)

	v1.POST("/dar", h.Dars.Submit)
	v1.POST("/dar/draft", h.Dars.SaveDraft)
	v1.GET("/dar/:referenceId", h.Dars.Get)

	v1.GET("/darCollection", h.Dars.ListCollections, cache)
	v1.GET("/darCollection/:id", h.Dars.GetCollection)
	v1.POST("/darCollection/:id/cancel", h.Dars.Cancel)
	v1.POST("/darCollection/:id/resubmit", h.Dars.Resubmit)
	v1.POST("/darCollection/:id/election", h.Dars.CreateElections, middleware.RequireRole(model.RoleAdmin, model.RoleChairperson))

	roles := middleware.RequireRole(model.RoleAdmin, model.RoleSigningOfficial)
	v1.PUT("/user/:userId/role/:role", h.Users.AddRole, roles)
	v1.DELETE("/user/:userId/role/:role", h.Users.RemoveRole, roles)

	v1.GET("/libraryCard", h.LibraryCard.List)
	v1.POST("/libraryCard", h.LibraryCard.Create, roles)
	v1.DELETE("/libraryCard/:id", h.LibraryCard.Delete, roles)
}

func orNoop(m echo.MiddlewareFunc) echo.MiddlewareFunc {
	if m == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return m
}
