package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/config"
	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository"
	"github.com/iliyamo/dac-governance/internal/utils"
	"github.com/iliyamo/dac-governance/internal/validator"
)

// AuthStore is the part of the store the auth endpoints use.
type AuthStore interface {
	repository.UserStore
	repository.TokenStore
}

// AuthHandler serves registration, login and token refresh.
type AuthHandler struct {
	Cfg   config.Config
	Store AuthStore
}

func NewAuthHandler(cfg config.Config, st AuthStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Store: st}
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User    model.User `json:"user"`
	Access  tokenPart  `json:"access"`
	Refresh tokenPart  `json:"refresh"`
}

// Register creates a Researcher account and returns tokens immediately:
// 201, 400 for a short password, 409 when the email is taken.
func (h *AuthHandler) Register(c echo.Context) error {
	var req validator.RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if errors.Is(err, utils.ErrWeakPassword) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash password failed"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u := model.User{
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		DisplayName:   strings.TrimSpace(req.DisplayName),
		InstitutionID: req.InstitutionID,
		Roles:         []model.UserRole{model.NewUserRole(model.RoleResearcher, nil)},
	}
	if err := h.Store.CreateUser(ctx, &u, hash); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	return h.issue(c, ctx, http.StatusCreated, u)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req validator.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, hash, err := h.Store.GetUserCredentials(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(hash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.issue(c, ctx, http.StatusOK, u)
}

// Refresh validates a refresh token by hash, revokes it and issues a new
// pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req validator.RefreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Store.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err := h.Store.RevokeRefresh(ctx, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke refresh failed"})
	}
	u, err := h.Store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return h.issue(c, ctx, http.StatusOK, u)
}

// Logout revokes the given refresh token.  204, or 401 when it is unknown.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req validator.RefreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Store.ValidateRefresh(ctx, hash); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	if err := h.Store.RevokeRefresh(ctx, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user with its roles.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := actor(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *AuthHandler) issue(c echo.Context, ctx context.Context, status int, u model.User) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, time.Duration(h.Cfg.AccessTTLMin)*time.Minute)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}
	if err := h.Store.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}
	return c.JSON(status, authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	})
}
