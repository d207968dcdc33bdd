package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/config"
	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository/memrepo"
	"github.com/iliyamo/dac-governance/internal/utils"
)

const secret = "test-secret"

func TestAuthChain(t *testing.T) {
	store := memrepo.New()
	admin := store.PutUser(model.User{Email: "a@example.org", Roles: []model.UserRole{model.NewUserRole(model.RoleAdmin, nil)}})
	researcher := store.PutUser(model.User{Email: "r@example.org", Roles: []model.UserRole{model.NewUserRole(model.RoleResearcher, nil)}})

	e := echo.New()
	g := e.Group("", JWTAuth(secret), LoadUser(store))
	g.GET("/me", func(c echo.Context) error {
		u, _ := Actor(c)
		return c.String(http.StatusOK, u.Email)
	})
	g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RequireRole(model.RoleAdmin))

	bearer := func(id uint64) string {
		tok, err := utils.NewAccessToken(secret, id, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + tok.Token
	}
	tests := []struct {
		name   string
		path   string
		auth   string
		status int
		body   string
	}{
		{"no token", "/me", "", http.StatusUnauthorized, ""},
		{"garbage token", "/me", "Bearer nope", http.StatusUnauthorized, ""},
		{"unknown user", "/me", bearer(999), http.StatusUnauthorized, ""},
		{"loads user", "/me", bearer(researcher.ID), http.StatusOK, "r@example.org"},
		{"role missing", "/admin", bearer(researcher.ID), http.StatusForbidden, ""},
		{"role held", "/admin", bearer(admin.ID), http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.auth)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body, tt.body)
			}
		})
	}
}

func TestCacheKeysArePerUser(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "dac:cache"}
	key := func(user uint64) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/darCollection?role=Admin", nil), httptest.NewRecorder())
		c.SetPath("/v1/darCollection")
		if user != 0 {
			c.Set(ContextUserID, user)
		}
		return cacheKeyFrom(cfg, c, "3")
	}
	if key(1) == key(2) || key(1) != key(1) || key(0) == key(1) {
		t.Errorf("cache keys not per user: %s %s %s", key(0), key(1), key(2))
	}
	if !strings.HasPrefix(key(1), "dac:cache:") {
		t.Errorf("key %q lacks prefix", key(1))
	}
}

func TestCacheKeysChangeWithGeneration(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "dac:cache"}
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/election?referenceId=DAR-1", nil), httptest.NewRecorder())
	c.SetPath("/v1/election")
	c.Set(ContextUserID, uint64(4))
	before, after := cacheKeyFrom(cfg, c, ""), cacheKeyFrom(cfg, c, "1")
	if before == after {
		t.Fatalf("write generation not part of key %q", before)
	}
	if generationKey(cfg) == before || !strings.HasPrefix(generationKey(cfg), cfg.Prefix) {
		t.Errorf("generation key %q", generationKey(cfg))
	}
}

func TestBumpsGeneration(t *testing.T) {
	cfg := config.CacheConfig{Methods: map[string]bool{http.MethodGet: true}}
	cases := []struct {
		name   string
		method string
		status int
		err    error
		want   bool
	}{
		{"cached read", http.MethodGet, http.StatusOK, nil, false},
		{"vote update", http.MethodPut, http.StatusOK, nil, true},
		{"created", http.MethodPost, http.StatusCreated, nil, true},
		{"delete", "delete", http.StatusNoContent, nil, true},
		{"rejected", http.MethodPost, http.StatusBadRequest, nil, false},
		{"handler error", http.MethodPut, http.StatusOK, errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := bumpsGeneration(cfg, tc.method, tc.status, tc.err); got != tc.want {
				t.Errorf("bumpsGeneration = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCacheInvalidatorDisabledPassesThrough(t *testing.T) {
	e := echo.New()
	mw := NewCacheInvalidator(config.CacheConfig{Enabled: false}, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/v1/dac", nil), rec)
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusCreated) })(c)
	if err != nil || rec.Code != http.StatusCreated {
		t.Fatalf("got %d, %v", rec.Code, err)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	if err != nil {
		t.Fatal(err)
	}
	status, got, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"ok":true}` {
		t.Errorf("decodePayload() = %d %v %q %v", status, got, body, ok)
	}
	if _, _, _, ok := decodePayload(bs[:5]); ok {
		t.Error("short payload decoded")
	}
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPut, "/v1/vote", nil), httptest.NewRecorder())
	c.SetPath("/v1/vote")
	c.Set(ContextUserID, uint64(7))
	got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}, c)
	if got != "rl:user:7:route:PUT /v1/vote" {
		t.Errorf("buildRateKey() = %q", got)
	}
}
