package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/config"
	"github.com/iliyamo/dac-governance/internal/handler"
	"github.com/iliyamo/dac-governance/internal/model"
	"github.com/iliyamo/dac-governance/internal/repository/memrepo"
	"github.com/iliyamo/dac-governance/internal/service"
	"github.com/iliyamo/dac-governance/internal/utils"
	"github.com/iliyamo/dac-governance/internal/validator"
)

const secret = "router-test"

type api struct {
	t     *testing.T
	e     *echo.Echo
	store *memrepo.Store
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := memrepo.New()
	deps := service.Deps{Store: store}
	elections := service.NewElectionService(deps)
	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 5, RefreshTTLDays: 1, BcryptCost: 4}

	e := echo.New()
	e.Validator = validator.New()
	RegisterRoutes(e, handler.NewHealthHandler(nil))
	RegisterAPI(e, Handlers{
		Auth:        handler.NewAuthHandler(cfg, store),
		Elections:   handler.NewElectionHandler(elections),
		Votes:       handler.NewVoteHandler(service.NewVoteService(deps, elections)),
		Dars:        handler.NewDarHandler(service.NewDarService(deps, elections)),
		Users:       handler.NewUserHandler(service.NewUserService(deps, elections)),
		LibraryCard: handler.NewLibraryCardHandler(service.NewLibraryCardService(deps)),
	}, Options{JWTSecret: secret, Users: store})
	return &api{t: t, e: e, store: store}
}

// do sends a request as user (0 for anonymous) and decodes a JSON
// response into out when out is non-nil.
func (a *api) do(method, path string, user uint64, body interface{}, out interface{}) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != 0 {
		tok, err := utils.NewAccessToken(secret, user, time.Minute)
		if err != nil {
			a.t.Fatal(err)
		}
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body, err)
		}
	}
	return rec.Code
}

func (a *api) expect(want int, method, path string, user uint64, body, out interface{}) {
	a.t.Helper()
	if got := a.do(method, path, user, body, out); got != want {
		a.t.Fatalf("%s %s = %d, want %d", method, path, got, want)
	}
}

func u64(v uint64) *uint64 { return &v }

func TestAccessRequestLifecycle(t *testing.T) {
	a := newAPI(t)
	const dac = 3
	a.store.PutDac(model.Dac{ID: dac, Name: "DAC"})
	ds := a.store.PutDataset(model.Dataset{Name: "cohort", DacID: dac, Active: true})
	admin := a.store.PutUser(model.User{Email: "admin@x.org", Roles: []model.UserRole{model.NewUserRole(model.RoleAdmin, nil)}})
	chair := a.store.PutUser(model.User{Email: "chair@x.org", Roles: []model.UserRole{model.NewUserRole(model.RoleChairperson, u64(dac))}})
	member := a.store.PutUser(model.User{Email: "member@x.org", Roles: []model.UserRole{model.NewUserRole(model.RoleMember, u64(dac))}})
	researcher := a.store.PutUser(model.User{Email: "r@x.org", InstitutionID: u64(5), Roles: []model.UserRole{model.NewUserRole(model.RoleResearcher, nil)}})
	outsider := a.store.PutUser(model.User{Email: "o@x.org", Roles: []model.UserRole{model.NewUserRole(model.RoleResearcher, nil)}})

	dar := map[string]interface{}{"datasetIds": []uint64{ds.ID}, "projectTitle": "cohort study"}
	a.expect(http.StatusUnauthorized, http.MethodPost, "/v1/dar", 0, dar, nil)
	a.expect(http.StatusBadRequest, http.MethodPost, "/v1/dar", researcher.ID, dar, nil)
	a.expect(http.StatusBadRequest, http.MethodPost, "/v1/dar", researcher.ID, map[string]interface{}{"datasetIds": []uint64{ds.ID}}, nil)

	card := map[string]interface{}{"userId": researcher.ID, "institutionId": 5}
	a.expect(http.StatusForbidden, http.MethodPost, "/v1/libraryCard", researcher.ID, card, nil)
	a.expect(http.StatusCreated, http.MethodPost, "/v1/libraryCard", admin.ID, card, nil)
	a.expect(http.StatusConflict, http.MethodPost, "/v1/libraryCard", admin.ID, card, nil)

	var col service.CollectionView
	a.expect(http.StatusCreated, http.MethodPost, "/v1/dar", researcher.ID, dar, &col)
	refs := col.ReferenceIDs()
	if len(refs) != 1 || col.Status != model.CollectionSubmitted {
		t.Fatalf("collection = %+v", col)
	}
	ref := refs[0]

	var list []service.CollectionView
	a.expect(http.StatusOK, http.MethodGet, "/v1/darCollection", outsider.ID, nil, &list)
	if len(list) != 0 {
		t.Errorf("outsider sees %d collections", len(list))
	}
	a.expect(http.StatusNotFound, http.MethodGet, fmt.Sprintf("/v1/darCollection/%d", col.ID), outsider.ID, nil, nil)

	a.expect(http.StatusForbidden, http.MethodPost, "/v1/election/DataAccess?referenceId="+ref, member.ID, nil, nil)
	a.expect(http.StatusBadRequest, http.MethodPost, "/v1/election/Bogus?referenceId="+ref, chair.ID, nil, nil)
	var created service.ElectionDetail
	a.expect(http.StatusCreated, http.MethodPost, "/v1/election/DataAccess?referenceId="+ref, chair.ID, nil, &created)
	a.expect(http.StatusBadRequest, http.MethodPost, "/v1/election/DataAccess?referenceId="+ref, chair.ID, nil, nil)

	idsOf := func(user uint64) []uint64 {
		var ids []uint64
		for _, v := range created.Votes {
			if v.UserID == user {
				ids = append(ids, v.ID)
			}
		}
		return ids
	}
	a.expect(http.StatusNotFound, http.MethodPut, "/v1/vote", member.ID, map[string]interface{}{"voteIds": idsOf(chair.ID), "vote": true}, nil)
	a.expect(http.StatusBadRequest, http.MethodPut, "/v1/vote", member.ID, map[string]interface{}{"voteIds": idsOf(member.ID)}, nil)

	var upd service.VoteUpdate
	a.expect(http.StatusOK, http.MethodPut, "/v1/vote", member.ID, map[string]interface{}{"voteIds": idsOf(member.ID), "vote": true}, &upd)
	if len(upd.Closed) != 0 {
		t.Fatalf("closed before the chair voted: %+v", upd.Closed)
	}
	a.expect(http.StatusOK, http.MethodPut, "/v1/vote", chair.ID, map[string]interface{}{"voteIds": idsOf(chair.ID), "vote": true, "rationale": "fine"}, &upd)
	if len(upd.Closed) != 1 || upd.Closed[0].ElectionID != created.Election.ID {
		t.Fatalf("closed = %+v", upd.Closed)
	}

	var got model.DataAccessRequest
	a.expect(http.StatusOK, http.MethodGet, "/v1/dar/"+ref, researcher.ID, nil, &got)
	if got.Data.Status != model.DarApproved {
		t.Errorf("DAR status = %s, want Approved", got.Data.Status)
	}
	var detail service.ElectionDetail
	a.expect(http.StatusOK, http.MethodGet, fmt.Sprintf("/v1/election/%d", created.Election.ID), member.ID, nil, &detail)
	if detail.Election.Status != model.ElectionClosed || detail.Election.FinalVote == nil || !*detail.Election.FinalVote {
		t.Errorf("election = %+v", detail.Election)
	}
	var elections []model.Election
	a.expect(http.StatusOK, http.MethodGet, "/v1/election?referenceId="+ref, chair.ID, nil, &elections)
	if len(elections) != 1 {
		t.Errorf("listed %d elections", len(elections))
	}
}

func TestRoleEndpoints(t *testing.T) {
	a := newAPI(t)
	a.store.PutDac(model.Dac{ID: 3, Name: "DAC"})
	admin := a.store.PutUser(model.User{Email: "admin@x.org", Roles: []model.UserRole{model.NewUserRole(model.RoleAdmin, nil)}})
	researcher := a.store.PutUser(model.User{Email: "r@x.org", Roles: []model.UserRole{model.NewUserRole(model.RoleResearcher, nil)}})

	path := func(role string) string { return fmt.Sprintf("/v1/user/%d/role/%s", researcher.ID, role) }
	a.expect(http.StatusForbidden, http.MethodPut, path("DataSubmitter"), researcher.ID, nil, nil)
	a.expect(http.StatusBadRequest, http.MethodPut, path("Wizard"), admin.ID, nil, nil)
	a.expect(http.StatusBadRequest, http.MethodPut, path("Member"), admin.ID, nil, nil)
	a.expect(http.StatusNotModified, http.MethodPut, path("Researcher"), admin.ID, nil, nil)

	var u model.User
	a.expect(http.StatusOK, http.MethodPut, path("Member")+"?dacId=3", admin.ID, nil, &u)
	if len(u.DacIDs()) != 1 {
		t.Errorf("roles = %+v", u.Roles)
	}
	a.expect(http.StatusOK, http.MethodDelete, path("Member")+"?dacId=3", admin.ID, nil, &u)
	if len(u.DacIDs()) != 0 {
		t.Errorf("roles after revoke = %+v", u.Roles)
	}
	a.expect(http.StatusNotModified, http.MethodDelete, path("Member")+"?dacId=3", admin.ID, nil, nil)

	chair := a.store.PutUser(model.User{Email: "chair@x.org", Roles: []model.UserRole{model.NewUserRole(model.RoleChairperson, u64(3))}})
	a.expect(http.StatusForbidden, http.MethodDelete, fmt.Sprintf("/v1/user/%d/role/Chairperson?dacId=3", chair.ID), admin.ID, nil, nil)
}

func TestAuthEndpoints(t *testing.T) {
	a := newAPI(t)
	reg := map[string]interface{}{"email": "New@Example.org", "password": "long-enough", "displayName": "New"}

	var resp struct {
		User    model.User `json:"user"`
		Access  struct{ Token string } `json:"access"`
		Refresh struct{ Token string } `json:"refresh"`
	}
	a.expect(http.StatusCreated, http.MethodPost, "/v1/auth/register", 0, reg, &resp)
	if resp.User.Email != "new@example.org" || !resp.User.HasRole(model.RoleResearcher) {
		t.Errorf("registered user = %+v", resp.User)
	}
	a.expect(http.StatusConflict, http.MethodPost, "/v1/auth/register", 0, reg, nil)
	a.expect(http.StatusBadRequest, http.MethodPost, "/v1/auth/register", 0, map[string]string{"email": "x@y.org", "password": "short"}, nil)

	a.expect(http.StatusUnauthorized, http.MethodPost, "/v1/auth/login", 0, map[string]string{"email": "new@example.org", "password": "wrong-password"}, nil)
	a.expect(http.StatusOK, http.MethodPost, "/v1/auth/login", 0, map[string]string{"email": "new@example.org", "password": "long-enough"}, &resp)

	old := resp.Refresh.Token
	a.expect(http.StatusOK, http.MethodPost, "/v1/auth/refresh", 0, map[string]string{"refresh_token": old}, &resp)
	a.expect(http.StatusUnauthorized, http.MethodPost, "/v1/auth/refresh", 0, map[string]string{"refresh_token": old}, nil)
	a.expect(http.StatusNoContent, http.MethodPost, "/v1/auth/logout", 0, map[string]string{"refresh_token": resp.Refresh.Token}, nil)

	var me model.User
	a.expect(http.StatusOK, http.MethodGet, "/v1/me", resp.User.ID, nil, &me)
	if me.ID != resp.User.ID {
		t.Errorf("me = %+v", me)
	}
	a.expect(http.StatusOK, http.MethodGet, "/healthz", 0, nil, nil)
}
