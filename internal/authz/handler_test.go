package authz

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/warden-authz/warden/internal/catalog"
)

type recordingDecisions struct {
	guards   []string
	outcomes []bool
}

func (r *recordingDecisions) RecordDecision(guard string, allowed bool) {
	r.guards = append(r.guards, guard)
	r.outcomes = append(r.outcomes, allowed)
}

func newTestRouter(t *testing.T, cat *fakeCatalog, decisions DecisionRecorder) chi.Router {
	t.Helper()
	engine := NewEngine(cat, &fakeIdentity{memberships: map[int64][]int64{1: {10}}}, nil, "")
	handler := NewHandler(nil, engine, decisions)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCheckEndpoint(t *testing.T) {
	cat := newFakeCatalog()
	cat.permissions[1] = []string{"view_post"}
	decisions := &recordingDecisions{}
	router := newTestRouter(t, cat, decisions)

	rr := postJSON(t, router, "/check", map[string]any{
		"principal_id": 1, "permission": "view_post", "guard": "web",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Allowed)

	rr = postJSON(t, router, "/check", map[string]any{
		"principal_id": 1, "permission": "delete_post", "guard": "web",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.False(t, resp.Allowed)

	require.Equal(t, []string{"web", "web"}, decisions.guards)
	require.Equal(t, []bool{true, false}, decisions.outcomes)
}

func TestCheckEndpointResourceScoped(t *testing.T) {
	cat := newFakeCatalog()
	cat.roles[3] = catalog.Role{ID: 3, Name: catalog.RoleAuthenticated, GuardName: catalog.GuardWeb, IsDefault: true}
	cat.permissions[1] = []string{"delete_role"}
	router := newTestRouter(t, cat, nil)

	rr := postJSON(t, router, "/check", map[string]any{
		"principal_id": 1, "permission": "delete_role", "guard": "web",
		"resource": map[string]any{"kind": "role", "id": 3},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.False(t, resp.Allowed)
}

func TestCheckEndpointValidation(t *testing.T) {
	router := newTestRouter(t, newFakeCatalog(), nil)

	rr := postJSON(t, router, "/check", map[string]any{
		"principal_id": 0, "permission": "view_post", "guard": "web",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postJSON(t, router, "/check", map[string]any{
		"principal_id": 1, "permission": "view_post", "guard": "web",
		"resource": map[string]any{"kind": "gadget", "id": 3},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewReader([]byte("{not json")))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckTenantEndpoint(t *testing.T) {
	router := newTestRouter(t, newFakeCatalog(), nil)

	rr := postJSON(t, router, "/check-tenant", map[string]any{
		"principal_id": 1, "workspace_id": 10,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Allowed)

	rr = postJSON(t, router, "/check-tenant", map[string]any{
		"principal_id": 1, "workspace_id": 11,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.False(t, resp.Allowed)
}
