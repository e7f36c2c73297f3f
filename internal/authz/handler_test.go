package authz

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPermissionsRouter(t *testing.T, dir *stubDirectory, store *stubGrantStore, sink *recordingSink, actor Identity) http.Handler {
	t.Helper()
	catalog := testCatalog(t)
	resolver := NewResolver(catalog, dir, store)
	guard := Middleware{Resolver: resolver, Sink: sink, Logger: slog.Default()}
	service := NewService(catalog, resolver, dir, store, sink, slog.Default())
	handler := NewHandler(slog.Default(), catalog, resolver, service, store, guard)

	r := chi.NewRouter()
	r.Use(identityInjector(actor))
	r.Route("/permissions", handler.MountRoutes)
	return r
}

func adminIdentity() Identity {
	return Identity{UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true}
}

func adminDirectory() *stubDirectory {
	return &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
		2: {UserID: 2, Role: RoleUser, TenantID: ptr(1), Active: true},
	}}
}

func TestListCatalog(t *testing.T) {
	router := newPermissionsRouter(t, adminDirectory(), &stubGrantStore{}, &recordingSink{}, adminIdentity())

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/permissions/", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Permissions []struct {
			Key         string `json:"key"`
			Description string `json:"description"`
		} `json:"permissions"`
		Roles map[string][]string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Permissions)
	assert.Contains(t, body.Roles, RoleSuperAdmin)
	assert.Contains(t, body.Roles, RoleViewer)
}

func TestGrantEndpoint(t *testing.T) {
	store := &stubGrantStore{}
	sink := &recordingSink{}
	router := newPermissionsRouter(t, adminDirectory(), store, sink, adminIdentity())

	req := httptest.NewRequest(http.MethodPost, "/permissions/users/2",
		strings.NewReader(`{"permission":"reports.export","tenant_id":1}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	assert.Len(t, store.grants, 1)
	assert.Len(t, sink.entries, 1)
}

func TestGrantEndpointUnknownPermission(t *testing.T) {
	router := newPermissionsRouter(t, adminDirectory(), &stubGrantStore{}, &recordingSink{}, adminIdentity())

	req := httptest.NewRequest(http.MethodPost, "/permissions/users/2",
		strings.NewReader(`{"permission":"nope.nothing"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "permission_not_found", body.Error)
}

func TestGrantEndpointConflict(t *testing.T) {
	store := &stubGrantStore{grants: []Grant{
		{ID: 1, UserID: 2, Permission: "reports.export", TenantID: ptr(1)},
	}}
	router := newPermissionsRouter(t, adminDirectory(), store, &recordingSink{}, adminIdentity())

	req := httptest.NewRequest(http.MethodPost, "/permissions/users/2",
		strings.NewReader(`{"permission":"reports.export","tenant_id":1}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestRevokeEndpointNotFound(t *testing.T) {
	router := newPermissionsRouter(t, adminDirectory(), &stubGrantStore{}, &recordingSink{}, adminIdentity())

	req := httptest.NewRequest(http.MethodDelete, "/permissions/users/2/chat.send?tenant_id=1", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusNotFound, res.Code)
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "grant_not_found", body.Error)
}

func TestUserPermissionsSelfView(t *testing.T) {
	dir := adminDirectory()
	store := &stubGrantStore{grants: []Grant{
		{ID: 1, UserID: 2, Permission: "reports.export", TenantID: ptr(1), GrantedBy: 1},
	}}
	// Plain user inspecting themselves.
	router := newPermissionsRouter(t, dir, store, &recordingSink{}, dir.identities[2])

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/permissions/users/2", nil))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var body struct {
		Permissions struct {
			Effective []string `json:"effective"`
			FromRole  []string `json:"from_role"`
			Custom    []struct {
				Permission string `json:"permission"`
			} `json:"custom"`
		} `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Contains(t, body.Permissions.Effective, "reports.export")
	assert.Contains(t, body.Permissions.FromRole, "chat.send")
	require.Len(t, body.Permissions.Custom, 1)
	assert.Equal(t, "reports.export", body.Permissions.Custom[0].Permission)
}

func TestUserPermissionsForeignUserForbiddenForNonAdmin(t *testing.T) {
	dir := adminDirectory()
	router := newPermissionsRouter(t, dir, &stubGrantStore{}, &recordingSink{}, dir.identities[2])

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/permissions/users/1", nil))
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestChangeRoleEndpoint(t *testing.T) {
	dir := adminDirectory()
	sink := &recordingSink{}
	router := newPermissionsRouter(t, dir, &stubGrantStore{}, sink, adminIdentity())

	req := httptest.NewRequest(http.MethodPut, "/permissions/users/2/role",
		strings.NewReader(`{"role":"manager"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, RoleManager, dir.identities[2].Role)
	assert.Len(t, sink.entries, 1)
}

func TestCheckEndpointSelf(t *testing.T) {
	dir := adminDirectory()
	sink := &recordingSink{}
	router := newPermissionsRouter(t, dir, &stubGrantStore{}, sink, dir.identities[2])

	req := httptest.NewRequest(http.MethodPost, "/permissions/check",
		strings.NewReader(`{"permission":"chat.send"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		UserID        int64  `json:"user_id"`
		Permission    string `json:"permission"`
		HasPermission bool   `json:"has_permission"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, int64(2), body.UserID)
	assert.True(t, body.HasPermission)
	assert.Empty(t, sink.entries, "checks are not audited")
}

func TestCheckEndpointOtherUserRequiresAdmin(t *testing.T) {
	dir := adminDirectory()
	router := newPermissionsRouter(t, dir, &stubGrantStore{}, &recordingSink{}, dir.identities[2])

	req := httptest.NewRequest(http.MethodPost, "/permissions/check",
		strings.NewReader(`{"permission":"chat.send","user_id":1}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusForbidden, res.Code)
}
