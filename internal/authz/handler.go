package authz

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/nexushq/nexus/internal/platform/httpx"
)

// Handler exposes the permission management API.
type Handler struct {
	logger    *slog.Logger
	catalog   *Catalog
	resolver  *Resolver
	service   *Service
	grants    GrantStore
	validator *validator.Validate
	guard     Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, catalog *Catalog, resolver *Resolver, service *Service, grants GrantStore, guard Middleware) *Handler {
	return &Handler{
		logger:    logger,
		catalog:   catalog,
		resolver:  resolver,
		service:   service,
		grants:    grants,
		validator: validator.New(),
		guard:     guard,
	}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll("users.manage_permissions"))
		r.Get("/", h.listCatalog)
		r.Post("/users/{userID}", h.grantPermission)
		r.Delete("/users/{userID}/{permission}", h.revokePermission)
	})
	// Self-or-admin is enforced in the handler, not by a permission gate,
	// so plain users can always inspect their own effective set.
	r.Get("/users/{userID}", h.userPermissions)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll("users.manage_roles"))
		r.Put("/users/{userID}/role", h.changeRole)
	})
	r.Post("/check", h.checkPermission)
}

type permissionView struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	perms := h.catalog.Permissions()
	views := make([]permissionView, len(perms))
	for i, p := range perms {
		views[i] = permissionView{Key: p.Key, Description: p.Description}
	}
	roles := make(map[string][]string)
	for _, role := range h.catalog.Roles() {
		baseline, err := h.catalog.RoleBaseline(role)
		if err != nil {
			continue
		}
		roles[role] = baseline.Keys()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"permissions": views,
		"roles":       roles,
	})
}

type grantRequest struct {
	Permission string `json:"permission" validate:"required"`
	TenantID   *int64 `json:"tenant_id"`
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, CodeUnauthenticated, "")
		return
	}
	targetID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_user_id", "")
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	grant, err := h.service.Grant(r.Context(), actor, targetID, req.Permission, req.TenantID, r.RemoteAddr)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         grant.ID,
		"user_id":    grant.UserID,
		"permission": grant.Permission,
		"tenant_id":  grant.TenantID,
	})
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, CodeUnauthenticated, "")
		return
	}
	targetID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_user_id", "")
		return
	}
	tenantID := actorTenantParam(r)
	if err := h.service.Revoke(r.Context(), actor, targetID, chi.URLParam(r, "permission"), tenantID, r.RemoteAddr); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, CodeUnauthenticated, "")
		return
	}
	targetID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_user_id", "")
		return
	}
	// Non-admin callers may only inspect themselves.
	if targetID != caller.UserID && !h.isAdmin(caller) {
		httpx.Error(w, http.StatusForbidden, CodeInsufficientPermission, "")
		return
	}
	target, err := h.resolver.users.GetIdentity(r.Context(), targetID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	// Effective set and raw grant rows are independent reads.
	var (
		effective PermissionSet
		custom    []Grant
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		set, err := h.resolver.EffectivePermissions(gctx, targetID, target.TenantID)
		if err != nil && !errors.Is(err, ErrInactiveUser) {
			return err
		}
		effective = set
		return nil
	})
	g.Go(func() error {
		rows, err := h.grants.ListGrants(gctx, targetID, target.TenantID)
		if err != nil {
			return err
		}
		custom = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		h.respondError(w, err)
		return
	}
	baseline := PermissionSet{}
	if set, err := h.catalog.RoleBaseline(target.Role); err == nil {
		baseline = set
	}
	customViews := make([]map[string]any, len(custom))
	for i, g := range custom {
		customViews[i] = map[string]any{
			"permission": g.Permission,
			"tenant_id":  g.TenantID,
			"granted_by": g.GrantedBy,
			"created_at": g.CreatedAt,
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":        target.UserID,
			"role":      target.Role,
			"tenant_id": target.TenantID,
			"active":    target.Active,
		},
		"permissions": map[string]any{
			"effective": effective.Keys(),
			"from_role": baseline.Keys(),
			"custom":    customViews,
		},
	})
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, CodeUnauthenticated, "")
		return
	}
	targetID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_user_id", "")
		return
	}
	var req changeRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := h.service.ChangeRole(r.Context(), actor, targetID, req.Role, r.RemoteAddr); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": req.Role})
}

type checkRequest struct {
	Permission string `json:"permission" validate:"required"`
	UserID     *int64 `json:"user_id"`
	TenantID   *int64 `json:"tenant_id"`
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, CodeUnauthenticated, "")
		return
	}
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	targetID := caller.UserID
	tenantID := caller.TenantID
	if req.UserID != nil {
		targetID = *req.UserID
		tenantID = req.TenantID
		if targetID != caller.UserID && !h.isAdmin(caller) {
			httpx.Error(w, http.StatusForbidden, CodeInsufficientPermission, "")
			return
		}
	}
	allowed, err := h.resolver.HasPermission(r.Context(), targetID, req.Permission, tenantID)
	if err != nil && !errors.Is(err, ErrInactiveUser) {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":        targetID,
		"permission":     req.Permission,
		"has_permission": allowed,
	})
}

func (h *Handler) isAdmin(ident Identity) bool {
	return ident.Role == RoleAdmin || h.catalog.IsSuperRole(ident.Role)
}

// respondError recovers the error taxonomy into stable caller-visible codes.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPermissionNotFound):
		httpx.Error(w, http.StatusBadRequest, "permission_not_found", "")
	case errors.Is(err, ErrRoleNotFound):
		httpx.Error(w, http.StatusBadRequest, "role_not_found", "")
	case errors.Is(err, ErrUserNotFound):
		httpx.Error(w, http.StatusNotFound, "user_not_found", "")
	case errors.Is(err, ErrInactiveUser):
		httpx.Error(w, http.StatusNotFound, "user_inactive", "")
	case errors.Is(err, ErrGrantConflict):
		httpx.Error(w, http.StatusConflict, "grant_conflict", "")
	case errors.Is(err, ErrGrantNotFound):
		httpx.Error(w, http.StatusNotFound, "grant_not_found", "")
	case errors.Is(err, ErrSelfRoleChange):
		httpx.Error(w, http.StatusBadRequest, "self_role_change_forbidden", "")
	case errors.Is(err, ErrRoleChangePrivilege):
		httpx.Error(w, http.StatusForbidden, "insufficient_privilege", "")
	case errors.Is(err, ErrStoreUnavailable):
		h.logger.Error("grant store unavailable", slog.Any("error", err))
		httpx.Error(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "")
	default:
		h.logger.Error("permission operation failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func actorTenantParam(r *http.Request) *int64 {
	raw := r.URL.Query().Get("tenant_id")
	if raw == "" {
		return nil
	}
	id, err := parseID(raw)
	if err != nil {
		return nil
	}
	return &id
}
