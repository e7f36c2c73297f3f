package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nexushq/nexus/internal/audit"
	"github.com/nexushq/nexus/internal/observability"
	"github.com/nexushq/nexus/internal/platform/httpx"
)

// Machine-readable error codes exposed to HTTP callers. Internal taxonomy
// errors are always recovered into one of these before leaving the guard.
const (
	CodeUnauthenticated        = "unauthenticated"
	CodeInsufficientPermission = "insufficient_permission"
	CodeTenantScopeViolation   = "tenant_scope_violation"
	CodeStoreUnavailable       = "store_unavailable"
)

// Middleware guards HTTP routes with permission checks. Denials append
// exactly one audit entry; successful checks append nothing.
type Middleware struct {
	Resolver *Resolver
	Sink     audit.Sink
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// RequireAll ensures the caller holds every listed permission in their own
// tenant context.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			ident, ok := m.authenticate(w, r)
			if !ok {
				return
			}
			for _, perm := range normalized {
				allowed, err := m.resolve(r.Context(), ident, perm)
				if err != nil {
					m.fail(w, r, err)
					return
				}
				if !allowed {
					m.deny(w, r, ident, normalized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the caller holds at least one of the listed permissions
// in their own tenant context.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			ident, ok := m.authenticate(w, r)
			if !ok {
				return
			}
			for _, perm := range normalized {
				allowed, err := m.resolve(r.Context(), ident, perm)
				if err != nil {
					m.fail(w, r, err)
					return
				}
				if allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w, r, ident, normalized)
		})
	}
}

// RequireTenantScope derives the caller's tenant scope and attaches it to
// the request context. Super-admins pass unrestricted; any other caller
// without an assigned tenant, or addressing a foreign tenant via the
// X-Tenant-ID header or a {tenantID} route parameter, is denied before the
// request reaches data access.
func (m Middleware) RequireTenantScope() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := m.authenticate(w, r)
			if !ok {
				return
			}
			scope, err := m.Resolver.ScopeFor(ident)
			if err != nil {
				m.denyScope(w, r, ident)
				return
			}
			if !scope.Unrestricted {
				if requested, ok := requestedTenant(r); ok && !scope.Allows(requested) {
					m.denyScope(w, r, ident)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(ContextWithScope(r.Context(), scope)))
		})
	}
}

func (m Middleware) authenticate(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, CodeUnauthenticated, "")
		return Identity{}, false
	}
	return ident, true
}

func (m Middleware) resolve(ctx context.Context, ident Identity, perm string) (bool, error) {
	start := time.Now()
	allowed, err := m.Resolver.HasPermission(ctx, ident.UserID, perm, ident.TenantID)
	m.Metrics.ObserveResolve(time.Since(start))
	return allowed, err
}

// fail recovers resolution failures into caller-visible outcomes. Store
// failures propagate as a service failure, not a denial, so retries and
// alerts stay possible upstream.
func (m Middleware) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrInactiveUser):
		httpx.Error(w, http.StatusUnauthorized, CodeUnauthenticated, "")
	case errors.Is(err, ErrStoreUnavailable):
		m.Logger.Error("permission resolution unavailable",
			slog.String("operation", operation(r)),
			slog.Any("error", err))
		httpx.Error(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "")
	default:
		m.Logger.Error("permission resolution failed",
			slog.String("operation", operation(r)),
			slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, ident Identity, required []string) {
	m.Metrics.ObserveDenial(CodeInsufficientPermission)
	m.appendDenial(r, ident, map[string]any{
		"required":  required,
		"operation": operation(r),
	})
	httpx.JSON(w, http.StatusForbidden, httpx.ErrorBody{
		Error:    CodeInsufficientPermission,
		Required: required,
	})
}

func (m Middleware) denyScope(w http.ResponseWriter, r *http.Request, ident Identity) {
	m.Metrics.ObserveDenial(CodeTenantScopeViolation)
	m.appendDenial(r, ident, map[string]any{
		"reason":    CodeTenantScopeViolation,
		"operation": operation(r),
	})
	httpx.Error(w, http.StatusForbidden, CodeTenantScopeViolation, "")
}

// appendDenial writes the permission_denied audit entry. A sink failure must
// not change the denial response; it is logged as a sink failure and counted
// so operators can alert on it.
func (m Middleware) appendDenial(r *http.Request, ident Identity, details map[string]any) {
	entry := audit.Entry{
		ActorID:    ident.UserID,
		Action:     audit.ActionPermissionDenied,
		Details:    details,
		SourceAddr: r.RemoteAddr,
	}
	if err := m.Sink.Append(r.Context(), entry); err != nil {
		m.Metrics.ObserveSinkFailure()
		m.Logger.Error("audit sink append failed",
			slog.String("action", string(audit.ActionPermissionDenied)),
			slog.Any("error", err))
	}
}

func requestedTenant(r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-Tenant-ID")
	if raw == "" {
		raw = chi.URLParam(r, "tenantID")
	}
	if raw == "" {
		return 0, false
	}
	id, err := parseID(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

func operation(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return r.Method + " " + r.URL.Path
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
