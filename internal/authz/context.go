package authz

import (
	"context"
	"strconv"
)

type identityContextKey struct{}

type scopeContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext extracts the identity placed by the authentication
// middleware. The second return is false for unauthenticated requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityContextKey{}).(Identity)
	return ident, ok
}

// ContextWithScope attaches the derived tenant scope to the context.
func ContextWithScope(ctx context.Context, scope TenantScope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the tenant scope placed by RequireTenantScope.
func ScopeFromContext(ctx context.Context) (TenantScope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(TenantScope)
	return scope, ok
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
