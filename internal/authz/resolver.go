package authz

import (
	"context"
	"fmt"
)

// Resolver computes effective permissions for a (user, tenant) pair. It is
// stateless and request-scoped: every call recomputes from the catalog and
// the grant store, nothing is cached across requests.
type Resolver struct {
	catalog *Catalog
	users   UserDirectory
	grants  GrantStore
}

// NewResolver constructs a Resolver.
func NewResolver(catalog *Catalog, users UserDirectory, grants GrantStore) *Resolver {
	return &Resolver{catalog: catalog, users: users, grants: grants}
}

// Catalog exposes the immutable catalog backing the resolver.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// HasPermission reports whether the user holds key under the tenant context.
// Missing or inactive users fail closed with ErrUserNotFound or
// ErrInactiveUser; a key absent from the catalog is rejected before any
// store access. Super-admins short-circuit to true without a grant read.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, key string, tenantID *int64) (bool, error) {
	if _, err := r.catalog.LookupPermission(key); err != nil {
		return false, err
	}
	ident, err := r.users.GetIdentity(ctx, userID)
	if err != nil {
		return false, err
	}
	if !ident.Active {
		return false, ErrInactiveUser
	}
	if r.catalog.IsSuperRole(ident.Role) {
		return true, nil
	}
	baseline, err := r.catalog.RoleBaseline(ident.Role)
	if err != nil {
		return false, err
	}
	if baseline.Has(key) {
		return true, nil
	}
	grants, err := r.grants.ListGrants(ctx, userID, tenantID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, g := range grants {
		if g.Permission == key && g.AppliesTo(tenantID) {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePermissions returns the union of the user's role baseline and the
// grants applicable under the tenant context. Super-admins resolve to the
// full catalog snapshot without a grant read.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64, tenantID *int64) (PermissionSet, error) {
	ident, err := r.users.GetIdentity(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ident.Active {
		return nil, ErrInactiveUser
	}
	if r.catalog.IsSuperRole(ident.Role) {
		return r.catalog.RoleBaseline(ident.Role)
	}
	effective, err := r.catalog.RoleBaseline(ident.Role)
	if err != nil {
		return nil, err
	}
	grants, err := r.grants.ListGrants(ctx, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, g := range grants {
		if g.AppliesTo(tenantID) {
			effective.Add(g.Permission)
		}
	}
	return effective, nil
}

// ScopeFor derives the tenant scope for the identity. Super-admins are
// unrestricted; any other role without an assigned tenant is an invalid
// state for tenant-scoped operations.
func (r *Resolver) ScopeFor(ident Identity) (TenantScope, error) {
	if r.catalog.IsSuperRole(ident.Role) {
		return TenantScope{Unrestricted: true}, nil
	}
	if ident.TenantID == nil {
		return TenantScope{}, ErrTenantScopeViolation
	}
	return TenantScope{TenantID: ident.TenantID}, nil
}
