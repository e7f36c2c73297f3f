// Package authz implements the authorization engine: the permission catalog,
// role baselines, per-user grant overrides, the permission resolver, and the
// HTTP guard enforcing them in front of mutating operations.
package authz

import "time"

// Identity describes the already-authenticated actor. It is produced by the
// authentication collaborator; this package never verifies credentials.
type Identity struct {
	UserID   int64
	Role     string
	TenantID *int64
	Active   bool
}

// InTenant reports whether the identity is bound to the given tenant.
func (id Identity) InTenant(tenantID int64) bool {
	return id.TenantID != nil && *id.TenantID == tenantID
}

// Grant is an additive per-user permission override beyond the role
// baseline. A nil TenantID makes the grant visible in every tenant context;
// grants are never subtractive.
type Grant struct {
	ID         int64
	UserID     int64
	Permission string
	TenantID   *int64
	GrantedBy  int64
	CreatedAt  time.Time
}

// AppliesTo reports whether the grant counts under the given tenant context.
// A global (nil tenant) grant applies everywhere; a scoped grant applies
// only when the requested tenant matches.
func (g Grant) AppliesTo(tenantID *int64) bool {
	if g.TenantID == nil {
		return true
	}
	return tenantID != nil && *g.TenantID == *tenantID
}

// TenantScope is the data-access boundary derived for a request. An
// unrestricted scope (super-admin) carries no tenant; any other scope is
// exactly the caller's tenant.
type TenantScope struct {
	TenantID     *int64
	Unrestricted bool
}

// Allows reports whether records belonging to tenantID are visible under
// the scope.
func (s TenantScope) Allows(tenantID int64) bool {
	if s.Unrestricted {
		return true
	}
	return s.TenantID != nil && *s.TenantID == tenantID
}
