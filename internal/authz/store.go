package authz

import "context"

// GrantStore persists per-user permission overrides. Implementations map
// storage-level unique violations on (user, permission, tenant) to
// ErrGrantConflict and all other I/O failures to ErrStoreUnavailable.
type GrantStore interface {
	// ListGrants returns the grants visible to userID under the tenant
	// context: rows whose tenant matches tenantID plus rows with a NULL
	// tenant. A nil tenantID matches only NULL-tenant rows.
	ListGrants(ctx context.Context, userID int64, tenantID *int64) ([]Grant, error)
	// InsertGrant stores a new grant row and returns its ID.
	InsertGrant(ctx context.Context, grant Grant) (int64, error)
	// DeleteGrant removes the matching raw grant rows and returns how many
	// were deleted.
	DeleteGrant(ctx context.Context, userID int64, permission string, tenantID *int64) (int64, error)
}

// UserDirectory resolves user identities for permission checks.
type UserDirectory interface {
	// GetIdentity returns the identity for the user, or ErrUserNotFound.
	GetIdentity(ctx context.Context, userID int64) (Identity, error)
	// UpdateRole changes the user's role and returns the previous one.
	UpdateRole(ctx context.Context, userID int64, role string) (string, error)
}
