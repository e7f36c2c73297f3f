package authz

import "errors"

var (
	// ErrUserNotFound indicates the target or calling user does not exist.
	// Resolution fails closed; the guard treats it as an authentication
	// failure rather than a denial.
	ErrUserNotFound = errors.New("authz: user not found")
	// ErrInactiveUser indicates the user exists but is deactivated.
	ErrInactiveUser = errors.New("authz: user inactive")
	// ErrPermissionNotFound indicates a key absent from the catalog. It is
	// rejected before any store access.
	ErrPermissionNotFound = errors.New("authz: permission not found")
	// ErrRoleNotFound indicates an unknown role name.
	ErrRoleNotFound = errors.New("authz: role not found")
	// ErrGrantConflict indicates a grant of an already-effective permission
	// or a duplicate raw grant row.
	ErrGrantConflict = errors.New("authz: grant conflict")
	// ErrGrantNotFound indicates a revoke of a grant that was never
	// explicitly created. A baseline-only permission cannot be revoked.
	ErrGrantNotFound = errors.New("authz: grant not found")
	// ErrSelfRoleChange indicates an actor attempting to change their own
	// role. Always rejected regardless of privileges.
	ErrSelfRoleChange = errors.New("authz: cannot change own role")
	// ErrRoleChangePrivilege indicates a non-super-admin attempting to
	// assign the super-admin role.
	ErrRoleChangePrivilege = errors.New("authz: insufficient privilege for role change")
	// ErrTenantScopeViolation indicates a cross-tenant access attempt by a
	// non-super-admin.
	ErrTenantScopeViolation = errors.New("authz: tenant scope violation")
	// ErrStoreUnavailable indicates a persistence failure. It propagates as
	// a service failure, never as a denial, so operators can tell "the user
	// lacks access" apart from "access could not be determined".
	ErrStoreUnavailable = errors.New("authz: store unavailable")
)
