package users

import "time"

// User represents a user account. Exactly one role is attached at any time;
// TenantID is nil for users not bound to a tenant (only valid for the
// super-admin role in tenant-scoped operations).
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      string
	TenantID  *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
