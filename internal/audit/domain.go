// Package audit provides the append-only audit trail for permission and
// role events. Entries are immutable; nothing in this package updates or
// deletes them.
package audit

import "time"

// Action is the kind of audited event.
type Action string

// Audited action kinds.
const (
	ActionPermissionGranted Action = "permission_granted"
	ActionPermissionRevoked Action = "permission_revoked"
	ActionRoleChanged       Action = "role_changed"
	ActionPermissionDenied  Action = "permission_denied"
)

// Entry is a single audit record.
type Entry struct {
	ID         int64
	ActorID    int64
	Action     Action
	Details    map[string]any
	SourceAddr string
	OccurredAt time.Time
}
