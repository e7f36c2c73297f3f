package authz

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexushq/nexus/internal/audit"
)

type recordingSink struct {
	entries []audit.Entry
	err     error
}

func (s *recordingSink) Append(ctx context.Context, entry audit.Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func newTestService(t *testing.T, dir *stubDirectory, store *stubGrantStore, sink *recordingSink) *Service {
	t.Helper()
	catalog := testCatalog(t)
	resolver := NewResolver(catalog, dir, store)
	return NewService(catalog, resolver, dir, store, sink, slog.Default())
}

func TestGrantHappyPathAuditsOnce(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
		2: {UserID: 2, Role: RoleUser, TenantID: ptr(1), Active: true},
	}}
	store := &stubGrantStore{}
	sink := &recordingSink{}
	svc := newTestService(t, dir, store, sink)

	actor := dir.identities[1]
	grant, err := svc.Grant(context.Background(), actor, 2, "reports.export", ptr(1), "10.0.0.1:1234")
	require.NoError(t, err)
	assert.NotZero(t, grant.ID)
	assert.Equal(t, int64(1), grant.GrantedBy)

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, audit.ActionPermissionGranted, entry.Action)
	assert.Equal(t, int64(1), entry.ActorID)
	assert.Equal(t, int64(2), entry.Details["target_user_id"])
	assert.Equal(t, "reports.export", entry.Details["permission"])
}

func TestGrantUnknownPermission(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, dir, &stubGrantStore{}, sink)

	_, err := svc.Grant(context.Background(), dir.identities[1], 2, "nope.nothing", ptr(1), "")
	assert.ErrorIs(t, err, ErrPermissionNotFound)
	assert.Empty(t, sink.entries)
}

func TestGrantUnknownTarget(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, dir, &stubGrantStore{}, sink)

	_, err := svc.Grant(context.Background(), dir.identities[1], 99, "reports.export", ptr(1), "")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, sink.entries)
}

func TestGrantConflictWhenBaselineAlreadyHolds(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
		2: {UserID: 2, Role: RoleUser, TenantID: ptr(1), Active: true},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, dir, &stubGrantStore{}, sink)

	_, err := svc.Grant(context.Background(), dir.identities[1], 2, "chat.send", ptr(1), "")
	assert.ErrorIs(t, err, ErrGrantConflict)
	assert.Empty(t, sink.entries)
}

func TestGrantDuplicateRowForInactiveTarget(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
		2: {UserID: 2, Role: RoleUser, TenantID: ptr(1), Active: false},
	}}
	store := &stubGrantStore{grants: []Grant{
		{ID: 1, UserID: 2, Permission: "reports.export", TenantID: ptr(1)},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, dir, store, sink)

	// The effective check reports ErrInactiveUser, so the raw row check is
	// the only thing standing between us and a duplicate insert.
	_, err := svc.Grant(context.Background(), dir.identities[1], 2, "reports.export", ptr(1), "")
	assert.ErrorIs(t, err, ErrGrantConflict)
	assert.Empty(t, sink.entries)
}

func TestGrantToInactiveTargetSucceeds(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
		2: {UserID: 2, Role: RoleUser, TenantID: ptr(1), Active: false},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, dir, &stubGrantStore{}, sink)

	grant, err := svc.Grant(context.Background(), dir.identities[1], 2, "reports.export", ptr(1), "")
	require.NoError(t, err)
	assert.NotZero(t, grant.ID)
	assert.Len(t, sink.entries, 1)
}

func TestRevokeBaselineOnlyPermission(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
		2: {UserID: 2, Role: RoleUser, TenantID: ptr(1), Active: true},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, dir, &stubGrantStore{}, sink)

	// chat.send comes from the role baseline; there is no override row to
	// remove, and revoke never subtracts from baselines.
	err := svc.Revoke(context.Background(), dir.identities[1], 2, "chat.send", ptr(1), "")
	assert.ErrorIs(t, err, ErrGrantNotFound)
	assert.Empty(t, sink.entries)
}

func TestRevokeRemovesGrantAndAudits(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
		2: {UserID: 2, Role: RoleUser, TenantID: ptr(1), Active: true},
	}}
	store := &stubGrantStore{grants: []Grant{
		{ID: 1, UserID: 2, Permission: "reports.export", TenantID: ptr(1)},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, dir, store, sink)

	err := svc.Revoke(context.Background(), dir.identities[1], 2, "reports.export", ptr(1), "")
	require.NoError(t, err)
	assert.Empty(t, store.grants)

	require.Len(t, sink.entries, 1)
	assert.Equal(t, audit.ActionPermissionRevoked, sink.entries[0].Action)
}

func TestChangeRoleSelfForbidden(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, dir, &stubGrantStore{}, sink)

	err := svc.ChangeRole(context.Background(), dir.identities[1], 1, RoleManager, "")
	assert.ErrorIs(t, err, ErrSelfRoleChange)
	assert.Empty(t, sink.entries)
}

func TestChangeRoleUnknownRole(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
		2: {UserID: 2, Role: RoleUser, TenantID: ptr(1), Active: true},
	}}
	svc := newTestService(t, dir, &stubGrantStore{}, &recordingSink{})

	err := svc.ChangeRole(context.Background(), dir.identities[1], 2, "warlord", "")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestChangeRoleSuperAssignmentNeedsSuperActor(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
		2: {UserID: 2, Role: RoleUser, TenantID: ptr(1), Active: true},
		3: {UserID: 3, Role: RoleSuperAdmin, Active: true},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, dir, &stubGrantStore{}, sink)

	err := svc.ChangeRole(context.Background(), dir.identities[1], 2, RoleSuperAdmin, "")
	assert.ErrorIs(t, err, ErrRoleChangePrivilege)
	assert.Empty(t, sink.entries)

	err = svc.ChangeRole(context.Background(), dir.identities[3], 2, RoleSuperAdmin, "")
	require.NoError(t, err)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, audit.ActionRoleChanged, sink.entries[0].Action)
	assert.Equal(t, RoleUser, sink.entries[0].Details["old_role"])
	assert.Equal(t, RoleSuperAdmin, sink.entries[0].Details["new_role"])
}

func TestSinkFailureDoesNotFailMutation(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
		2: {UserID: 2, Role: RoleUser, TenantID: ptr(1), Active: true},
	}}
	store := &stubGrantStore{}
	sink := &recordingSink{err: errors.New("audit store down")}
	svc := newTestService(t, dir, store, sink)

	grant, err := svc.Grant(context.Background(), dir.identities[1], 2, "reports.export", ptr(1), "")
	require.NoError(t, err)
	assert.NotZero(t, grant.ID)
	assert.Len(t, store.grants, 1)
}

func TestGrantLifecycleAcrossTenants(t *testing.T) {
	dir := &stubDirectory{identities: map[int64]Identity{
		1: {UserID: 1, Role: RoleAdmin, TenantID: ptr(1), Active: true},
		2: {UserID: 2, Role: RoleUser, TenantID: ptr(1), Active: true},
	}}
	store := &stubGrantStore{}
	sink := &recordingSink{}
	catalog := testCatalog(t)
	resolver := NewResolver(catalog, dir, store)
	svc := NewService(catalog, resolver, dir, store, sink, slog.Default())

	ctx := context.Background()
	allowed, err := resolver.HasPermission(ctx, 2, "tenants.delete", ptr(1))
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = resolver.HasPermission(ctx, 2, "reports.export", ptr(1))
	require.NoError(t, err)
	assert.False(t, allowed)

	_, err = svc.Grant(ctx, dir.identities[1], 2, "reports.export", ptr(1), "10.0.0.1:1234")
	require.NoError(t, err)

	allowed, err = resolver.HasPermission(ctx, 2, "reports.export", ptr(1))
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = resolver.HasPermission(ctx, 2, "reports.export", ptr(2))
	require.NoError(t, err)
	assert.False(t, allowed, "tenant-scoped grant must not leak into another tenant")

	require.NoError(t, svc.Revoke(ctx, dir.identities[1], 2, "reports.export", ptr(1), "10.0.0.1:1234"))

	allowed, err = resolver.HasPermission(ctx, 2, "reports.export", ptr(1))
	require.NoError(t, err)
	assert.False(t, allowed)

	require.Len(t, sink.entries, 2)
	assert.Equal(t, audit.ActionPermissionGranted, sink.entries[0].Action)
	assert.Equal(t, audit.ActionPermissionRevoked, sink.entries[1].Action)
}
