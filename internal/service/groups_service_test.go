package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/model"
	"github.com/synchub/api/internal/store"
)

func newGroupService(t *testing.T) (*GroupService, *store.MemoryStore, *store.MemoryStore) {
	t.Helper()
	groups := store.NewMemoryStore(zap.NewNop(), store.WithTouchField("updated_at"))
	members := store.NewMemoryStore(zap.NewNop())
	t.Cleanup(groups.Close)
	t.Cleanup(members.Close)
	return NewGroupService(groups, members, zap.NewNop()), groups, members
}

func TestGroupCreateWritesOwnerMembership(t *testing.T) {
	svc, _, _ := newGroupService(t)
	ctx := context.Background()

	group, err := svc.Create(ctx, "t1", "engineering", "the builders")
	require.NoError(t, err)
	assert.NotEmpty(t, group.GroupID)
	assert.Equal(t, "engineering", group.Name)

	members, err := svc.ListMembers(ctx, "t1", group.GroupID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, model.RoleOwner, members[0].Role)
	assert.Equal(t, fmt.Sprintf("%s#%s", group.GroupID, members[0].UserID), members[0].MemberKey)
}

// failPutStore fails every Put, for exercising the create compensation path.
type failPutStore struct {
	store.Store
}

func (f *failPutStore) Put(ctx context.Context, tenant, sortKey string, rec store.Record) error {
	return errors.New("write refused")
}

func TestGroupCreateCompensatesOnMembershipFailure(t *testing.T) {
	groups := store.NewMemoryStore(zap.NewNop(), store.WithTouchField("updated_at"))
	members := store.NewMemoryStore(zap.NewNop())
	t.Cleanup(groups.Close)
	t.Cleanup(members.Close)

	svc := NewGroupService(groups, &failPutStore{Store: members}, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, "t1", "engineering", "")
	require.Error(t, err)

	// The half-written group record must not survive.
	recs, err := groups.QueryPrefix(ctx, "t1", "")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGroupGetNotFound(t *testing.T) {
	svc, _, _ := newGroupService(t)

	_, err := svc.Get(context.Background(), "t1", "missing")
	assert.Equal(t, apierrors.CodeNotFound, apierrors.CodeOf(err))
}

func TestGroupList(t *testing.T) {
	svc, _, _ := newGroupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "t1", "a", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "t1", "b", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "t2", "c", "")
	require.NoError(t, err)

	groups, err := svc.List(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestGroupUpdatePartialFields(t *testing.T) {
	svc, _, _ := newGroupService(t)
	ctx := context.Background()

	group, err := svc.Create(ctx, "t1", "engineering", "old desc")
	require.NoError(t, err)

	name := "platform"
	updated, err := svc.Update(ctx, "t1", group.GroupID, GroupUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "platform", updated.Name)
	assert.Equal(t, "old desc", updated.Description)
}

func TestGroupUpdateNotFound(t *testing.T) {
	svc, _, _ := newGroupService(t)

	name := "x"
	_, err := svc.Update(context.Background(), "t1", "missing", GroupUpdate{Name: &name})
	assert.Equal(t, apierrors.CodeNotFound, apierrors.CodeOf(err))
}

func TestGroupDeleteCascadesMemberships(t *testing.T) {
	svc, _, members := newGroupService(t)
	ctx := context.Background()

	group, err := svc.Create(ctx, "t1", "engineering", "")
	require.NoError(t, err)

	// More members than one delete page, so the cascade walks pages.
	for i := 0; i < deletePageSize+5; i++ {
		_, err = svc.Invite(ctx, "t1", group.GroupID, fmt.Sprintf("user-%03d", i), "")
		require.NoError(t, err)
	}

	other, err := svc.Create(ctx, "t1", "design", "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "t1", group.GroupID))

	_, err = svc.Get(ctx, "t1", group.GroupID)
	assert.Equal(t, apierrors.CodeNotFound, apierrors.CodeOf(err))

	leftover, err := members.QueryPrefix(ctx, "t1", group.GroupID+"#")
	require.NoError(t, err)
	assert.Empty(t, leftover)

	// Unrelated group's memberships are untouched.
	kept, err := svc.ListMembers(ctx, "t1", other.GroupID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestGroupInviteIdempotent(t *testing.T) {
	svc, _, _ := newGroupService(t)
	ctx := context.Background()

	group, err := svc.Create(ctx, "t1", "engineering", "")
	require.NoError(t, err)

	first, err := svc.Invite(ctx, "t1", group.GroupID, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, first.Role)

	second, err := svc.Invite(ctx, "t1", group.GroupID, "u1", model.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, second.Role)

	members, err := svc.ListMembers(ctx, "t1", group.GroupID)
	require.NoError(t, err)
	// Owner membership plus the single upserted invite.
	require.Len(t, members, 2)
}

func TestGroupMembersScopedByPrefix(t *testing.T) {
	svc, _, _ := newGroupService(t)
	ctx := context.Background()

	g1, err := svc.Create(ctx, "t1", "a", "")
	require.NoError(t, err)
	g2, err := svc.Create(ctx, "t1", "b", "")
	require.NoError(t, err)

	_, err = svc.Invite(ctx, "t1", g1.GroupID, "u1", "")
	require.NoError(t, err)

	members, err := svc.ListMembers(ctx, "t1", g2.GroupID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}
