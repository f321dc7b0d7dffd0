package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/model"
	"github.com/synchub/api/internal/store"
)

// deletePageSize bounds each membership/history page walked during cascading
// deletes.
const deletePageSize = 100

// GroupUpdate carries the partial fields of a group update request.
type GroupUpdate struct {
	Name        *string
	Description *string
}

// GroupService manages groups and the composite-key membership index.
type GroupService struct {
	groups  store.Store
	members store.Store
	logger  *zap.Logger
}

// NewGroupService creates a new group service.
func NewGroupService(groups, members store.Store, logger *zap.Logger) *GroupService {
	return &GroupService{
		groups:  groups,
		members: members,
		logger:  logger,
	}
}

// memberKey builds the composite sort key of a membership record.
func memberKey(groupID, userID string) string {
	return fmt.Sprintf("%s#%s", groupID, userID)
}

// Create mints a group and its owner membership. The two writes hit different
// sort key spaces and are not atomic; if the membership write fails the group
// record is compensated away so no ownerless group survives.
func (s *GroupService) Create(ctx context.Context, tenantID, name, description string) (*model.Group, error) {
	now := time.Now().Unix()
	group := &model.Group{
		TenantID:    tenantID,
		GroupID:     uuid.New().String(),
		Name:        name,
		Description: description,
		OwnerID:     tenantID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	groupRec, err := model.Encode(group)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	if err := s.groups.Put(ctx, tenantID, group.GroupID, groupRec); err != nil {
		return nil, apierrors.Internal(err)
	}

	owner := &model.Membership{
		TenantID:  tenantID,
		MemberKey: memberKey(group.GroupID, tenantID),
		GroupID:   group.GroupID,
		UserID:    tenantID,
		Role:      model.RoleOwner,
		JoinedAt:  now,
	}
	ownerRec, err := model.Encode(owner)
	if err == nil {
		err = s.members.Put(ctx, tenantID, owner.MemberKey, ownerRec)
	}
	if err != nil {
		// Compensate: roll the group record back rather than leave a group
		// with no owner membership.
		if delErr := s.groups.Delete(ctx, tenantID, group.GroupID); delErr != nil {
			s.logger.Error("failed to compensate group create",
				zap.String("tenant_id", tenantID),
				zap.String("group_id", group.GroupID),
				zap.Error(delErr))
		}
		return nil, apierrors.Internal(err)
	}

	s.logger.Info("group created",
		zap.String("tenant_id", tenantID),
		zap.String("group_id", group.GroupID))

	return group, nil
}

// Get returns a group record.
func (s *GroupService) Get(ctx context.Context, tenantID, groupID string) (*model.Group, error) {
	rec, err := s.groups.Get(ctx, tenantID, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierrors.NotFound("group not found")
	}
	if err != nil {
		return nil, apierrors.Internal(err)
	}

	var group model.Group
	if err := model.Decode(rec, &group); err != nil {
		return nil, apierrors.Internal(err)
	}
	return &group, nil
}

// List returns the tenant's groups.
func (s *GroupService) List(ctx context.Context, tenantID string) ([]model.Group, error) {
	recs, err := s.groups.QueryPrefix(ctx, tenantID, "")
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	groups, err := model.DecodeAll[model.Group](recs)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	return groups, nil
}

// Update applies partial fields to a group record.
func (s *GroupService) Update(ctx context.Context, tenantID, groupID string, upd GroupUpdate) (*model.Group, error) {
	if _, err := s.Get(ctx, tenantID, groupID); err != nil {
		return nil, err
	}

	fields := store.Record{}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}
	if err := s.groups.Update(ctx, tenantID, groupID, fields); err != nil {
		return nil, apierrors.Internal(err)
	}

	return s.Get(ctx, tenantID, groupID)
}

// Delete removes the group record, then cascades through every membership
// whose composite key carries the group prefix, one page at a time.
func (s *GroupService) Delete(ctx context.Context, tenantID, groupID string) error {
	if err := s.groups.Delete(ctx, tenantID, groupID); err != nil {
		return apierrors.Internal(err)
	}

	afterKey := ""
	for {
		recs, next, err := s.members.QueryPrefixPage(ctx, tenantID, groupID+"#", afterKey, deletePageSize)
		if err != nil {
			return apierrors.Internal(err)
		}
		for _, rec := range recs {
			if err := s.members.Delete(ctx, tenantID, rec.String("group_id#user_id")); err != nil {
				return apierrors.Internal(err)
			}
		}
		if next == "" {
			break
		}
		afterKey = next
	}

	s.logger.Info("group deleted",
		zap.String("tenant_id", tenantID),
		zap.String("group_id", groupID))

	return nil
}

// Invite upserts a membership record. Re-inviting the same user overwrites
// the role, making invites idempotent.
func (s *GroupService) Invite(ctx context.Context, tenantID, groupID, userID, role string) (*model.Membership, error) {
	if role == "" {
		role = model.RoleMember
	}

	member := &model.Membership{
		TenantID:  tenantID,
		MemberKey: memberKey(groupID, userID),
		GroupID:   groupID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  time.Now().Unix(),
	}

	rec, err := model.Encode(member)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	if err := s.members.Put(ctx, tenantID, member.MemberKey, rec); err != nil {
		return nil, apierrors.Internal(err)
	}
	return member, nil
}

// ListMembers returns the memberships of a group.
func (s *GroupService) ListMembers(ctx context.Context, tenantID, groupID string) ([]model.Membership, error) {
	recs, err := s.members.QueryPrefix(ctx, tenantID, groupID+"#")
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	members, err := model.DecodeAll[model.Membership](recs)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	return members, nil
}
