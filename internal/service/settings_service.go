// Package service implements the resource engines. Each engine owns one sort
// key space of the resource store and enforces that resource's invariants.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/model"
	"github.com/synchub/api/internal/store"
)

// historyMarker separates a setting id from its version suffix. Live setting
// ids are UUIDs and never contain it, so history keys cannot collide.
const historyMarker = "#v"

// maxUpdateAttempts bounds the optimistic-concurrency retry loop.
const maxUpdateAttempts = 3

// SettingUpdate carries the partial fields of an update request. Nil fields
// are left unchanged.
type SettingUpdate struct {
	Name  *string
	Value *string
}

// SettingService manages versioned settings: one current record per setting id
// plus an immutable history snapshot per superseded version.
type SettingService struct {
	settings store.Store
	logger   *zap.Logger
}

// NewSettingService creates a new setting service.
func NewSettingService(settings store.Store, logger *zap.Logger) *SettingService {
	return &SettingService{
		settings: settings,
		logger:   logger,
	}
}

// Create mints a new setting at version 1. Names are not unique; every create
// succeeds and produces a fresh id.
func (s *SettingService) Create(ctx context.Context, tenantID, name, value string, isPublic bool) (*model.Setting, error) {
	now := time.Now().Unix()
	setting := &model.Setting{
		TenantID:  tenantID,
		SettingID: uuid.New().String(),
		Name:      name,
		Value:     value,
		IsPublic:  isPublic,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	rec, err := model.Encode(setting)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	if err := s.settings.Put(ctx, tenantID, setting.SettingID, rec); err != nil {
		return nil, apierrors.Internal(err)
	}

	s.logger.Info("setting created",
		zap.String("tenant_id", tenantID),
		zap.String("setting_id", setting.SettingID))

	return setting, nil
}

// Get returns the current record of a setting.
func (s *SettingService) Get(ctx context.Context, tenantID, settingID string) (*model.Setting, error) {
	rec, err := s.settings.Get(ctx, tenantID, settingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierrors.NotFound("setting not found")
	}
	if err != nil {
		return nil, apierrors.Internal(err)
	}

	var setting model.Setting
	if err := model.Decode(rec, &setting); err != nil {
		return nil, apierrors.Internal(err)
	}
	return &setting, nil
}

// List returns the tenant's current settings. History snapshots share the
// partition but are excluded.
func (s *SettingService) List(ctx context.Context, tenantID string) ([]model.Setting, error) {
	recs, err := s.settings.QueryPrefix(ctx, tenantID, "")
	if err != nil {
		return nil, apierrors.Internal(err)
	}

	settings := make([]model.Setting, 0, len(recs))
	for _, rec := range recs {
		if strings.Contains(rec.String("setting_id"), historyMarker) {
			continue
		}
		var setting model.Setting
		if err := model.Decode(rec, &setting); err != nil {
			return nil, apierrors.Internal(err)
		}
		settings = append(settings, setting)
	}
	return settings, nil
}

// Update snapshots the current record into history, applies the partial
// fields and bumps the version. The new current record is written with a
// conditional put keyed on the prior version, so two racing updates cannot
// silently overwrite each other's bump; the loser retries against the fresh
// record.
func (s *SettingService) Update(ctx context.Context, tenantID, settingID string, upd SettingUpdate) (*model.Setting, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, tenantID, settingID)
		if err != nil {
			return nil, err
		}

		// Snapshot before the overwrite: a reader must never observe the
		// bumped version without its predecessor snapshot existing.
		if err := s.snapshot(ctx, current); err != nil {
			return nil, apierrors.Internal(err)
		}

		next := *current
		if upd.Name != nil {
			next.Name = *upd.Name
		}
		if upd.Value != nil {
			next.Value = *upd.Value
		}
		next.Version = current.Version + 1
		next.UpdatedAt = time.Now().Unix()

		rec, err := model.Encode(&next)
		if err != nil {
			return nil, apierrors.Internal(err)
		}

		err = s.settings.PutExpectVersion(ctx, tenantID, settingID, rec, current.Version)
		if errors.Is(err, store.ErrConditionFailed) {
			s.logger.Warn("concurrent setting update, retrying",
				zap.String("tenant_id", tenantID),
				zap.String("setting_id", settingID),
				zap.Int64("expected_version", current.Version))
			continue
		}
		if err != nil {
			return nil, apierrors.Internal(err)
		}

		return &next, nil
	}

	return nil, apierrors.Conflict("setting update conflicted repeatedly")
}

// History returns the superseded versions of a setting, never the current one.
func (s *SettingService) History(ctx context.Context, tenantID, settingID string) ([]model.Setting, error) {
	recs, err := s.settings.QueryPrefix(ctx, tenantID, settingID+historyMarker)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	history, err := model.DecodeAll[model.Setting](recs)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	return history, nil
}

// Rollback restores a historical version as a new current record. The version
// always moves forward past both the snapshot and the live record, so the
// version sequence stays monotonic. The record being replaced is not
// snapshotted; its state is reachable through history already.
func (s *SettingService) Rollback(ctx context.Context, tenantID, settingID string, version int64) (*model.Setting, error) {
	histKey := fmt.Sprintf("%s%s%d", settingID, historyMarker, version)
	rec, err := s.settings.Get(ctx, tenantID, histKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierrors.NotFound("version not found")
	}
	if err != nil {
		return nil, apierrors.Internal(err)
	}

	var snapshot model.Setting
	if err := model.Decode(rec, &snapshot); err != nil {
		return nil, apierrors.Internal(err)
	}

	nextVersion := snapshot.Version + 1
	if current, err := s.Get(ctx, tenantID, settingID); err == nil && current.Version >= nextVersion {
		nextVersion = current.Version + 1
	}

	restored := &model.Setting{
		TenantID:  tenantID,
		SettingID: settingID,
		Name:      snapshot.Name,
		Value:     snapshot.Value,
		IsPublic:  snapshot.IsPublic,
		Version:   nextVersion,
		CreatedAt: snapshot.CreatedAt,
		UpdatedAt: time.Now().Unix(),
	}

	restoredRec, err := model.Encode(restored)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	if err := s.settings.Put(ctx, tenantID, settingID, restoredRec); err != nil {
		return nil, apierrors.Internal(err)
	}

	s.logger.Info("setting rolled back",
		zap.String("tenant_id", tenantID),
		zap.String("setting_id", settingID),
		zap.Int64("from_version", version),
		zap.Int64("new_version", restored.Version))

	return restored, nil
}

// Delete removes the current record and cascades to its history snapshots.
func (s *SettingService) Delete(ctx context.Context, tenantID, settingID string) error {
	if err := s.settings.Delete(ctx, tenantID, settingID); err != nil {
		return apierrors.Internal(err)
	}

	afterKey := ""
	for {
		recs, next, err := s.settings.QueryPrefixPage(ctx, tenantID, settingID+historyMarker, afterKey, deletePageSize)
		if err != nil {
			return apierrors.Internal(err)
		}
		for _, rec := range recs {
			if err := s.settings.Delete(ctx, tenantID, rec.String("setting_id")); err != nil {
				return apierrors.Internal(err)
			}
		}
		if next == "" {
			return nil
		}
		afterKey = next
	}
}

// SetVisibility flips the public flag in place. No version bump, no snapshot.
func (s *SettingService) SetVisibility(ctx context.Context, tenantID, settingID string, isPublic bool) error {
	if _, err := s.Get(ctx, tenantID, settingID); err != nil {
		return err
	}
	if err := s.settings.Update(ctx, tenantID, settingID, store.Record{"is_public": isPublic}); err != nil {
		return apierrors.Internal(err)
	}
	return nil
}

// ListPublic returns public settings across all tenants. This is the only
// operation that crosses tenant boundaries by design.
func (s *SettingService) ListPublic(ctx context.Context) ([]model.Setting, error) {
	recs, err := s.settings.ScanFilter(ctx, func(rec store.Record) bool {
		return rec.Bool("is_public") && !strings.Contains(rec.String("setting_id"), historyMarker)
	})
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	settings, err := model.DecodeAll[model.Setting](recs)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	return settings, nil
}

// snapshot writes the current record into history under its version key.
func (s *SettingService) snapshot(ctx context.Context, current *model.Setting) error {
	histKey := fmt.Sprintf("%s%s%d", current.SettingID, historyMarker, current.Version)

	snap := *current
	snap.SettingID = histKey

	rec, err := model.Encode(&snap)
	if err != nil {
		return err
	}
	return s.settings.Put(ctx, current.TenantID, histKey, rec)
}
