package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/model"
	"github.com/synchub/api/internal/store"
)

// DefaultPairingTTL is how long a pairing code stays confirmable.
const DefaultPairingTTL = 600 * time.Second

// deviceCodeLength is the human-typable code size.
const deviceCodeLength = 8

// DeviceService manages device pairing sessions and session feedback.
type DeviceService struct {
	sessions store.Store
	ttl      time.Duration
	logger   *zap.Logger
}

// NewDeviceService creates a new device pairing service.
func NewDeviceService(sessions store.Store, ttl time.Duration, logger *zap.Logger) *DeviceService {
	if ttl == 0 {
		ttl = DefaultPairingTTL
	}
	return &DeviceService{
		sessions: sessions,
		ttl:      ttl,
		logger:   logger,
	}
}

// StartDeviceFlow mints a pending pairing session with a short uppercase
// code. Code uniqueness is only meaningful among pending sessions; confirmed
// sessions never match a lookup.
func (s *DeviceService) StartDeviceFlow(ctx context.Context, tenantID string) (*model.DeviceSession, error) {
	now := time.Now()
	session := &model.DeviceSession{
		TenantID:   tenantID,
		SessionID:  uuid.New().String(),
		DeviceCode: strings.ToUpper(uuid.New().String()[:deviceCodeLength]),
		Status:     model.SessionStatusPending,
		CreatedAt:  now.Unix(),
		TTL:        now.Add(s.ttl).Unix(),
	}

	rec, err := model.Encode(session)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	if err := s.sessions.Put(ctx, tenantID, session.SessionID, rec); err != nil {
		return nil, apierrors.Internal(err)
	}

	s.logger.Info("device flow started",
		zap.String("tenant_id", tenantID),
		zap.String("session_id", session.SessionID))

	return session, nil
}

// ExpiresIn returns the pairing TTL in seconds, for the start response.
func (s *DeviceService) ExpiresIn() int64 {
	return int64(s.ttl.Seconds())
}

// ConfirmDeviceFlow finds the pending, non-expired session holding the code
// and flips it to confirmed. The confirming caller is not yet tenant-scoped,
// so the lookup scans across tenants. Confirming an already-confirmed session
// finds no pending match and reports NotFound.
func (s *DeviceService) ConfirmDeviceFlow(ctx context.Context, deviceCode string) (*model.DeviceSession, error) {
	matches, err := s.sessions.ScanFilter(ctx, func(rec store.Record) bool {
		return rec.String("device_code") == deviceCode &&
			rec.String("status") == model.SessionStatusPending
	})
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	if len(matches) == 0 {
		return nil, apierrors.NotFound("invalid device code")
	}

	var session model.DeviceSession
	if err := model.Decode(matches[0], &session); err != nil {
		return nil, apierrors.Internal(err)
	}

	fields := store.Record{"status": model.SessionStatusConfirmed}
	if err := s.sessions.Update(ctx, session.TenantID, session.SessionID, fields); err != nil {
		return nil, apierrors.Internal(err)
	}
	session.Status = model.SessionStatusConfirmed

	s.logger.Info("device flow confirmed",
		zap.String("tenant_id", session.TenantID),
		zap.String("session_id", session.SessionID))

	return &session, nil
}

// RecordFeedback stores emoji feedback on a session record.
func (s *DeviceService) RecordFeedback(ctx context.Context, tenantID, sessionID, emoji string) error {
	fields := store.Record{
		"emoji_feedback": emoji,
		"feedback_at":    time.Now().Unix(),
	}
	if err := s.sessions.Update(ctx, tenantID, sessionID, fields); err != nil {
		return apierrors.Internal(err)
	}
	return nil
}
