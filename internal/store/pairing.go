package store

import (
	"context"
	"time"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Pairing interface {
	CreateSession(ctx context.Context, session *model.PairingSession) (*model.PairingSession, error)
	ActiveSession(ctx context.Context, deviceUID string) (*model.PairingSession, error)
	ActiveSessionUIDs(ctx context.Context, deviceUIDs []string) (map[string]bool, error)
	Confirm(ctx context.Context, deviceUID string, pairingCode string, tokenHash string) (*model.Device, *model.PairingSession, error)
	InitialMigration() error
}

type PairingStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

var _ Pairing = (*PairingStore)(nil)

func NewPairing(db *gorm.DB, log logrus.FieldLogger) Pairing {
	return &PairingStore{db: db, log: log}
}

func (s *PairingStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.PairingSession{})
}

func (s *PairingStore) CreateSession(ctx context.Context, session *model.PairingSession) (*model.PairingSession, error) {
	result := s.db.WithContext(ctx).Create(session)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return session, nil
}

// ActiveSession returns the unused, unexpired session for a device, or
// ErrResourceNotFound when none exists.
func (s *PairingStore) ActiveSession(ctx context.Context, deviceUID string) (*model.PairingSession, error) {
	var session model.PairingSession
	result := s.db.WithContext(ctx).
		Where("device_uid = ? AND is_used = ? AND expires_at > ?", deviceUID, false, time.Now().UTC()).
		Order("created_at DESC").
		First(&session)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &session, nil
}

// ActiveSessionUIDs reports which of the given device uids currently have an
// active pairing session. Used by the device list view.
func (s *PairingStore) ActiveSessionUIDs(ctx context.Context, deviceUIDs []string) (map[string]bool, error) {
	active := make(map[string]bool, len(deviceUIDs))
	if len(deviceUIDs) == 0 {
		return active, nil
	}
	var uids []string
	result := s.db.WithContext(ctx).Model(&model.PairingSession{}).
		Where("device_uid IN ? AND is_used = ? AND expires_at > ?", deviceUIDs, false, time.Now().UTC()).
		Distinct().
		Pluck("device_uid", &uids)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	for _, uid := range uids {
		active[uid] = true
	}
	return active, nil
}

// Confirm executes the whole device-side claim in one transaction. Row locks
// are taken session first, then device, so concurrent confirms for the same
// code serialize on the session row and the loser observes is_used.
func (s *PairingStore) Confirm(ctx context.Context, deviceUID string, pairingCode string, tokenHash string) (*model.Device, *model.PairingSession, error) {
	var (
		session model.PairingSession
		device  model.Device
	)
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := forUpdate(tx).
			Where("device_uid = ? AND pairing_code = ?", deviceUID, pairingCode).
			First(&session)
		if result.Error != nil {
			if hberrors.ErrorFromGormError(result.Error) == hberrors.ErrResourceNotFound {
				return hberrors.ErrPairingCodeNotFound
			}
			return hberrors.ErrorFromGormError(result.Error)
		}
		if session.IsUsed {
			return hberrors.ErrPairingCodeUsed
		}
		if !session.ExpiresAt.After(now) {
			return hberrors.ErrPairingCodeExpired
		}

		result = forUpdate(tx).Where("device_uid = ?", deviceUID).First(&device)
		if result.Error != nil {
			if hberrors.ErrorFromGormError(result.Error) == hberrors.ErrResourceNotFound {
				return hberrors.ErrDeviceNotFound
			}
			return hberrors.ErrorFromGormError(result.Error)
		}
		if device.LastSeenAt == nil {
			return hberrors.ErrDeviceNotProvisioned
		}
		if device.OwnerUserID != nil {
			return hberrors.ErrDeviceAlreadyClaimed
		}

		var activeTokens int64
		if err := tx.Model(&model.DeviceToken{}).
			Where("device_id = ? AND is_active = ?", device.ID, true).
			Count(&activeTokens).Error; err != nil {
			return hberrors.ErrorFromGormError(err)
		}
		if activeTokens > 0 {
			return hberrors.ErrDeviceTokenActive
		}

		var inFlight int64
		if err := tx.Model(&model.Task{}).
			Where("client_id = ? AND status = ? AND lease_expires_at > ?", device.ID, model.TaskStatusInFlight, now).
			Count(&inFlight).Error; err != nil {
			return hberrors.ErrorFromGormError(err)
		}
		if inFlight > 0 {
			return hberrors.ErrDeviceBusy
		}

		if err := tx.Model(&model.Device{}).Where("id = ?", device.ID).
			Updates(map[string]any{"owner_user_id": session.UserID, "is_claimed": true}).Error; err != nil {
			return hberrors.ErrorFromGormError(err)
		}
		device.OwnerUserID = &session.UserID
		device.IsClaimed = true

		if err := tx.Model(&model.PairingSession{}).Where("id = ?", session.ID).
			Update("is_used", true).Error; err != nil {
			return hberrors.ErrorFromGormError(err)
		}
		session.IsUsed = true

		token := model.DeviceToken{DeviceID: device.ID, TokenHash: tokenHash, IsActive: true, CreatedAt: now}
		return hberrors.ErrorFromGormError(tx.Create(&token).Error)
	})
	if err != nil {
		return nil, nil, err
	}
	return &device, &session, nil
}
