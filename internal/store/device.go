package store

import (
	"context"
	"time"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Device interface {
	Hello(ctx context.Context, deviceUID string, firmwareVersion *string, capabilities map[string]any) (*model.Device, error)
	GetByID(ctx context.Context, id int64) (*model.Device, error)
	GetByUID(ctx context.Context, deviceUID string) (*model.Device, error)
	GetByActiveTokenHash(ctx context.Context, tokenHash string) (*model.Device, error)
	List(ctx context.Context, ownerUserID *int64) ([]model.Device, error)
	UpdateLastSeen(ctx context.Context, id int64) error
	SetName(ctx context.Context, id int64, name string) error
	HasActiveToken(ctx context.Context, id int64) (bool, error)
	GetRuntimeSetting(ctx context.Context, deviceID int64) (*model.DeviceRuntimeSetting, error)
	SetTelemetryInterval(ctx context.Context, deviceID int64, intervalMS int) error
	InitialMigration() error
}

type DeviceStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

var _ Device = (*DeviceStore)(nil)

func NewDevice(db *gorm.DB, log logrus.FieldLogger) Device {
	return &DeviceStore{db: db, log: log}
}

func (s *DeviceStore) InitialMigration() error {
	if err := s.db.AutoMigrate(&model.Device{}, &model.DeviceToken{}, &model.DeviceRuntimeSetting{}); err != nil {
		return err
	}

	// At most one active token per device; AutoMigrate cannot express the
	// partial index so it is created directly.
	if s.db.Dialector.Name() == "postgres" {
		return s.db.Exec(
			"CREATE UNIQUE INDEX IF NOT EXISTS uq_device_tokens_one_active ON device_tokens (device_id) WHERE is_active",
		).Error
	}
	return s.db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_device_tokens_one_active ON device_tokens (device_id) WHERE is_active = 1",
	).Error
}

// Hello upserts a device row by its stable hardware uid. A miss inserts the
// row; a hit refreshes the mutable fields. Both paths stamp last_seen_at.
func (s *DeviceStore) Hello(ctx context.Context, deviceUID string, firmwareVersion *string, capabilities map[string]any) (*model.Device, error) {
	var device model.Device
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := forUpdate(tx).Where("device_uid = ?", deviceUID).First(&device)
		if result.Error != nil {
			if hberrors.ErrorFromGormError(result.Error) != hberrors.ErrResourceNotFound {
				return hberrors.ErrorFromGormError(result.Error)
			}
			device = model.Device{
				DeviceUID:       deviceUID,
				FirmwareVersion: firmwareVersion,
				Capabilities:    capabilities,
				LastSeenAt:      &now,
			}
			return hberrors.ErrorFromGormError(tx.Create(&device).Error)
		}

		updates := map[string]any{"last_seen_at": now}
		if firmwareVersion != nil {
			updates["firmware_version"] = *firmwareVersion
			device.FirmwareVersion = firmwareVersion
		}
		if capabilities != nil {
			updates["capabilities"] = model.JSONMap[string, any](capabilities)
			device.Capabilities = capabilities
		}
		device.LastSeenAt = &now
		return hberrors.ErrorFromGormError(tx.Model(&model.Device{}).Where("id = ?", device.ID).Updates(updates).Error)
	})
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *DeviceStore) GetByID(ctx context.Context, id int64) (*model.Device, error) {
	var device model.Device
	result := s.db.WithContext(ctx).First(&device, id)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &device, nil
}

func (s *DeviceStore) GetByUID(ctx context.Context, deviceUID string) (*model.Device, error) {
	var device model.Device
	result := s.db.WithContext(ctx).Where("device_uid = ?", deviceUID).First(&device)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &device, nil
}

// GetByActiveTokenHash resolves a device principal from the stored hash of
// its presented credential.
func (s *DeviceStore) GetByActiveTokenHash(ctx context.Context, tokenHash string) (*model.Device, error) {
	var device model.Device
	result := s.db.WithContext(ctx).
		Joins("JOIN device_tokens ON device_tokens.device_id = devices.id").
		Where("device_tokens.token_hash = ? AND device_tokens.is_active = ?", tokenHash, true).
		First(&device)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &device, nil
}

func (s *DeviceStore) List(ctx context.Context, ownerUserID *int64) ([]model.Device, error) {
	var devices []model.Device
	query := s.db.WithContext(ctx).Order("id")
	if ownerUserID != nil {
		query = query.Where("owner_user_id = ?", *ownerUserID)
	}
	if result := query.Find(&devices); result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return devices, nil
}

func (s *DeviceStore) UpdateLastSeen(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("id = ?", id).
		Update("last_seen_at", time.Now().UTC())
	return hberrors.ErrorFromGormError(result.Error)
}

func (s *DeviceStore) SetName(ctx context.Context, id int64, name string) error {
	result := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("id = ?", id).
		Update("name", name)
	if result.Error != nil {
		return hberrors.ErrorFromGormError(result.Error)
	}
	if result.RowsAffected == 0 {
		return hberrors.ErrDeviceNotFound
	}
	return nil
}

func (s *DeviceStore) HasActiveToken(ctx context.Context, id int64) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&model.DeviceToken{}).
		Where("device_id = ? AND is_active = ?", id, true).
		Count(&count)
	if result.Error != nil {
		return false, hberrors.ErrorFromGormError(result.Error)
	}
	return count > 0, nil
}

// GetRuntimeSetting returns the per-device runtime row, creating it on first
// access so callers can rely on its presence.
func (s *DeviceStore) GetRuntimeSetting(ctx context.Context, deviceID int64) (*model.DeviceRuntimeSetting, error) {
	var setting model.DeviceRuntimeSetting
	result := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&setting)
	if result.Error == nil {
		return &setting, nil
	}
	if hberrors.ErrorFromGormError(result.Error) != hberrors.ErrResourceNotFound {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	setting = model.DeviceRuntimeSetting{DeviceID: deviceID, UpdatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&setting).Error; err != nil {
		if hberrors.ErrorFromGormError(err) == hberrors.ErrDuplicateKey {
			result = s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&setting)
			if result.Error != nil {
				return nil, hberrors.ErrorFromGormError(result.Error)
			}
			return &setting, nil
		}
		return nil, hberrors.ErrorFromGormError(err)
	}
	return &setting, nil
}

func (s *DeviceStore) SetTelemetryInterval(ctx context.Context, deviceID int64, intervalMS int) error {
	if _, err := s.GetRuntimeSetting(ctx, deviceID); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&model.DeviceRuntimeSetting{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{"telemetry_interval_ms": intervalMS, "updated_at": time.Now().UTC()})
	return hberrors.ErrorFromGormError(result.Error)
}
