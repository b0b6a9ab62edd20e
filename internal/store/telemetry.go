package store

import (
	"context"
	"time"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Telemetry interface {
	Insert(ctx context.Context, event *model.DeviceTelemetry) (*model.DeviceTelemetry, error)
	Recent(ctx context.Context, deviceID int64, limit int) ([]model.DeviceTelemetry, error)
	InitialMigration() error
}

type TelemetryStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

var _ Telemetry = (*TelemetryStore)(nil)

func NewTelemetry(db *gorm.DB, log logrus.FieldLogger) Telemetry {
	return &TelemetryStore{db: db, log: log}
}

func (s *TelemetryStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.DeviceTelemetry{})
}

func (s *TelemetryStore) Insert(ctx context.Context, event *model.DeviceTelemetry) (*model.DeviceTelemetry, error) {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	result := s.db.WithContext(ctx).Create(event)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return event, nil
}

// Recent returns the newest events first; callers reverse when they need
// chronological order.
func (s *TelemetryStore) Recent(ctx context.Context, deviceID int64, limit int) ([]model.DeviceTelemetry, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []model.DeviceTelemetry
	result := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("received_at DESC, id DESC").
		Limit(limit).
		Find(&events)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return events, nil
}
