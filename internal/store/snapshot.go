package store

import (
	"context"
	"time"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Snapshot interface {
	Create(ctx context.Context, snapshot *model.VariableSnapshot, items []model.VariableSnapshotItem) (*model.VariableSnapshot, error)
	Get(ctx context.Context, id string) (*model.VariableSnapshot, error)
	Items(ctx context.Context, snapshotID string) ([]model.VariableSnapshotItem, error)
	InsertAcks(ctx context.Context, snapshot *model.VariableSnapshot, acks []model.VariableAppliedAck) (applied int, failed int, err error)
	InitialMigration() error
}

type SnapshotStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

var _ Snapshot = (*SnapshotStore)(nil)

func NewSnapshot(db *gorm.DB, log logrus.FieldLogger) Snapshot {
	return &SnapshotStore{db: db, log: log}
}

func (s *SnapshotStore) InitialMigration() error {
	if err := s.db.AutoMigrate(&model.VariableSnapshot{}, &model.VariableSnapshotItem{}, &model.VariableAppliedAck{}); err != nil {
		return err
	}

	// Duplicate ack submissions must no-op; NULL versions compare as -1.
	return s.db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_variable_applied_acks ON variable_applied_acks (snapshot_id, device_id, variable_key, COALESCE(version, -1))",
	).Error
}

// Create persists the snapshot and its items. For device-targeted snapshots
// it also allocates the next per-device effective_rev under the runtime
// setting row lock, so revs stay monotonic per device.
func (s *SnapshotStore) Create(ctx context.Context, snapshot *model.VariableSnapshot, items []model.VariableSnapshotItem) (*model.VariableSnapshot, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if snapshot.DeviceID != nil {
			rev, err := s.nextEffectiveRev(tx, *snapshot.DeviceID)
			if err != nil {
				return err
			}
			snapshot.EffectiveRev = &rev
		}

		if err := tx.Create(snapshot).Error; err != nil {
			return hberrors.ErrorFromGormError(err)
		}
		for i := range items {
			items[i].SnapshotID = snapshot.ID
			if err := tx.Create(&items[i]).Error; err != nil {
				return hberrors.ErrorFromGormError(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *SnapshotStore) nextEffectiveRev(tx *gorm.DB, deviceID int64) (int64, error) {
	var setting model.DeviceRuntimeSetting
	now := time.Now().UTC()

	result := forUpdate(tx).Where("device_id = ?", deviceID).First(&setting)
	if result.Error != nil {
		if hberrors.ErrorFromGormError(result.Error) != hberrors.ErrResourceNotFound {
			return 0, hberrors.ErrorFromGormError(result.Error)
		}
		rev := int64(1)
		setting = model.DeviceRuntimeSetting{DeviceID: deviceID, LastEffectiveRev: &rev, UpdatedAt: now}
		if err := tx.Create(&setting).Error; err != nil {
			return 0, hberrors.ErrorFromGormError(err)
		}
		return rev, nil
	}

	rev := int64(1)
	if setting.LastEffectiveRev != nil {
		rev = *setting.LastEffectiveRev + 1
	}
	err := tx.Model(&model.DeviceRuntimeSetting{}).Where("device_id = ?", deviceID).
		Updates(map[string]any{"last_effective_rev": rev, "updated_at": now}).Error
	if err != nil {
		return 0, hberrors.ErrorFromGormError(err)
	}
	return rev, nil
}

func (s *SnapshotStore) Get(ctx context.Context, id string) (*model.VariableSnapshot, error) {
	var snapshot model.VariableSnapshot
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&snapshot)
	if result.Error != nil {
		if hberrors.ErrorFromGormError(result.Error) == hberrors.ErrResourceNotFound {
			return nil, hberrors.ErrSnapshotNotFound
		}
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &snapshot, nil
}

func (s *SnapshotStore) Items(ctx context.Context, snapshotID string) ([]model.VariableSnapshotItem, error) {
	var items []model.VariableSnapshotItem
	result := s.db.WithContext(ctx).
		Where("snapshot_id = ?", snapshotID).
		Order("variable_key").
		Find(&items)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return items, nil
}

// InsertAcks records apply results idempotently; replays hit the unique index
// and count as zero. When every non-secret snapshot item has an ack, the
// device's rev watermarks advance to the snapshot's effective_rev.
func (s *SnapshotStore) InsertAcks(ctx context.Context, snapshot *model.VariableSnapshot, acks []model.VariableAppliedAck) (int, int, error) {
	var applied, failed int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range acks {
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&acks[i])
			if result.Error != nil {
				return hberrors.ErrorFromGormError(result.Error)
			}
			if result.RowsAffected > 0 {
				if acks[i].Status == model.AckStatusApplied {
					applied++
				} else {
					failed++
				}
			}
		}
		if snapshot.DeviceID == nil || snapshot.EffectiveRev == nil {
			return nil
		}
		return s.advanceWatermarks(tx, snapshot)
	})
	if err != nil {
		return 0, 0, err
	}
	return applied, failed, nil
}

func (s *SnapshotStore) advanceWatermarks(tx *gorm.DB, snapshot *model.VariableSnapshot) error {
	var pending int64
	err := tx.Model(&model.VariableSnapshotItem{}).
		Where("snapshot_id = ? AND is_secret = ?", snapshot.ID, false).
		Where("variable_key NOT IN (?)",
			tx.Model(&model.VariableAppliedAck{}).
				Select("variable_key").
				Where("snapshot_id = ? AND device_id = ?", snapshot.ID, *snapshot.DeviceID),
		).
		Count(&pending).Error
	if err != nil {
		return hberrors.ErrorFromGormError(err)
	}
	if pending > 0 {
		return nil
	}

	var allApplied int64
	err = tx.Model(&model.VariableAppliedAck{}).
		Where("snapshot_id = ? AND device_id = ? AND status <> ?", snapshot.ID, *snapshot.DeviceID, model.AckStatusApplied).
		Count(&allApplied).Error
	if err != nil {
		return hberrors.ErrorFromGormError(err)
	}

	updates := map[string]any{
		"last_acked_rev": gorm.Expr("CASE WHEN last_acked_rev IS NULL OR last_acked_rev < ? THEN ? ELSE last_acked_rev END", *snapshot.EffectiveRev, *snapshot.EffectiveRev),
		"updated_at":     time.Now().UTC(),
	}
	if allApplied == 0 {
		updates["last_applied_rev"] = gorm.Expr("CASE WHEN last_applied_rev IS NULL OR last_applied_rev < ? THEN ? ELSE last_applied_rev END", *snapshot.EffectiveRev, *snapshot.EffectiveRev)
	}
	err = tx.Model(&model.DeviceRuntimeSetting{}).
		Where("device_id = ?", *snapshot.DeviceID).
		Updates(updates).Error
	return hberrors.ErrorFromGormError(err)
}
