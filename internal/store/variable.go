package store

import (
	"context"
	"time"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ValueWrite carries everything one variable write needs: the target layer,
// the coerced value, the optimistic version guard and the audit actor.
type ValueWrite struct {
	VariableKey     string
	Scope           string
	DeviceID        *int64
	UserID          *int64
	NewValue        model.JSON
	ExpectedVersion *int

	ActorType     string
	ActorUserID   *int64
	ActorDeviceID *int64
	RequestID     *string
	Note          *string

	// MaskAudit stores "***" in the audit row instead of the real old/new
	// values. Set for secret definitions.
	MaskAudit bool
}

// DeriveEffectsFunc turns a committed write into zero or more effect jobs.
// It runs inside the write transaction so effects land atomically with the
// value and its audit row.
type DeriveEffectsFunc func(auditID int64, value *model.VariableValue) ([]model.VariableEffect, error)

type Variable interface {
	CreateDefinition(ctx context.Context, def *model.VariableDefinition) (*model.VariableDefinition, error)
	GetDefinition(ctx context.Context, key string) (*model.VariableDefinition, error)
	ListDefinitions(ctx context.Context, scope *string) ([]model.VariableDefinition, error)
	GetValue(ctx context.Context, key, scope string, deviceID, userID *int64) (*model.VariableValue, error)
	ListValues(ctx context.Context, userID, deviceID *int64) ([]model.VariableValue, error)
	UpsertValue(ctx context.Context, write ValueWrite, derive DeriveEffectsFunc) (*model.VariableValue, error)
	ListAudits(ctx context.Context, key *string, limit int) ([]model.VariableAudit, error)
	InitialMigration() error
}

type VariableStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

var _ Variable = (*VariableStore)(nil)

func NewVariable(db *gorm.DB, log logrus.FieldLogger) Variable {
	return &VariableStore{db: db, log: log}
}

func (s *VariableStore) InitialMigration() error {
	if err := s.db.AutoMigrate(&model.VariableDefinition{}, &model.VariableValue{}, &model.VariableAudit{}); err != nil {
		return err
	}

	// One stored value per layer. NULL device/user ids must compare equal,
	// so the uniqueness runs over COALESCEd expressions.
	return s.db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_variable_values_layer ON variable_values (variable_key, scope, COALESCE(device_id, 0), COALESCE(user_id, 0))",
	).Error
}

func (s *VariableStore) CreateDefinition(ctx context.Context, def *model.VariableDefinition) (*model.VariableDefinition, error) {
	result := s.db.WithContext(ctx).Create(def)
	if result.Error != nil {
		if hberrors.ErrorFromGormError(result.Error) == hberrors.ErrDuplicateKey {
			return nil, hberrors.ErrVarDefExists
		}
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return def, nil
}

func (s *VariableStore) GetDefinition(ctx context.Context, key string) (*model.VariableDefinition, error) {
	var def model.VariableDefinition
	result := s.db.WithContext(ctx).Where("key = ?", key).First(&def)
	if result.Error != nil {
		if hberrors.ErrorFromGormError(result.Error) == hberrors.ErrResourceNotFound {
			return nil, hberrors.ErrVarDefNotFound
		}
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &def, nil
}

func (s *VariableStore) ListDefinitions(ctx context.Context, scope *string) ([]model.VariableDefinition, error) {
	var defs []model.VariableDefinition
	query := s.db.WithContext(ctx).Order("key")
	if scope != nil {
		query = query.Where("scope = ?", *scope)
	}
	if result := query.Find(&defs); result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return defs, nil
}

func layerClause(db *gorm.DB, key, scope string, deviceID, userID *int64) *gorm.DB {
	db = db.Where("variable_key = ? AND scope = ?", key, scope)
	if deviceID != nil {
		db = db.Where("device_id = ?", *deviceID)
	} else {
		db = db.Where("device_id IS NULL")
	}
	if userID != nil {
		db = db.Where("user_id = ?", *userID)
	} else {
		db = db.Where("user_id IS NULL")
	}
	return db
}

func (s *VariableStore) GetValue(ctx context.Context, key, scope string, deviceID, userID *int64) (*model.VariableValue, error) {
	var value model.VariableValue
	result := layerClause(s.db.WithContext(ctx), key, scope, deviceID, userID).First(&value)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &value, nil
}

// ListValues fetches every layer row that can contribute to the effective
// view of (user, device): all global rows, the user's rows, the device's rows.
func (s *VariableStore) ListValues(ctx context.Context, userID, deviceID *int64) ([]model.VariableValue, error) {
	var values []model.VariableValue
	query := s.db.WithContext(ctx).Where("scope = ?", model.ScopeGlobal)
	if userID != nil {
		query = query.Or(s.db.Where("scope = ? AND user_id = ?", model.ScopeUser, *userID))
	}
	if deviceID != nil {
		query = query.Or(s.db.Where("scope = ? AND device_id = ?", model.ScopeDevice, *deviceID))
	}
	if result := query.Find(&values); result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return values, nil
}

var maskedJSON = model.JSON(`"***"`)

// UpsertValue writes one layer value with optimistic concurrency, records the
// audit row and enqueues derived effects, all in one transaction. On a
// version mismatch the current row is returned together with
// ErrVarVersionConflict so callers can report the live version.
func (s *VariableStore) UpsertValue(ctx context.Context, write ValueWrite, derive DeriveEffectsFunc) (*model.VariableValue, error) {
	var (
		value    model.VariableValue
		conflict *model.VariableValue
	)
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing *model.VariableValue
		var row model.VariableValue
		result := layerClause(forUpdate(tx), write.VariableKey, write.Scope, write.DeviceID, write.UserID).First(&row)
		if result.Error != nil {
			if hberrors.ErrorFromGormError(result.Error) != hberrors.ErrResourceNotFound {
				return hberrors.ErrorFromGormError(result.Error)
			}
		} else {
			existing = &row
		}

		currentVersion := 0
		if existing != nil {
			currentVersion = existing.Version
		}
		if write.ExpectedVersion != nil && *write.ExpectedVersion != currentVersion {
			if existing != nil {
				conflict = existing
			} else {
				conflict = &model.VariableValue{Version: 0}
			}
			return hberrors.ErrVarVersionConflict
		}

		if existing == nil {
			value = model.VariableValue{
				VariableKey:       write.VariableKey,
				Scope:             write.Scope,
				DeviceID:          write.DeviceID,
				UserID:            write.UserID,
				ValueJSON:         write.NewValue,
				Version:           1,
				UpdatedAt:         now,
				UpdatedByUserID:   write.ActorUserID,
				UpdatedByDeviceID: write.ActorDeviceID,
			}
			if err := tx.Create(&value).Error; err != nil {
				return hberrors.ErrorFromGormError(err)
			}
		} else {
			updates := map[string]any{
				"value_json":           write.NewValue,
				"version":              existing.Version + 1,
				"updated_at":           now,
				"updated_by_user_id":   write.ActorUserID,
				"updated_by_device_id": write.ActorDeviceID,
			}
			if err := tx.Model(&model.VariableValue{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return hberrors.ErrorFromGormError(err)
			}
			value = *existing
			value.ValueJSON = write.NewValue
			value.Version = existing.Version + 1
			value.UpdatedAt = now
			value.UpdatedByUserID = write.ActorUserID
			value.UpdatedByDeviceID = write.ActorDeviceID
		}

		audit := model.VariableAudit{
			VariableKey:   write.VariableKey,
			Scope:         write.Scope,
			DeviceID:      write.DeviceID,
			UserID:        write.UserID,
			NewVersion:    &value.Version,
			ActorType:     write.ActorType,
			ActorUserID:   write.ActorUserID,
			ActorDeviceID: write.ActorDeviceID,
			RequestID:     write.RequestID,
			Note:          write.Note,
			CreatedAt:     now,
		}
		if existing != nil {
			audit.OldVersion = &existing.Version
		}
		if write.MaskAudit {
			audit.NewValueJSON = maskedJSON
			if existing != nil && existing.ValueJSON != nil {
				audit.OldValueJSON = maskedJSON
			}
		} else {
			audit.NewValueJSON = write.NewValue
			if existing != nil {
				audit.OldValueJSON = existing.ValueJSON
			}
		}
		if err := tx.Create(&audit).Error; err != nil {
			return hberrors.ErrorFromGormError(err)
		}

		if derive != nil {
			effects, err := derive(audit.ID, &value)
			if err != nil {
				return err
			}
			for i := range effects {
				if err := tx.Create(&effects[i]).Error; err != nil {
					return hberrors.ErrorFromGormError(err)
				}
			}
		}
		return nil
	})
	if err != nil {
		if err == hberrors.ErrVarVersionConflict {
			return conflict, err
		}
		return nil, err
	}
	return &value, nil
}

func (s *VariableStore) ListAudits(ctx context.Context, key *string, limit int) ([]model.VariableAudit, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var audits []model.VariableAudit
	query := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if key != nil {
		query = query.Where("variable_key = ?", *key)
	}
	if result := query.Find(&audits); result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return audits, nil
}
