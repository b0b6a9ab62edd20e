package store

import (
	"context"
	"time"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const effectLockDuration = 30 * time.Second

type Effect interface {
	Enqueue(ctx context.Context, effect *model.VariableEffect) (*model.VariableEffect, error)
	Get(ctx context.Context, id string) (*model.VariableEffect, error)
	List(ctx context.Context, status *string, limit int) ([]model.VariableEffect, error)
	LeasePending(ctx context.Context, limit int, lockedBy string) ([]model.VariableEffect, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, attempts int, errJSON []byte) error
	InitialMigration() error
}

type EffectStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

var _ Effect = (*EffectStore)(nil)

func NewEffect(db *gorm.DB, log logrus.FieldLogger) Effect {
	return &EffectStore{db: db, log: log}
}

func (s *EffectStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.VariableEffect{})
}

func (s *EffectStore) Enqueue(ctx context.Context, effect *model.VariableEffect) (*model.VariableEffect, error) {
	result := s.db.WithContext(ctx).Create(effect)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return effect, nil
}

func (s *EffectStore) Get(ctx context.Context, id string) (*model.VariableEffect, error) {
	var effect model.VariableEffect
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&effect)
	if result.Error != nil {
		if hberrors.ErrorFromGormError(result.Error) == hberrors.ErrResourceNotFound {
			return nil, hberrors.ErrEffectNotFound
		}
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &effect, nil
}

func (s *EffectStore) List(ctx context.Context, status *string, limit int) ([]model.VariableEffect, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var effects []model.VariableEffect
	query := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if result := query.Find(&effects); result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return effects, nil
}

// LeasePending claims up to limit runnable effects: pending or failed, due,
// and not locked by a live worker. Claiming marks the row in_flight, counts
// the attempt and stamps a short lock so a crashed worker only delays the
// row, never strands it.
func (s *EffectStore) LeasePending(ctx context.Context, limit int, lockedBy string) ([]model.VariableEffect, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	var claimed []model.VariableEffect
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		var candidates []model.VariableEffect
		query := tx.
			Where("status IN ?", []string{model.EffectStatusPending, model.EffectStatusFailed}).
			Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
			Where("locked_until IS NULL OR locked_until <= ?", now).
			Order("created_at ASC").
			Limit(limit)
		if result := forUpdateSkipLocked(query).Find(&candidates); result.Error != nil {
			return hberrors.ErrorFromGormError(result.Error)
		}

		lockedUntil := now.Add(effectLockDuration)
		for i := range candidates {
			attempts := candidates[i].Attempts + 1
			updates := map[string]any{
				"status":       model.EffectStatusInFlight,
				"attempts":     attempts,
				"locked_until": lockedUntil,
				"locked_by":    lockedBy,
				"updated_at":   now,
			}
			if err := tx.Model(&model.VariableEffect{}).Where("id = ?", candidates[i].ID).Updates(updates).Error; err != nil {
				return hberrors.ErrorFromGormError(err)
			}
			candidates[i].Status = model.EffectStatusInFlight
			candidates[i].Attempts = attempts
			candidates[i].LockedUntil = &lockedUntil
			candidates[i].LockedBy = &lockedBy
		}
		claimed = candidates
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *EffectStore) MarkDone(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&model.VariableEffect{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       model.EffectStatusDone,
			"error":        nil,
			"locked_until": nil,
			"locked_by":    nil,
			"updated_at":   time.Now().UTC(),
		})
	return hberrors.ErrorFromGormError(result.Error)
}

// MarkFailed records one failed attempt. Five or more attempts park the
// effect as dead; otherwise it retries with exponential backoff capped at
// five minutes.
func (s *EffectStore) MarkFailed(ctx context.Context, id string, attempts int, errJSON []byte) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"locked_until": nil,
		"locked_by":    nil,
		"updated_at":   now,
	}
	if errJSON != nil {
		updates["error"] = model.JSON(errJSON)
	}
	if attempts >= 5 {
		updates["status"] = model.EffectStatusDead
	} else {
		updates["status"] = model.EffectStatusFailed
		updates["next_attempt_at"] = now.Add(EffectBackoff(attempts))
	}
	result := s.db.WithContext(ctx).Model(&model.VariableEffect{}).
		Where("id = ?", id).
		Updates(updates)
	return hberrors.ErrorFromGormError(result.Error)
}

// EffectBackoff is min(300, 2^min(attempts, 6)) seconds.
func EffectBackoff(attempts int) time.Duration {
	exp := attempts
	if exp > 6 {
		exp = 6
	}
	seconds := 1 << exp
	if seconds > 300 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}
