package store

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
)

type Entity interface {
	Upsert(ctx context.Context, entity *model.Entity) (*model.Entity, error)
	List(ctx context.Context, entityType *string) ([]model.Entity, error)
	Get(ctx context.Context, entityID string) (*model.Entity, error)
	Bindings(ctx context.Context, entityID string) ([]model.EntityDeviceBinding, error)
	BindDevice(ctx context.Context, binding *model.EntityDeviceBinding) error
	InitialMigration() error
}

type EntityStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

var _ Entity = (*EntityStore)(nil)

func NewEntity(db *gorm.DB, log logrus.FieldLogger) Entity {
	return &EntityStore{db: db, log: log}
}

func (s *EntityStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Entity{}, &model.EntityDeviceBinding{})
}

func (s *EntityStore) Upsert(ctx context.Context, entity *model.Entity) (*model.Entity, error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "name", "tags", "health_last_seen_at", "health_status"}),
	}).Create(entity)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return entity, nil
}

func (s *EntityStore) List(ctx context.Context, entityType *string) ([]model.Entity, error) {
	query := s.db.WithContext(ctx).Order("entity_id ASC")
	if entityType != nil {
		query = query.Where("type = ?", *entityType)
	}
	var entities []model.Entity
	if result := query.Find(&entities); result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return entities, nil
}

func (s *EntityStore) Get(ctx context.Context, entityID string) (*model.Entity, error) {
	var entity model.Entity
	result := s.db.WithContext(ctx).Where("entity_id = ?", entityID).First(&entity)
	if result.Error != nil {
		if hberrors.ErrorFromGormError(result.Error) == hberrors.ErrResourceNotFound {
			return nil, hberrors.ErrEntityNotFound
		}
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &entity, nil
}

func (s *EntityStore) Bindings(ctx context.Context, entityID string) ([]model.EntityDeviceBinding, error) {
	var bindings []model.EntityDeviceBinding
	result := s.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("priority DESC, device_id ASC").
		Find(&bindings)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return bindings, nil
}

func (s *EntityStore) BindDevice(ctx context.Context, binding *model.EntityDeviceBinding) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_id"}, {Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "priority"}),
	}).Create(binding)
	if result.Error != nil {
		return hberrors.ErrorFromGormError(result.Error)
	}
	return nil
}
