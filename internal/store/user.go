package store

import (
	"context"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type User interface {
	Create(ctx context.Context, user *model.User) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	RevokeToken(ctx context.Context, jti string, reason *string) (bool, error)
	InitialMigration() error
}

type UserStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

var _ User = (*UserStore)(nil)

func NewUser(db *gorm.DB, log logrus.FieldLogger) User {
	return &UserStore{db: db, log: log}
}

func (s *UserStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.User{}, &model.RevokedToken{})
}

func (s *UserStore) Create(ctx context.Context, user *model.User) (*model.User, error) {
	result := s.db.WithContext(ctx).Create(user)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return user, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	result := s.db.WithContext(ctx).First(&user, id)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &user, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	result := s.db.WithContext(ctx).Where("email = ?", email).First(&user)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &user, nil
}

func (s *UserStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&model.RevokedToken{}).Where("jti = ?", jti).Count(&count)
	if result.Error != nil {
		return false, hberrors.ErrorFromGormError(result.Error)
	}
	return count > 0, nil
}

func (s *UserStore) RevokeToken(ctx context.Context, jti string, reason *string) (bool, error) {
	revoked := model.RevokedToken{JTI: jti, Reason: reason}
	result := s.db.WithContext(ctx).Create(&revoked)
	if result.Error != nil {
		err := hberrors.ErrorFromGormError(result.Error)
		if err == hberrors.ErrDuplicateKey {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
