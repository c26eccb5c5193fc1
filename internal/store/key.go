package store

import (
	"context"
	"crypto"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentfleet/task-planner/internal/store/model"
)

type Key interface {
	Create(ctx context.Context, key model.Key) (*model.Key, error)
	Delete(ctx context.Context, jobID string) error
	GetPublicKey(ctx context.Context, kid string) (crypto.PublicKey, error)
	InitialMigration() error
}

type KeyStore struct {
	db *gorm.DB
}

var _ Key = (*KeyStore)(nil)

func NewKey(db *gorm.DB) Key {
	return &KeyStore{db: db}
}

func (s *KeyStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Key{})
}

func (s *KeyStore) Create(ctx context.Context, key model.Key) (*model.Key, error) {
	result := s.getDB(ctx).Clauses(clause.Returning{}).Create(&key)
	if result.Error != nil {
		return nil, result.Error
	}
	return &key, nil
}

func (s *KeyStore) Delete(ctx context.Context, jobID string) error {
	result := s.getDB(ctx).Where("job_id = ?", jobID).Delete(&model.Key{})
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (s *KeyStore) GetPublicKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	key := model.Key{}
	if err := s.getDB(ctx).Where("id = ?", kid).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return key.PrivateKey.PublicKey, nil
}

func (s *KeyStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
