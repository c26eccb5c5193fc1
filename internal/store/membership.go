package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentfleet/task-planner/internal/store/model"
)

type Membership interface {
	Get(ctx context.Context, id string) (*model.Membership, error)
	GetByEmail(ctx context.Context, email string) (*model.Membership, error)
	ListByTenant(ctx context.Context, tenantID string) (model.MembershipList, error)
	Create(ctx context.Context, membership model.Membership) (*model.Membership, error)
	Delete(ctx context.Context, id string) error
	Claim(ctx context.Context, placeholderID string, membership model.Membership) (*model.Membership, error)
	InitialMigration() error
}

type MembershipStore struct {
	db *gorm.DB
}

var _ Membership = (*MembershipStore)(nil)

func NewMembership(db *gorm.DB) Membership {
	return &MembershipStore{db: db}
}

func (s *MembershipStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Membership{})
}

func (s *MembershipStore) Get(ctx context.Context, id string) (*model.Membership, error) {
	var membership model.Membership
	result := s.getDB(ctx).Where("id = ?", id).First(&membership)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &membership, nil
}

func (s *MembershipStore) GetByEmail(ctx context.Context, email string) (*model.Membership, error) {
	var membership model.Membership
	result := s.getDB(ctx).Where("email = ?", email).First(&membership)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &membership, nil
}

func (s *MembershipStore) ListByTenant(ctx context.Context, tenantID string) (model.MembershipList, error) {
	var memberships model.MembershipList
	result := s.getDB(ctx).Where("tenant_id = ?", tenantID).Order("created_at").Find(&memberships)
	if result.Error != nil {
		return nil, result.Error
	}
	return memberships, nil
}

// Create inserts a membership and fails with ErrDuplicateKey if a record
// with the same id or email already exists. It never overwrites: the
// losing side of a registration race must re-read the winner's record.
func (s *MembershipStore) Create(ctx context.Context, membership model.Membership) (*model.Membership, error) {
	result := s.getDB(ctx).Create(&membership)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &membership, nil
}

func (s *MembershipStore) Delete(ctx context.Context, id string) error {
	result := s.getDB(ctx).Where("id = ?", id).Delete(&model.Membership{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Claim replaces a pending invitation placeholder with an active record
// keyed by the real subject id. Callers run it inside a transaction
// context (NewTransactionContext) so the delete and the insert land
// together or not at all.
func (s *MembershipStore) Claim(ctx context.Context, placeholderID string, membership model.Membership) (*model.Membership, error) {
	db := s.getDB(ctx)

	result := db.Where("id = ? AND status = ?", placeholderID, model.MembershipPending).Delete(&model.Membership{})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	if err := db.Clauses(clause.Returning{}).Create(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &membership, nil
}

func (s *MembershipStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
