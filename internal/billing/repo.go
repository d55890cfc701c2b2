package billing

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
	"github.com/threadloom/royaltyhub-backend/pkg/enums"
)

// Repository handles subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, subscription *models.RoyaltySubscription) error
	Update(ctx context.Context, subscription *models.RoyaltySubscription) error
	FindActiveByShop(ctx context.Context, shop string) (*models.RoyaltySubscription, error)
	FindByChargeID(ctx context.Context, chargeID string) (*models.RoyaltySubscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, subscription *models.RoyaltySubscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) Update(ctx context.Context, subscription *models.RoyaltySubscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindActiveByShop(ctx context.Context, shop string) (*models.RoyaltySubscription, error) {
	var subscription models.RoyaltySubscription
	if err := r.db.WithContext(ctx).
		Where("shop = ? AND status = ?", shop, enums.SubscriptionStatusActive).
		Order("created_at DESC").
		First(&subscription).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) FindByChargeID(ctx context.Context, chargeID string) (*models.RoyaltySubscription, error) {
	var subscription models.RoyaltySubscription
	if err := r.db.WithContext(ctx).
		Where("charge_id = ?", chargeID).
		First(&subscription).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}
