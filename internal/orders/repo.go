package orders

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
)

// ShopOrderConstraint is the unique index that makes order recording
// idempotent under webhook redelivery.
const ShopOrderConstraint = "royalty_orders_shop_order_id"

// Repository handles royalty order persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.RoyaltyOrder) error
	FindByShopAndOrderID(ctx context.Context, shop, orderID string) (*models.RoyaltyOrder, error)
	ListByShop(ctx context.Context, shop string, limit int) ([]models.RoyaltyOrder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.RoyaltyOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByShopAndOrderID(ctx context.Context, shop, orderID string) (*models.RoyaltyOrder, error) {
	var order models.RoyaltyOrder
	if err := r.db.WithContext(ctx).
		Where("shop = ? AND order_id = ?", shop, orderID).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByShop(ctx context.Context, shop string, limit int) ([]models.RoyaltyOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	var results []models.RoyaltyOrder
	if err := r.db.WithContext(ctx).
		Where("shop = ?", shop).
		Order("order_created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
