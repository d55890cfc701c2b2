package transactions

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
	"github.com/threadloom/royaltyhub-backend/pkg/enums"
)

// IdempotencyConstraint is the compound unique index that suppresses
// double-billing under webhook redelivery.
const IdempotencyConstraint = "royalty_transactions_idempotency"

// Repository handles royalty transaction persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transaction *models.RoyaltyTransaction) error
	Exists(ctx context.Context, shop, orderID, productID, designerID string) (bool, error)
	ListByOrder(ctx context.Context, shop, orderID string) ([]models.RoyaltyTransaction, error)
	ListByShop(ctx context.Context, shop string, limit int) ([]models.RoyaltyTransaction, error)
	LatestSucceeded(ctx context.Context, shop string) (*models.RoyaltyTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transactions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, transaction *models.RoyaltyTransaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

func (r *repository) Exists(ctx context.Context, shop, orderID, productID, designerID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.RoyaltyTransaction{}).
		Where("shop = ? AND order_id = ? AND product_id = ? AND designer_id = ?",
			shop, orderID, productID, designerID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListByOrder(ctx context.Context, shop, orderID string) ([]models.RoyaltyTransaction, error) {
	var results []models.RoyaltyTransaction
	if err := r.db.WithContext(ctx).
		Where("shop = ? AND order_id = ?", shop, orderID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *repository) ListByShop(ctx context.Context, shop string, limit int) ([]models.RoyaltyTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var results []models.RoyaltyTransaction
	if err := r.db.WithContext(ctx).
		Where("shop = ?", shop).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// LatestSucceeded returns the newest accepted charge, which carries the
// freshest balance snapshot from the billing platform.
func (r *repository) LatestSucceeded(ctx context.Context, shop string) (*models.RoyaltyTransaction, error) {
	var transaction models.RoyaltyTransaction
	if err := r.db.WithContext(ctx).
		Where("shop = ? AND status = ?", shop, enums.TransactionStatusSuccess).
		Order("created_at DESC").
		First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}
