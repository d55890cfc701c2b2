package assignments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
)

// ActiveAssignmentConstraint is the partial unique index that keeps at
// most one unarchived assignment per (shop, product).
const ActiveAssignmentConstraint = "royalty_assignments_active_product"

// Repository handles royalty assignment persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, assignment *models.RoyaltyAssignment) error
	Update(ctx context.Context, assignment *models.RoyaltyAssignment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RoyaltyAssignment, error)
	FindActiveByProduct(ctx context.Context, shop, productID string) (*models.RoyaltyAssignment, error)
	FindActiveByProductIDs(ctx context.Context, shop string, productIDs []string) ([]models.RoyaltyAssignment, error)
	ListByShop(ctx context.Context, shop string, includeArchived bool) ([]models.RoyaltyAssignment, error)
	IncrementEarnings(ctx context.Context, id uuid.UUID, units int64, amount, usd string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an assignments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, assignment *models.RoyaltyAssignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *repository) Update(ctx context.Context, assignment *models.RoyaltyAssignment) error {
	return r.db.WithContext(ctx).Save(assignment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RoyaltyAssignment, error) {
	var assignment models.RoyaltyAssignment
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&assignment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &assignment, nil
}

func (r *repository) FindActiveByProduct(ctx context.Context, shop, productID string) (*models.RoyaltyAssignment, error) {
	var assignment models.RoyaltyAssignment
	if err := r.db.WithContext(ctx).
		Where("shop = ? AND product_id = ? AND archived = ?", shop, productID, false).
		First(&assignment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &assignment, nil
}

// FindActiveByProductIDs resolves unarchived assignments for a batch of
// product ids. Both the raw numeric and the platform-qualified forms of
// each id are matched, since webhook payloads and admin writes differ in
// which form they carry.
func (r *repository) FindActiveByProductIDs(ctx context.Context, shop string, productIDs []string) ([]models.RoyaltyAssignment, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	candidates := make([]string, 0, len(productIDs)*2)
	seen := make(map[string]struct{}, len(productIDs)*2)
	for _, id := range productIDs {
		for _, form := range []string{models.NumericProductID(id), models.ProductGID(id)} {
			if _, ok := seen[form]; ok {
				continue
			}
			seen[form] = struct{}{}
			candidates = append(candidates, form)
		}
	}

	var results []models.RoyaltyAssignment
	if err := r.db.WithContext(ctx).
		Where("shop = ? AND archived = ? AND (product_id IN ? OR shopify_gid IN ?)",
			shop, false, candidates, candidates).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *repository) ListByShop(ctx context.Context, shop string, includeArchived bool) ([]models.RoyaltyAssignment, error) {
	query := r.db.WithContext(ctx).Where("shop = ?", shop)
	if !includeArchived {
		query = query.Where("archived = ?", false)
	}

	var results []models.RoyaltyAssignment
	if err := query.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// IncrementEarnings applies sale counters atomically at the row so
// concurrent order processing cannot lose updates. Amounts are passed as
// strings to keep decimal precision out of float conversion.
func (r *repository) IncrementEarnings(ctx context.Context, id uuid.UUID, units int64, amount, usd string) error {
	return r.db.WithContext(ctx).
		Model(&models.RoyaltyAssignment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"units_sold":    gorm.Expr("units_sold + ?", units),
			"earned_amount": gorm.Expr("earned_amount + ?", amount),
			"earned_usd":    gorm.Expr("earned_usd + ?", usd),
			"updated_at":    time.Now().UTC(),
		}).Error
}
