package assignments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/threadloom/royaltyhub-backend/internal/currency"
	pkgdb "github.com/threadloom/royaltyhub-backend/pkg/db"
	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
	"github.com/threadloom/royaltyhub-backend/pkg/types"
)

// designerIDPattern is the registry format for designer accounts.
var designerIDPattern = regexp.MustCompile(`^RA\d{9}$`)

var maxPercentage = decimal.NewFromInt(100)

// ServiceParams groups dependencies for the assignments service.
type ServiceParams struct {
	Repo      Repository
	Converter *currency.Converter
	Logger    *logger.Logger
}

// Service manages product royalty assignments.
type Service struct {
	repo      Repository
	converter *currency.Converter
	logger    *logger.Logger
}

// NewService builds an assignments service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Converter == nil {
		return nil, errors.New("converter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		repo:      params.Repo,
		converter: params.Converter,
		logger:    params.Logger,
	}, nil
}

// CreateParams describes a new royalty assignment.
type CreateParams struct {
	Shop          string
	ProductID     string
	Title         string
	Image         *string
	DesignerID    string
	Percentage    decimal.Decimal
	Expiry        *time.Time
	Price         decimal.Decimal
	PriceCurrency string
	StoreCurrency string
}

// Create assigns a designer to a product. At most one active assignment
// may exist per product; a conflicting create fails and names the
// designer already holding the product.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.RoyaltyAssignment, error) {
	if params.Shop == "" || params.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop and product id are required")
	}
	if !designerIDPattern.MatchString(params.DesignerID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			"designer id must match RA followed by nine digits")
	}
	if err := validatePercentage(params.Percentage); err != nil {
		return nil, err
	}

	productID := models.NumericProductID(params.ProductID)

	if existing, err := s.repo.FindActiveByProduct(ctx, params.Shop, productID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing assignment")
	} else if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("product already assigned to designer %s", existing.DesignerID))
	}

	assignment := &models.RoyaltyAssignment{
		Shop:       params.Shop,
		ProductID:  productID,
		ShopifyGID: models.ProductGID(params.ProductID),
		Title:      params.Title,
		Image:      params.Image,
		DesignerID: params.DesignerID,
		Percentage: params.Percentage,
		Expiry:     params.Expiry,
		Price:      s.snapshotPrice(ctx, params),
	}

	if err := s.repo.Create(ctx, assignment); err != nil {
		// A concurrent create can slip past the pre-check; the partial
		// unique index is the real arbiter.
		if pkgdb.IsUniqueViolation(err, ActiveAssignmentConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already has an active assignment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create assignment")
	}

	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"shop":        assignment.Shop,
		"product_id":  assignment.ProductID,
		"designer_id": assignment.DesignerID,
	}), "royalty assignment created")
	return assignment, nil
}

// UpdateParams carries partial edits to an assignment. Nil fields are
// left unchanged.
type UpdateParams struct {
	Title       *string
	Image       *string
	Percentage  *decimal.Decimal
	Expiry      *time.Time
	ClearExpiry bool
}

// Update edits an existing assignment in place.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*models.RoyaltyAssignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find assignment")
	}
	if assignment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
	}

	if params.Percentage != nil {
		if err := validatePercentage(*params.Percentage); err != nil {
			return nil, err
		}
		assignment.Percentage = *params.Percentage
	}
	if params.Title != nil {
		assignment.Title = *params.Title
	}
	if params.Image != nil {
		assignment.Image = params.Image
	}
	if params.ClearExpiry {
		assignment.Expiry = nil
	} else if params.Expiry != nil {
		assignment.Expiry = params.Expiry
	}

	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update assignment")
	}
	return assignment, nil
}

// Toggle flips the archived flag. Unarchiving fails when another active
// assignment has taken the product in the meantime.
func (s *Service) Toggle(ctx context.Context, id uuid.UUID) (*models.RoyaltyAssignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find assignment")
	}
	if assignment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
	}

	assignment.Archived = !assignment.Archived

	if err := s.repo.Update(ctx, assignment); err != nil {
		if pkgdb.IsUniqueViolation(err, ActiveAssignmentConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict,
				"product already has an active assignment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "toggle assignment")
	}
	return assignment, nil
}

// List returns the shop's assignments, newest first.
func (s *Service) List(ctx context.Context, shop string, includeArchived bool) ([]models.RoyaltyAssignment, error) {
	if shop == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop is required")
	}
	results, err := s.repo.ListByShop(ctx, shop, includeArchived)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list assignments")
	}
	return results, nil
}

func validatePercentage(pct decimal.Decimal) error {
	if pct.LessThan(decimal.Zero) || pct.GreaterThan(maxPercentage) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage must be between 0 and 100")
	}
	return nil
}

// snapshotPrice records the product price at assignment time, converted
// into the shop's currency when the listing currency differs.
func (s *Service) snapshotPrice(ctx context.Context, params CreateParams) types.PriceSnapshot {
	snapshot := types.PriceSnapshot{
		OriginalAmount:   params.Price,
		OriginalCurrency: params.PriceCurrency,
		Amount:           params.Price,
		Currency:         params.PriceCurrency,
	}
	if params.StoreCurrency == "" || params.PriceCurrency == params.StoreCurrency {
		snapshot.Currency = firstNonEmpty(params.StoreCurrency, params.PriceCurrency)
		return snapshot
	}
	snapshot.Amount = s.converter.ConvertOrFallback(ctx, params.Price, params.PriceCurrency, params.StoreCurrency).Round(2)
	snapshot.Currency = params.StoreCurrency
	return snapshot
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
