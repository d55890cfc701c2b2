package assignments

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/threadloom/royaltyhub-backend/internal/currency"
	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
)

type stubRepo struct {
	createFn         func(ctx context.Context, assignment *models.RoyaltyAssignment) error
	updateFn         func(ctx context.Context, assignment *models.RoyaltyAssignment) error
	findByIDFn       func(ctx context.Context, id uuid.UUID) (*models.RoyaltyAssignment, error)
	findActiveFn     func(ctx context.Context, shop, productID string) (*models.RoyaltyAssignment, error)
	findActiveByIDFn func(ctx context.Context, shop string, productIDs []string) ([]models.RoyaltyAssignment, error)
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubRepo) Create(ctx context.Context, assignment *models.RoyaltyAssignment) error {
	if s.createFn != nil {
		return s.createFn(ctx, assignment)
	}
	return nil
}
func (s *stubRepo) Update(ctx context.Context, assignment *models.RoyaltyAssignment) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, assignment)
	}
	return nil
}
func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.RoyaltyAssignment, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (s *stubRepo) FindActiveByProduct(ctx context.Context, shop, productID string) (*models.RoyaltyAssignment, error) {
	if s.findActiveFn != nil {
		return s.findActiveFn(ctx, shop, productID)
	}
	return nil, nil
}
func (s *stubRepo) FindActiveByProductIDs(ctx context.Context, shop string, productIDs []string) ([]models.RoyaltyAssignment, error) {
	if s.findActiveByIDFn != nil {
		return s.findActiveByIDFn(ctx, shop, productIDs)
	}
	return nil, nil
}
func (s *stubRepo) ListByShop(ctx context.Context, shop string, includeArchived bool) ([]models.RoyaltyAssignment, error) {
	return nil, nil
}
func (s *stubRepo) IncrementEarnings(ctx context.Context, id uuid.UUID, units int64, amount, usd string) error {
	return nil
}

type fixedRates struct {
	rate decimal.Decimal
}

func (f fixedRates) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if f.rate.IsZero() {
		return decimal.Zero, errors.New("no rate")
	}
	return f.rate, nil
}

func testService(t *testing.T, repo Repository, rate decimal.Decimal) *Service {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "assignments-test", Level: zerolog.Disabled, Output: io.Discard})
	conv, err := currency.NewConverter(currency.ConverterParams{
		Rates:  fixedRates{rate: rate},
		Logger: logg,
	})
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	svc, err := NewService(ServiceParams{Repo: repo, Converter: conv, Logger: logg})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func validCreateParams() CreateParams {
	return CreateParams{
		Shop:          "demo.myshopify.com",
		ProductID:     "gid://shopify/Product/1111",
		Title:         "Test Product",
		DesignerID:    "RA000000001",
		Percentage:    decimal.RequireFromString("12.5"),
		Price:         decimal.RequireFromString("25.00"),
		PriceCurrency: "USD",
		StoreCurrency: "USD",
	}
}

func TestServiceCreateRejectsBadDesignerID(t *testing.T) {
	svc := testService(t, &stubRepo{}, decimal.NewFromInt(1))

	for _, id := range []string{"", "RA12345678", "RA1234567890", "XX000000001", "ra000000001"} {
		params := validCreateParams()
		params.DesignerID = id
		_, err := svc.Create(context.Background(), params)
		if err == nil {
			t.Fatalf("expected error for designer id %q", id)
		}
		if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error for %q, got %v", id, err)
		}
	}
}

func TestServiceCreateRejectsOutOfRangePercentage(t *testing.T) {
	svc := testService(t, &stubRepo{}, decimal.NewFromInt(1))

	for _, pct := range []string{"-0.01", "100.01"} {
		params := validCreateParams()
		params.Percentage = decimal.RequireFromString(pct)
		_, err := svc.Create(context.Background(), params)
		if err == nil {
			t.Fatalf("expected error for percentage %s", pct)
		}
		if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	}

	params := validCreateParams()
	params.Percentage = decimal.NewFromInt(100)
	if _, err := svc.Create(context.Background(), params); err != nil {
		t.Fatalf("100 percent should be allowed: %v", err)
	}
}

func TestServiceCreateConflictNamesExistingDesigner(t *testing.T) {
	repo := &stubRepo{
		findActiveFn: func(ctx context.Context, shop, productID string) (*models.RoyaltyAssignment, error) {
			return &models.RoyaltyAssignment{DesignerID: "RA000000777"}, nil
		},
	}
	svc := testService(t, repo, decimal.NewFromInt(1))

	_, err := svc.Create(context.Background(), validCreateParams())
	if err == nil {
		t.Fatal("expected conflict error")
	}
	appErr := pkgerrors.As(err)
	if appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if msg := appErr.Message(); !strings.Contains(msg, "RA000000777") {
		t.Fatalf("expected existing designer in message, got %q", msg)
	}
}

func TestServiceCreateMapsUniqueViolationToConflict(t *testing.T) {
	repo := &stubRepo{
		createFn: func(ctx context.Context, assignment *models.RoyaltyAssignment) error {
			return errors.New(`duplicate key value violates unique constraint "royalty_assignments_active_product"`)
		},
	}
	svc := testService(t, repo, decimal.NewFromInt(1))

	_, err := svc.Create(context.Background(), validCreateParams())
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestServiceCreateNormalizesProductID(t *testing.T) {
	var created *models.RoyaltyAssignment
	repo := &stubRepo{
		createFn: func(ctx context.Context, assignment *models.RoyaltyAssignment) error {
			created = assignment
			return nil
		},
	}
	svc := testService(t, repo, decimal.NewFromInt(1))

	_, err := svc.Create(context.Background(), validCreateParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ProductID != "1111" {
		t.Fatalf("expected numeric product id, got %q", created.ProductID)
	}
	if created.ShopifyGID != "gid://shopify/Product/1111" {
		t.Fatalf("expected gid form, got %q", created.ShopifyGID)
	}
}

func TestServiceCreateSnapshotsPriceInStoreCurrency(t *testing.T) {
	var created *models.RoyaltyAssignment
	repo := &stubRepo{
		createFn: func(ctx context.Context, assignment *models.RoyaltyAssignment) error {
			created = assignment
			return nil
		},
	}
	svc := testService(t, repo, decimal.RequireFromString("1.25"))

	params := validCreateParams()
	params.PriceCurrency = "USD"
	params.StoreCurrency = "CAD"
	if _, err := svc.Create(context.Background(), params); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.Price.OriginalAmount.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("unexpected original amount %s", created.Price.OriginalAmount)
	}
	if !created.Price.Amount.Equal(decimal.RequireFromString("31.25")) {
		t.Fatalf("unexpected converted amount %s", created.Price.Amount)
	}
	if created.Price.Currency != "CAD" {
		t.Fatalf("unexpected currency %q", created.Price.Currency)
	}
}

func TestServiceUpdateNotFound(t *testing.T) {
	svc := testService(t, &stubRepo{}, decimal.NewFromInt(1))

	_, err := svc.Update(context.Background(), uuid.New(), UpdateParams{})
	if err == nil {
		t.Fatal("expected not found error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceUpdateAppliesPartialEdits(t *testing.T) {
	expiry := time.Now().Add(24 * time.Hour).UTC()
	existing := &models.RoyaltyAssignment{
		ID:         uuid.New(),
		Title:      "Old Title",
		Percentage: decimal.NewFromInt(10),
		Expiry:     &expiry,
	}
	var saved *models.RoyaltyAssignment
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.RoyaltyAssignment, error) {
			return existing, nil
		},
		updateFn: func(ctx context.Context, assignment *models.RoyaltyAssignment) error {
			saved = assignment
			return nil
		},
	}
	svc := testService(t, repo, decimal.NewFromInt(1))

	pct := decimal.RequireFromString("17.5")
	_, err := svc.Update(context.Background(), existing.ID, UpdateParams{
		Percentage:  &pct,
		ClearExpiry: true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !saved.Percentage.Equal(pct) {
		t.Fatalf("percentage not applied: %s", saved.Percentage)
	}
	if saved.Expiry != nil {
		t.Fatal("expiry not cleared")
	}
	if saved.Title != "Old Title" {
		t.Fatalf("title should be unchanged, got %q", saved.Title)
	}
}

func TestServiceToggleFlipsArchived(t *testing.T) {
	existing := &models.RoyaltyAssignment{ID: uuid.New(), Archived: false}
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.RoyaltyAssignment, error) {
			return existing, nil
		},
	}
	svc := testService(t, repo, decimal.NewFromInt(1))

	toggled, err := svc.Toggle(context.Background(), existing.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !toggled.Archived {
		t.Fatal("expected archived after toggle")
	}
}

func TestServiceToggleUnarchiveConflict(t *testing.T) {
	existing := &models.RoyaltyAssignment{ID: uuid.New(), Archived: true}
	repo := &stubRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.RoyaltyAssignment, error) {
			return existing, nil
		},
		updateFn: func(ctx context.Context, assignment *models.RoyaltyAssignment) error {
			return errors.New(`duplicate key value violates unique constraint "royalty_assignments_active_product"`)
		},
	}
	svc := testService(t, repo, decimal.NewFromInt(1))

	_, err := svc.Toggle(context.Background(), existing.ID)
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}
