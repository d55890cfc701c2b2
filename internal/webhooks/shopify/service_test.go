package shopifywebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/threadloom/royaltyhub-backend/internal/assignments"
	"github.com/threadloom/royaltyhub-backend/internal/currency"
	"github.com/threadloom/royaltyhub-backend/internal/orders"
	"github.com/threadloom/royaltyhub-backend/internal/transactions"
	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
)

type stubOrdersRepo struct {
	existing *models.RoyaltyOrder
	created  *models.RoyaltyOrder
	createFn func(ctx context.Context, order *models.RoyaltyOrder) error
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return s }
func (s *stubOrdersRepo) Create(ctx context.Context, order *models.RoyaltyOrder) error {
	if s.createFn != nil {
		if err := s.createFn(ctx, order); err != nil {
			return err
		}
	}
	s.created = order
	return nil
}
func (s *stubOrdersRepo) FindByShopAndOrderID(ctx context.Context, shop, orderID string) (*models.RoyaltyOrder, error) {
	return s.existing, nil
}
func (s *stubOrdersRepo) ListByShop(ctx context.Context, shop string, limit int) ([]models.RoyaltyOrder, error) {
	return nil, nil
}

type stubAssignmentsRepo struct {
	active     []models.RoyaltyAssignment
	increments []uuid.UUID
}

func (s *stubAssignmentsRepo) WithTx(tx *gorm.DB) assignments.Repository { return s }
func (s *stubAssignmentsRepo) Create(ctx context.Context, assignment *models.RoyaltyAssignment) error {
	return nil
}
func (s *stubAssignmentsRepo) Update(ctx context.Context, assignment *models.RoyaltyAssignment) error {
	return nil
}
func (s *stubAssignmentsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.RoyaltyAssignment, error) {
	return nil, nil
}
func (s *stubAssignmentsRepo) FindActiveByProduct(ctx context.Context, shop, productID string) (*models.RoyaltyAssignment, error) {
	return nil, nil
}
func (s *stubAssignmentsRepo) FindActiveByProductIDs(ctx context.Context, shop string, productIDs []string) ([]models.RoyaltyAssignment, error) {
	return s.active, nil
}
func (s *stubAssignmentsRepo) ListByShop(ctx context.Context, shop string, includeArchived bool) ([]models.RoyaltyAssignment, error) {
	return nil, nil
}
func (s *stubAssignmentsRepo) IncrementEarnings(ctx context.Context, id uuid.UUID, units int64, amount, usd string) error {
	s.increments = append(s.increments, id)
	return nil
}

type stubEmitter struct {
	calls   int
	lastReq transactions.SettleParams
	results []transactions.EmissionResult
	err     error
}

func (s *stubEmitter) SettleAll(ctx context.Context, params transactions.SettleParams) ([]transactions.EmissionResult, error) {
	s.calls++
	s.lastReq = params
	return s.results, s.err
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fixedRates struct {
	rate decimal.Decimal
}

func (f fixedRates) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	return f.rate, nil
}

func testService(t *testing.T, ordersRepo orders.Repository, assignmentsRepo assignments.Repository, emitter settler, rate decimal.Decimal) *Service {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "webhook-test", Level: zerolog.Disabled, Output: io.Discard})
	conv, err := currency.NewConverter(currency.ConverterParams{Rates: fixedRates{rate: rate}, Logger: logg})
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	svc, err := NewService(ServiceParams{
		OrdersRepo:        ordersRepo,
		AssignmentsRepo:   assignmentsRepo,
		Emitter:           emitter,
		Converter:         conv,
		TransactionRunner: passthroughTx{},
		Logger:            logg,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func activeAssignment(productID, designerID, pct string) models.RoyaltyAssignment {
	return models.RoyaltyAssignment{
		ID:         uuid.New(),
		Shop:       "demo.myshopify.com",
		ProductID:  productID,
		ShopifyGID: models.ProductGID(productID),
		DesignerID: designerID,
		Percentage: decimal.RequireFromString(pct),
	}
}

func orderPayload(t *testing.T, raw string) *OrderPayload {
	t.Helper()

	payload, err := DecodeOrderPayload([]byte(raw))
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return payload
}

const samplePayload = `{
  "id": 820982911946154500,
  "name": "#1001",
  "currency": "USD",
  "financial_status": "paid",
  "fulfillment_status": "fulfilled",
  "total_line_items_price": "74.00",
  "created_at": "2026-08-01T10:00:00Z",
  "line_items": [
    {"id": 1, "product_id": 1111, "title": "Tee", "quantity": 2, "price": "25.00"},
    {"id": 2, "product_id": 2222, "title": "Mug", "quantity": 1, "price": "24.00"}
  ]
}`

func TestHandleOrderCreateCalculatesRoyalties(t *testing.T) {
	ordersRepo := &stubOrdersRepo{}
	assignmentsRepo := &stubAssignmentsRepo{
		active: []models.RoyaltyAssignment{
			activeAssignment("1111", "RA000000001", "12.5"),
			activeAssignment("2222", "RA000000002", "10"),
		},
	}
	emitter := &stubEmitter{}
	svc := testService(t, ordersRepo, assignmentsRepo, emitter, decimal.NewFromInt(1))

	result, err := svc.HandleOrderCreate(context.Background(), "demo.myshopify.com", orderPayload(t, samplePayload))
	if err != nil {
		t.Fatalf("handle create: %v", err)
	}
	order := result.Order
	if order == nil {
		t.Fatal("expected order")
	}
	if order.OrderID != "820982911946154500" {
		t.Fatalf("order id lost precision: %q", order.OrderID)
	}
	if len(order.LineItems) != 2 {
		t.Fatalf("expected 2 royalty items, got %d", len(order.LineItems))
	}

	// 25.00 * 2 * 12.5% = 6.25 ; 24.00 * 1 * 10% = 2.40
	if !order.LineItems[0].Amount.Equal(decimal.RequireFromString("6.25")) {
		t.Fatalf("unexpected first royalty %s", order.LineItems[0].Amount)
	}
	if !order.LineItems[1].Amount.Equal(decimal.RequireFromString("2.40")) {
		t.Fatalf("unexpected second royalty %s", order.LineItems[1].Amount)
	}
	if !order.CalculatedRoyalty.Equal(decimal.RequireFromString("8.65")) {
		t.Fatalf("unexpected total %s", order.CalculatedRoyalty)
	}
	if !order.OrderProductTotal.Equal(decimal.RequireFromString("74.00")) {
		t.Fatalf("unexpected product total %s", order.OrderProductTotal)
	}

	if ordersRepo.created == nil {
		t.Fatal("order not persisted")
	}
	if len(assignmentsRepo.increments) != 2 {
		t.Fatalf("expected 2 earnings increments, got %d", len(assignmentsRepo.increments))
	}
	if emitter.calls != 1 {
		t.Fatalf("expected settlement attempt, got %d calls", emitter.calls)
	}
	if emitter.lastReq.FinancialStatus != "paid" || emitter.lastReq.FulfillmentStatus != "fulfilled" {
		t.Fatalf("statuses not forwarded: %+v", emitter.lastReq)
	}
}

func TestHandleOrderCreateNormalizesUSD(t *testing.T) {
	ordersRepo := &stubOrdersRepo{}
	assignmentsRepo := &stubAssignmentsRepo{
		active: []models.RoyaltyAssignment{activeAssignment("1111", "RA000000001", "10")},
	}
	svc := testService(t, ordersRepo, assignmentsRepo, &stubEmitter{}, decimal.RequireFromString("0.731294"))

	payload := orderPayload(t, `{
	  "id": 1002, "name": "#1002", "currency": "CAD",
	  "financial_status": "paid", "fulfillment_status": "fulfilled",
	  "line_items": [{"id": 1, "product_id": 1111, "title": "Tee", "quantity": 1, "price": "50.00"}]
	}`)

	result, err := svc.HandleOrderCreate(context.Background(), "demo.myshopify.com", payload)
	if err != nil {
		t.Fatalf("handle create: %v", err)
	}

	// 50.00 * 10% = 5.00 CAD ; 5.00 * 0.731294 = 3.656470 USD at six places
	if !result.Order.CalculatedRoyalty.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("unexpected store royalty %s", result.Order.CalculatedRoyalty)
	}
	if !result.Order.NormalizedRoyaltyUSD.Equal(decimal.RequireFromString("3.65647")) {
		t.Fatalf("unexpected usd royalty %s", result.Order.NormalizedRoyaltyUSD)
	}
}

func TestHandleOrderCreateSingleItemTenPercent(t *testing.T) {
	ordersRepo := &stubOrdersRepo{}
	assignmentsRepo := &stubAssignmentsRepo{
		active: []models.RoyaltyAssignment{activeAssignment("1111", "RA000000001", "10")},
	}
	svc := testService(t, ordersRepo, assignmentsRepo, &stubEmitter{}, decimal.NewFromInt(1))

	payload := orderPayload(t, `{
	  "id": 1001, "name": "#1001", "currency": "USD",
	  "financial_status": "paid", "fulfillment_status": "fulfilled",
	  "line_items": [{"id": 1, "product_id": 1111, "title": "Tee", "quantity": 2, "price": "50.00"}]
	}`)

	result, err := svc.HandleOrderCreate(context.Background(), "demo.myshopify.com", payload)
	if err != nil {
		t.Fatalf("handle create: %v", err)
	}

	// 50.00 * 2 * 10% = 10.00 in store and normalized currency alike
	if !result.Order.LineItems[0].Amount.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("unexpected line royalty %s", result.Order.LineItems[0].Amount)
	}
	if !result.Order.CalculatedRoyalty.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("unexpected order royalty %s", result.Order.CalculatedRoyalty)
	}
	if !result.Order.NormalizedRoyaltyUSD.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("unexpected normalized royalty %s", result.Order.NormalizedRoyaltyUSD)
	}
}

func TestHandleOrderCreateConvertsToStoreCurrency(t *testing.T) {
	ordersRepo := &stubOrdersRepo{}
	assignmentsRepo := &stubAssignmentsRepo{
		active: []models.RoyaltyAssignment{activeAssignment("1111", "RA000000001", "10")},
	}
	svc := testService(t, ordersRepo, assignmentsRepo, &stubEmitter{}, decimal.RequireFromString("1.1"))

	payload := orderPayload(t, `{
	  "id": 1003, "name": "#1003", "currency": "EUR", "presentment_currency": "USD",
	  "financial_status": "paid", "fulfillment_status": "fulfilled",
	  "total_line_items_price": "100.00",
	  "line_items": [{"id": 1, "product_id": 1111, "title": "Tee", "quantity": 2, "price": "50.00"}]
	}`)

	result, err := svc.HandleOrderCreate(context.Background(), "demo.myshopify.com", payload)
	if err != nil {
		t.Fatalf("handle create: %v", err)
	}

	// 50.00 EUR * 2 * 10% = 10.00 EUR ; at 1.1 the store books 11.00 USD
	if !result.Order.CalculatedRoyalty.Equal(decimal.RequireFromString("11.00")) {
		t.Fatalf("unexpected store royalty %s", result.Order.CalculatedRoyalty)
	}
	if !result.Order.LineItems[0].Amount.Equal(decimal.RequireFromString("11.00")) {
		t.Fatalf("unexpected line royalty %s", result.Order.LineItems[0].Amount)
	}
	if !result.Order.LineItems[0].UnitPrice.Equal(decimal.RequireFromString("55.00")) {
		t.Fatalf("unit price not converted: %s", result.Order.LineItems[0].UnitPrice)
	}
	if !result.Order.OrderProductTotal.Equal(decimal.RequireFromString("110.00")) {
		t.Fatalf("product total not converted: %s", result.Order.OrderProductTotal)
	}
	if !result.Order.NormalizedRoyaltyUSD.Equal(decimal.RequireFromString("11.00")) {
		t.Fatalf("unexpected normalized royalty %s", result.Order.NormalizedRoyaltyUSD)
	}
	if result.Order.Currency != "EUR" || result.Order.StoreCurrency != "USD" {
		t.Fatalf("currencies misrecorded: %s / %s", result.Order.Currency, result.Order.StoreCurrency)
	}
}

func TestHandleOrderCreateDuplicateRetriesSettlement(t *testing.T) {
	existing := &models.RoyaltyOrder{OrderID: "820982911946154500"}
	ordersRepo := &stubOrdersRepo{existing: existing}
	emitter := &stubEmitter{}
	svc := testService(t, ordersRepo, &stubAssignmentsRepo{}, emitter, decimal.NewFromInt(1))

	result, err := svc.HandleOrderCreate(context.Background(), "demo.myshopify.com", orderPayload(t, samplePayload))
	if err != nil {
		t.Fatalf("handle create: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("expected duplicate result")
	}
	if ordersRepo.created != nil {
		t.Fatal("duplicate must not write a second order row")
	}
	if emitter.calls != 1 {
		t.Fatalf("duplicate must retry settlement, got %d calls", emitter.calls)
	}
}

func TestHandleOrderCreateSettlementFailureSurfaces(t *testing.T) {
	ordersRepo := &stubOrdersRepo{}
	assignmentsRepo := &stubAssignmentsRepo{
		active: []models.RoyaltyAssignment{activeAssignment("1111", "RA000000001", "10")},
	}
	emitter := &stubEmitter{
		results: []transactions.EmissionResult{{Outcome: transactions.OutcomeFailed}},
		err:     errors.New("usage charge declined"),
	}
	svc := testService(t, ordersRepo, assignmentsRepo, emitter, decimal.NewFromInt(1))

	result, err := svc.HandleOrderCreate(context.Background(), "demo.myshopify.com", orderPayload(t, samplePayload))
	if err == nil {
		t.Fatal("expected settlement error to surface")
	}
	if !strings.Contains(err.Error(), "1 usage charges failed") {
		t.Fatalf("error does not report failed count: %v", err)
	}
	if result == nil || result.Order == nil {
		t.Fatal("order stays committed when settlement fails")
	}
	if ordersRepo.created == nil {
		t.Fatal("order not persisted")
	}
	if len(result.Emissions) != 1 {
		t.Fatalf("expected emission results, got %d", len(result.Emissions))
	}
}

func TestHandleOrderUpdateSettlementFailureSurfaces(t *testing.T) {
	existing := &models.RoyaltyOrder{Shop: "demo.myshopify.com", OrderID: "820982911946154500"}
	emitter := &stubEmitter{
		results: []transactions.EmissionResult{{Outcome: transactions.OutcomeFailed}, {Outcome: transactions.OutcomeSucceeded}},
		err:     errors.New("usage charge declined"),
	}
	svc := testService(t, &stubOrdersRepo{existing: existing}, &stubAssignmentsRepo{}, emitter, decimal.NewFromInt(1))

	result, err := svc.HandleOrderUpdate(context.Background(), "demo.myshopify.com", orderPayload(t, samplePayload))
	if err == nil {
		t.Fatal("expected settlement error to surface")
	}
	if !strings.Contains(err.Error(), "1 usage charges failed") {
		t.Fatalf("error does not report failed count: %v", err)
	}
	if result == nil || result.Order != existing {
		t.Fatal("expected existing order in result")
	}
}

func TestHandleOrderCreateInsertRaceReportsDuplicate(t *testing.T) {
	ordersRepo := &stubOrdersRepo{
		createFn: func(ctx context.Context, order *models.RoyaltyOrder) error {
			return errors.New(`duplicate key value violates unique constraint "royalty_orders_shop_order_id"`)
		},
	}
	assignmentsRepo := &stubAssignmentsRepo{
		active: []models.RoyaltyAssignment{activeAssignment("1111", "RA000000001", "10")},
	}
	emitter := &stubEmitter{}
	svc := testService(t, ordersRepo, assignmentsRepo, emitter, decimal.NewFromInt(1))

	result, err := svc.HandleOrderCreate(context.Background(), "demo.myshopify.com", orderPayload(t, samplePayload))
	if err != nil {
		t.Fatalf("handle create: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("expected duplicate result on insert race")
	}
	if emitter.calls != 0 {
		t.Fatalf("raced insert must not settle, got %d calls", emitter.calls)
	}
}

func TestHandleOrderCreateNoAssignments(t *testing.T) {
	ordersRepo := &stubOrdersRepo{}
	emitter := &stubEmitter{}
	svc := testService(t, ordersRepo, &stubAssignmentsRepo{}, emitter, decimal.NewFromInt(1))

	result, err := svc.HandleOrderCreate(context.Background(), "demo.myshopify.com", orderPayload(t, samplePayload))
	if err != nil {
		t.Fatalf("handle create: %v", err)
	}
	if !result.NoRoyalties {
		t.Fatal("expected no-royalties result")
	}
	if ordersRepo.created != nil {
		t.Fatal("no order row should be written")
	}
	if emitter.calls != 0 {
		t.Fatalf("nothing to settle, got %d calls", emitter.calls)
	}
}

func TestHandleOrderCreateSkipsExpiredAssignments(t *testing.T) {
	expired := activeAssignment("1111", "RA000000001", "10")
	past := time.Now().Add(-time.Hour).UTC()
	expired.Expiry = &past

	assignmentsRepo := &stubAssignmentsRepo{
		active: []models.RoyaltyAssignment{
			expired,
			activeAssignment("2222", "RA000000002", "10"),
		},
	}
	svc := testService(t, &stubOrdersRepo{}, assignmentsRepo, &stubEmitter{}, decimal.NewFromInt(1))

	result, err := svc.HandleOrderCreate(context.Background(), "demo.myshopify.com", orderPayload(t, samplePayload))
	if err != nil {
		t.Fatalf("handle create: %v", err)
	}
	if len(result.Order.LineItems) != 1 {
		t.Fatalf("expected only the unexpired assignment, got %d items", len(result.Order.LineItems))
	}
	if result.Order.LineItems[0].ProductID != "2222" {
		t.Fatalf("wrong item kept: %s", result.Order.LineItems[0].ProductID)
	}
}

func TestHandleOrderUpdateOnlySettles(t *testing.T) {
	existing := &models.RoyaltyOrder{
		Shop:    "demo.myshopify.com",
		OrderID: "820982911946154500",
	}
	ordersRepo := &stubOrdersRepo{existing: existing}
	emitter := &stubEmitter{}
	svc := testService(t, ordersRepo, &stubAssignmentsRepo{}, emitter, decimal.NewFromInt(1))

	result, err := svc.HandleOrderUpdate(context.Background(), "demo.myshopify.com", orderPayload(t, samplePayload))
	if err != nil {
		t.Fatalf("handle update: %v", err)
	}
	if result.Order != existing {
		t.Fatal("expected existing order returned")
	}
	if ordersRepo.created != nil {
		t.Fatal("update must not write order rows")
	}
	if emitter.calls != 1 {
		t.Fatalf("expected settlement, got %d calls", emitter.calls)
	}
}

func TestHandleOrderUpdateUnknownOrder(t *testing.T) {
	emitter := &stubEmitter{}
	svc := testService(t, &stubOrdersRepo{}, &stubAssignmentsRepo{}, emitter, decimal.NewFromInt(1))

	result, err := svc.HandleOrderUpdate(context.Background(), "demo.myshopify.com", orderPayload(t, samplePayload))
	if err != nil {
		t.Fatalf("handle update: %v", err)
	}
	if result.Order != nil {
		t.Fatal("expected no order")
	}
	if emitter.calls != 0 {
		t.Fatalf("unknown order must not settle, got %d calls", emitter.calls)
	}
}

func TestDecodeOrderPayloadRejectsMissingFields(t *testing.T) {
	if _, err := DecodeOrderPayload([]byte(`{"name":"#1"}`)); err == nil {
		t.Fatal("expected error without order id")
	}
	if _, err := DecodeOrderPayload([]byte(`{"id":1}`)); err == nil {
		t.Fatal("expected error without currency")
	}
	if _, err := DecodeOrderPayload([]byte(`{"id":1,"currency":"USD"}`)); err == nil {
		t.Fatal("expected error without line items")
	}
	if _, err := DecodeOrderPayload([]byte(`{"id":1,"currency":"USD","line_items":[]}`)); err == nil {
		t.Fatal("expected error for empty line items")
	}
	if _, err := DecodeOrderPayload([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestDecodeOrderPayloadToleratesUnknownFields(t *testing.T) {
	payload, err := DecodeOrderPayload([]byte(`{"id":1,"currency":"USD","confirmed":true,"customer":{"id":5},"line_items":[{"id":1,"product_id":2,"quantity":1,"price":"5.00"}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.ID != json.Number("1") {
		t.Fatalf("unexpected id %v", payload.ID)
	}
}
