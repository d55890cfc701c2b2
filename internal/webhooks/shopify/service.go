package shopifywebhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/threadloom/royaltyhub-backend/internal/assignments"
	"github.com/threadloom/royaltyhub-backend/internal/currency"
	"github.com/threadloom/royaltyhub-backend/internal/orders"
	"github.com/threadloom/royaltyhub-backend/internal/transactions"
	pkgdb "github.com/threadloom/royaltyhub-backend/pkg/db"
	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
	"github.com/threadloom/royaltyhub-backend/pkg/metrics"
	"github.com/threadloom/royaltyhub-backend/pkg/types"
)

var oneHundred = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settler interface {
	SettleAll(ctx context.Context, params transactions.SettleParams) ([]transactions.EmissionResult, error)
}

// ServiceParams groups dependencies for the order webhook service.
type ServiceParams struct {
	OrdersRepo        orders.Repository
	AssignmentsRepo   assignments.Repository
	Emitter           settler
	Converter         *currency.Converter
	TransactionRunner txRunner
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
	BillingCurrency   string
	OrderTxTimeout    time.Duration
}

// Service turns verified order webhooks into royalty records and usage
// charges.
type Service struct {
	ordersRepo      orders.Repository
	assignmentsRepo assignments.Repository
	emitter         settler
	converter       *currency.Converter
	txRunner        txRunner
	metrics         *metrics.WebhookMetrics
	logger          *logger.Logger
	billingCurrency string
	orderTxTimeout  time.Duration
}

// NewService builds the webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.OrdersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.AssignmentsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "assignments repo required")
	}
	if params.Emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "emitter required")
	}
	if params.Converter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "converter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	billingCurrency := params.BillingCurrency
	if billingCurrency == "" {
		billingCurrency = "USD"
	}
	timeout := params.OrderTxTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{
		ordersRepo:      params.OrdersRepo,
		assignmentsRepo: params.AssignmentsRepo,
		emitter:         params.Emitter,
		converter:       params.Converter,
		txRunner:        params.TransactionRunner,
		metrics:         params.Metrics,
		logger:          params.Logger,
		billingCurrency: billingCurrency,
		orderTxTimeout:  timeout,
	}, nil
}

// ProcessResult reports what a webhook delivery produced.
type ProcessResult struct {
	Order       *models.RoyaltyOrder
	Duplicate   bool
	NoRoyalties bool
	Message     string
	Emissions   []transactions.EmissionResult
}

// HandleOrderCreate records an order's royalties and attempts settlement.
// A redelivered create finds the existing row, writes nothing, and
// re-attempts settlement; the unique index on (shop, order_id) backstops
// the lookup under concurrent delivery.
func (s *Service) HandleOrderCreate(ctx context.Context, shop string, payload *OrderPayload) (*ProcessResult, error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveDuration("orders/create", time.Since(started))
	}()

	ctx = s.logger.WithShop(ctx, shop)
	ctx = s.logger.WithOrder(ctx, payload.ID.String())

	existing, err := s.ordersRepo.FindByShopAndOrderID(ctx, shop, payload.ID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing order")
	}
	if existing != nil {
		// The order row is final, but a redelivered create is the retry
		// path for charges that failed on an earlier delivery. The
		// ledger's idempotency key keeps settled items from charging
		// twice.
		s.metrics.IncOrderProcessed("orders/create", "duplicate")
		s.logger.Info(ctx, "order already recorded, retrying settlement")
		emissions, err := s.settle(ctx, shop, existing, payload)
		return &ProcessResult{Order: existing, Duplicate: true, Message: "order already processed", Emissions: emissions}, err
	}

	order, lineRoyalties, err := s.calculate(ctx, shop, payload)
	if err != nil {
		s.metrics.IncOrderProcessed("orders/create", "failed")
		return nil, err
	}
	if order == nil {
		s.metrics.IncOrderProcessed("orders/create", "no_royalties")
		s.logger.Info(ctx, "no royalty-bearing line items on order")
		return &ProcessResult{NoRoyalties: true, Message: "no royalty items on order"}, nil
	}

	if err := s.persist(ctx, order, lineRoyalties); err != nil {
		if pkgdb.IsUniqueViolation(err, orders.ShopOrderConstraint) {
			s.metrics.IncOrderProcessed("orders/create", "duplicate")
			return &ProcessResult{Duplicate: true, Message: "order already processed"}, nil
		}
		s.metrics.IncOrderProcessed("orders/create", "failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist order")
	}
	s.metrics.IncOrderProcessed("orders/create", "recorded")
	s.logger.Info(ctx, "royalty order recorded")

	// The order is committed even when settlement fails; the returned
	// error makes the platform redeliver so failed charges retry.
	emissions, err := s.settle(ctx, shop, order, payload)
	return &ProcessResult{Order: order, Emissions: emissions}, err
}

// HandleOrderUpdate emits usage charges for an order that became paid and
// fulfilled after creation. Update deliveries never write order rows.
func (s *Service) HandleOrderUpdate(ctx context.Context, shop string, payload *OrderPayload) (*ProcessResult, error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveDuration("orders/updated", time.Since(started))
	}()

	ctx = s.logger.WithShop(ctx, shop)
	ctx = s.logger.WithOrder(ctx, payload.ID.String())

	order, err := s.ordersRepo.FindByShopAndOrderID(ctx, shop, payload.ID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		s.metrics.IncOrderProcessed("orders/updated", "unknown_order")
		s.logger.Info(ctx, "update for unrecorded order, ignoring")
		return &ProcessResult{Message: "order not tracked"}, nil
	}

	emissions, err := s.settle(ctx, shop, order, payload)
	s.metrics.IncOrderProcessed("orders/updated", "settled")

	return &ProcessResult{Order: order, Emissions: emissions}, err
}

// settle attempts usage charges for the order's royalty items. A non-nil
// error means at least one charge genuinely failed; skipped items never
// produce one.
func (s *Service) settle(ctx context.Context, shop string, order *models.RoyaltyOrder, payload *OrderPayload) ([]transactions.EmissionResult, error) {
	emissions, err := s.emitter.SettleAll(ctx, transactions.SettleParams{
		Shop:              shop,
		Order:             order,
		FinancialStatus:   payload.FinancialStatus,
		FulfillmentStatus: payload.FulfillmentStatus,
	})
	if err == nil {
		return emissions, nil
	}

	failed := 0
	for _, emission := range emissions {
		if emission.Outcome == transactions.OutcomeFailed {
			failed++
		}
	}
	s.logger.Error(ctx, "settlement incomplete", err)
	return emissions, pkgerrors.Wrap(pkgerrors.CodeInternal, err,
		fmt.Sprintf("%d usage charges failed", failed)).
		WithDetails(map[string]any{"failed_charges": failed})
}

type lineRoyalty struct {
	assignmentID uuid.UUID
	units        int64
	amount       decimal.Decimal
	usd          decimal.Decimal
}

// calculate resolves assignments for the order's products and computes
// per-line royalties. Returns a nil order when nothing on the order
// carries royalty.
func (s *Service) calculate(ctx context.Context, shop string, payload *OrderPayload) (*models.RoyaltyOrder, []lineRoyalty, error) {
	productIDs := make([]string, 0, len(payload.LineItems))
	for _, item := range payload.LineItems {
		if id := item.ProductID.String(); id != "" {
			productIDs = append(productIDs, id)
		}
	}
	if len(productIDs) == 0 {
		return nil, nil, nil
	}

	matched, err := s.assignmentsRepo.FindActiveByProductIDs(ctx, shop, productIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve assignments")
	}
	if len(matched) == 0 {
		return nil, nil, nil
	}

	byProduct := make(map[string]*models.RoyaltyAssignment, len(matched))
	now := time.Now().UTC()
	for i := range matched {
		assignment := &matched[i]
		// Expired assignments stay on the books but earn nothing.
		if !assignment.Active(now) {
			continue
		}
		byProduct[assignment.ProductID] = assignment
	}

	// Line item prices arrive in the order's checkout currency; royalties
	// are booked in the store's presentment currency.
	orderCurrency := payload.Currency
	storeCurrency := payload.PresentmentCurrency
	if storeCurrency == "" {
		storeCurrency = orderCurrency
	}
	storeRate, err := s.converter.Rate(ctx, orderCurrency, storeCurrency)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve store currency rate")
	}

	var items types.LineItemRoyalties
	var increments []lineRoyalty
	totalRoyalty := decimal.Zero
	totalUSD := decimal.Zero

	for _, item := range payload.LineItems {
		assignment, ok := byProduct[models.NumericProductID(item.ProductID.String())]
		if !ok {
			continue
		}

		unitPrice, err := item.UnitPrice()
		if err != nil {
			return nil, nil, err
		}
		if unitPrice.LessThanOrEqual(decimal.Zero) || item.Quantity <= 0 {
			continue
		}

		amount := unitPrice.
			Mul(decimal.NewFromInt(item.Quantity)).
			Mul(assignment.Percentage).
			Div(oneHundred).
			Mul(storeRate).
			Round(2)
		if amount.LessThanOrEqual(decimal.Zero) {
			continue
		}

		// USD normalization keeps six decimal places so aggregation
		// does not compound per-line rounding.
		usd, err := s.converter.Convert(ctx, amount, storeCurrency, s.billingCurrency)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "normalize royalty")
		}
		usd = usd.Round(6)

		items = append(items, types.LineItemRoyalty{
			AssignmentID: assignment.ID,
			ProductID:    assignment.ProductID,
			Title:        item.Title,
			VariantID:    item.VariantID.String(),
			VariantTitle: item.VariantTitle,
			DesignerID:   assignment.DesignerID,
			Amount:       amount,
			Quantity:     item.Quantity,
			UnitPrice:    unitPrice.Mul(storeRate).Round(2),
			Percentage:   assignment.Percentage,
		})
		increments = append(increments, lineRoyalty{
			assignmentID: assignment.ID,
			units:        item.Quantity,
			amount:       amount,
			usd:          usd,
		})
		totalRoyalty = totalRoyalty.Add(amount)
		totalUSD = totalUSD.Add(usd)
	}

	if len(items) == 0 {
		return nil, nil, nil
	}

	createdAt := payload.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	order := &models.RoyaltyOrder{
		Shop:                 shop,
		OrderID:              payload.ID.String(),
		OrderName:            payload.Name,
		Currency:             orderCurrency,
		StoreCurrency:        storeCurrency,
		LineItems:            items,
		CalculatedRoyalty:    totalRoyalty,
		NormalizedRoyaltyUSD: totalUSD,
		OrderProductTotal:    payload.ProductTotal().Mul(storeRate).Round(2),
		OrderCreatedAt:       createdAt,
	}
	return order, increments, nil
}

// persist writes the order row and bumps assignment totals in one bounded
// transaction so counters can never drift from recorded orders.
func (s *Service) persist(ctx context.Context, order *models.RoyaltyOrder, increments []lineRoyalty) error {
	txCtx, cancel := context.WithTimeout(ctx, s.orderTxTimeout)
	defer cancel()

	return s.txRunner.WithTx(txCtx, func(tx *gorm.DB) error {
		if err := s.ordersRepo.WithTx(tx).Create(txCtx, order); err != nil {
			return err
		}
		assignmentsTx := s.assignmentsRepo.WithTx(tx)
		for _, inc := range increments {
			if err := assignmentsTx.IncrementEarnings(txCtx, inc.assignmentID,
				inc.units, inc.amount.String(), inc.usd.String()); err != nil {
				return err
			}
		}
		return nil
	})
}
