package transactions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/threadloom/royaltyhub-backend/internal/currency"
	pkgdb "github.com/threadloom/royaltyhub-backend/pkg/db"
	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
	"github.com/threadloom/royaltyhub-backend/pkg/enums"
	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
	"github.com/threadloom/royaltyhub-backend/pkg/metrics"
	"github.com/threadloom/royaltyhub-backend/pkg/shopify"
	"github.com/threadloom/royaltyhub-backend/pkg/types"
)

// EmissionOutcome classifies one line item's settlement attempt.
type EmissionOutcome string

const (
	OutcomeSucceeded EmissionOutcome = "succeeded"
	OutcomeSkipped   EmissionOutcome = "skipped"
	OutcomeFailed    EmissionOutcome = "failed"
)

// EmissionResult reports the settlement attempt for one line item.
type EmissionResult struct {
	ProductID   string
	DesignerID  string
	Outcome     EmissionOutcome
	Reason      string
	Transaction *models.RoyaltyTransaction
}

// UsageChargeCreator posts metered charges to the billing platform.
type UsageChargeCreator interface {
	CreateUsageCharge(ctx context.Context, shop, chargeID, description string, price decimal.Decimal) (*shopify.UsageCharge, error)
}

// SubscriptionSource resolves the shop's active recurring charge.
type SubscriptionSource interface {
	FindActiveByShop(ctx context.Context, shop string) (*models.RoyaltySubscription, error)
}

// AssignmentSource re-checks assignment state at settlement time.
type AssignmentSource interface {
	FindActiveByProduct(ctx context.Context, shop, productID string) (*models.RoyaltyAssignment, error)
}

// EmitterParams groups dependencies for the usage charge emitter.
type EmitterParams struct {
	Repo            Repository
	Assignments     AssignmentSource
	Subscriptions   SubscriptionSource
	Billing         UsageChargeCreator
	Converter       *currency.Converter
	Metrics         *metrics.WebhookMetrics
	Logger          *logger.Logger
	BillingCurrency string
}

// Emitter turns calculated royalty line items into metered usage charges.
// Each line item settles independently so one failure cannot block the
// rest of the order; the transactions table's unique index is what makes
// redelivered settlements safe.
type Emitter struct {
	repo            Repository
	assignments     AssignmentSource
	subscriptions   SubscriptionSource
	billing         UsageChargeCreator
	converter       *currency.Converter
	metrics         *metrics.WebhookMetrics
	logger          *logger.Logger
	billingCurrency string
}

// NewEmitter builds a usage charge emitter.
func NewEmitter(params EmitterParams) (*Emitter, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Assignments == nil {
		return nil, errors.New("assignment source is required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscription source is required")
	}
	if params.Billing == nil {
		return nil, errors.New("billing client is required")
	}
	if params.Converter == nil {
		return nil, errors.New("converter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	billingCurrency := params.BillingCurrency
	if billingCurrency == "" {
		billingCurrency = "USD"
	}
	return &Emitter{
		repo:            params.Repo,
		assignments:     params.Assignments,
		subscriptions:   params.Subscriptions,
		billing:         params.Billing,
		converter:       params.Converter,
		metrics:         params.Metrics,
		logger:          params.Logger,
		billingCurrency: billingCurrency,
	}, nil
}

// SettleParams describes the order whose royalties should be charged.
type SettleParams struct {
	Shop              string
	Order             *models.RoyaltyOrder
	FinancialStatus   string
	FulfillmentStatus string
}

// SettleAll attempts a usage charge for every royalty line item on the
// order. Orders that are not both paid and fulfilled are not charged at
// all. The returned results cover every line item; the error aggregates
// the failed ones and is nil when nothing failed.
func (e *Emitter) SettleAll(ctx context.Context, params SettleParams) ([]EmissionResult, error) {
	if params.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if params.Shop == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop is required")
	}

	if params.FinancialStatus != "paid" || params.FulfillmentStatus != "fulfilled" {
		e.logger.Info(e.logger.WithFields(ctx, map[string]any{
			"shop":               params.Shop,
			"order_id":           params.Order.OrderID,
			"financial_status":   params.FinancialStatus,
			"fulfillment_status": params.FulfillmentStatus,
		}), "order not settleable yet, deferring usage charges")
		return nil, nil
	}

	subscription, err := e.subscriptions.FindActiveByShop(ctx, params.Shop)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve subscription")
	}
	if subscription == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shop has no active subscription")
	}

	items := params.Order.LineItems
	results := make([]EmissionResult, len(items))

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = e.settleItem(ctx, params, subscription, items[idx])
		}(i)
	}
	wg.Wait()

	var errs error
	for _, result := range results {
		e.metrics.IncChargeOutcome(string(result.Outcome))
		if result.Outcome == OutcomeFailed {
			errs = multierr.Append(errs, fmt.Errorf("product %s: %s", result.ProductID, result.Reason))
		}
	}
	return results, errs
}

func (e *Emitter) settleItem(ctx context.Context, params SettleParams, subscription *models.RoyaltySubscription, item types.LineItemRoyalty) EmissionResult {
	result := EmissionResult{
		ProductID:  item.ProductID,
		DesignerID: item.DesignerID,
	}
	ctx = e.logger.WithFields(ctx, map[string]any{
		"shop":        params.Shop,
		"order_id":    params.Order.OrderID,
		"product_id":  item.ProductID,
		"designer_id": item.DesignerID,
	})

	// Expiry can pass between calculation and settlement, so the
	// assignment is re-checked here rather than trusted from the order.
	assignment, err := e.assignments.FindActiveByProduct(ctx, params.Shop, models.NumericProductID(item.ProductID))
	if err != nil {
		return e.failed(ctx, result, "re-check assignment: "+err.Error())
	}
	if assignment == nil || !assignment.Active(time.Now().UTC()) {
		return e.skipped(ctx, result, "assignment archived or expired")
	}

	exists, err := e.repo.Exists(ctx, params.Shop, params.Order.OrderID, item.ProductID, item.DesignerID)
	if err != nil {
		return e.failed(ctx, result, "duplicate pre-check: "+err.Error())
	}
	if exists {
		return e.skipped(ctx, result, "already charged")
	}

	usdAmount, err := e.converter.Convert(ctx, item.Amount, params.Order.StoreCurrency, e.billingCurrency)
	if err != nil {
		return e.failed(ctx, result, "convert to billing currency: "+err.Error())
	}
	usdAmount = usdAmount.Round(2)
	if usdAmount.LessThanOrEqual(decimal.Zero) {
		return e.skipped(ctx, result, "charge amount rounds to zero")
	}

	description := fmt.Sprintf("Royalty for order %s, product %s (designer %s)",
		params.Order.OrderName, item.Title, item.DesignerID)

	charge, err := e.billing.CreateUsageCharge(ctx, params.Shop, subscription.ChargeID, description, usdAmount)
	if err != nil {
		return e.failed(ctx, result, "create usage charge: "+err.Error())
	}

	transaction := &models.RoyaltyTransaction{
		Shop:             params.Shop,
		OrderID:          params.Order.OrderID,
		OrderName:        params.Order.OrderName,
		ProductID:        item.ProductID,
		ChargeRef:        fmt.Sprintf("%d", charge.ID),
		DesignerID:       item.DesignerID,
		Description:      description,
		StorePrice:       item.Amount,
		StoreCurrency:    params.Order.StoreCurrency,
		USDPrice:         usdAmount,
		Status:           enums.ParseTransactionStatus(charge.Status),
		BalanceUsed:      charge.BalanceUsed,
		BalanceRemaining: charge.BalanceRemaining,
		Percentage:       item.Percentage,
	}

	if err := e.repo.Create(ctx, transaction); err != nil {
		// A concurrent redelivery can beat the pre-check; the charge
		// already on record is the one that counts.
		if pkgdb.IsUniqueViolation(err, IdempotencyConstraint) {
			return e.skipped(ctx, result, "transaction already recorded")
		}
		return e.failed(ctx, result, "persist transaction: "+err.Error())
	}

	result.Outcome = OutcomeSucceeded
	result.Transaction = transaction
	e.logger.Info(ctx, "usage charge recorded")
	return result
}

func (e *Emitter) skipped(ctx context.Context, result EmissionResult, reason string) EmissionResult {
	result.Outcome = OutcomeSkipped
	result.Reason = reason
	e.logger.Info(ctx, "usage charge skipped: "+reason)
	return result
}

func (e *Emitter) failed(ctx context.Context, result EmissionResult, reason string) EmissionResult {
	result.Outcome = OutcomeFailed
	result.Reason = reason
	e.logger.Error(ctx, "usage charge failed", errors.New(reason))
	return result
}
