package billing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
	"github.com/threadloom/royaltyhub-backend/pkg/enums"
	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
	"github.com/threadloom/royaltyhub-backend/pkg/shopify"
)

var oneHundred = decimal.NewFromInt(100)

// TransactionSource exposes the newest accepted charge for a shop.
type TransactionSource interface {
	LatestSucceeded(ctx context.Context, shop string) (*models.RoyaltyTransaction, error)
}

// PlatformClient covers the billing platform operations the service needs.
type PlatformClient interface {
	UpdateCappedAmount(ctx context.Context, shop, chargeID string, cappedAmount decimal.Decimal) (*shopify.RecurringCharge, error)
	GetRecurringCharge(ctx context.Context, shop, chargeID string) (*shopify.RecurringCharge, error)
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo              Repository
	Transactions      TransactionSource
	Platform          PlatformClient
	Logger            *logger.Logger
	BaseCappedAmount  decimal.Decimal
	CapWarningPercent decimal.Decimal
}

// Service reports subscription usage and manages the capped amount.
type Service struct {
	repo              Repository
	transactions      TransactionSource
	platform          PlatformClient
	logger            *logger.Logger
	baseCappedAmount  decimal.Decimal
	capWarningPercent decimal.Decimal
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Transactions == nil {
		return nil, errors.New("transaction source is required")
	}
	if params.Platform == nil {
		return nil, errors.New("platform client is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	base := params.BaseCappedAmount
	if base.LessThanOrEqual(decimal.Zero) {
		base = decimal.NewFromInt(350)
	}
	warn := params.CapWarningPercent
	if warn.LessThanOrEqual(decimal.Zero) {
		warn = decimal.NewFromInt(80)
	}
	return &Service{
		repo:              params.Repo,
		transactions:      params.Transactions,
		platform:          params.Platform,
		logger:            params.Logger,
		baseCappedAmount:  base,
		capWarningPercent: warn,
	}, nil
}

// Usage summarizes how much of the subscription cap has been consumed.
type Usage struct {
	Shop             string          `json:"shop"`
	ChargeID         string          `json:"chargeId"`
	CappedAmount     decimal.Decimal `json:"cappedAmount"`
	BalanceUsed      decimal.Decimal `json:"balanceUsed"`
	BalanceRemaining decimal.Decimal `json:"balanceRemaining"`
	PercentUsed      decimal.Decimal `json:"percentUsed"`
	NearCap          bool            `json:"nearCap"`
}

// GetUsage reports cap consumption from the newest accepted charge. A shop
// with no charges yet reports zero usage rather than an error.
func (s *Service) GetUsage(ctx context.Context, shop string) (*Usage, error) {
	subscription, err := s.activeSubscription(ctx, shop)
	if err != nil {
		return nil, err
	}

	usage := &Usage{
		Shop:             shop,
		ChargeID:         subscription.ChargeID,
		CappedAmount:     subscription.CappedAmount,
		BalanceRemaining: subscription.CappedAmount,
	}

	// A failed transaction lookup degrades to a zero-usage report; the
	// monitor must stay readable while the ledger is unavailable.
	latest, err := s.transactions.LatestSucceeded(ctx, shop)
	if err != nil {
		s.logger.Warn(s.logger.WithShop(ctx, shop), "latest transaction unavailable, reporting zero usage")
	} else if latest != nil {
		usage.BalanceUsed = latest.BalanceUsed
		usage.BalanceRemaining = latest.BalanceRemaining
	}

	if subscription.CappedAmount.IsPositive() {
		usage.PercentUsed = usage.BalanceUsed.
			Div(subscription.CappedAmount).
			Mul(oneHundred).
			Round(2)
	}
	usage.NearCap = usage.PercentUsed.GreaterThanOrEqual(s.capWarningPercent)
	return usage, nil
}

// CapRaise is the outcome of a capped amount increase request.
type CapRaise struct {
	Shop            string          `json:"shop"`
	ChargeID        string          `json:"chargeId"`
	NewCappedAmount decimal.Decimal `json:"newCappedAmount"`
	ApprovalURL     string          `json:"approvalUrl"`
}

// RaiseCappedAmount asks the platform for a higher cap sized as the base
// cap on top of what the shop has already consumed. The raise takes
// effect only after the merchant follows the returned approval URL.
func (s *Service) RaiseCappedAmount(ctx context.Context, shop string) (*CapRaise, error) {
	subscription, err := s.activeSubscription(ctx, shop)
	if err != nil {
		return nil, err
	}

	balanceUsed := decimal.Zero
	latest, err := s.transactions.LatestSucceeded(ctx, shop)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load latest transaction")
	}
	if latest != nil {
		balanceUsed = latest.BalanceUsed
	}

	newCap := s.baseCappedAmount.Add(balanceUsed).Round(2)

	charge, err := s.platform.UpdateCappedAmount(ctx, shop, subscription.ChargeID, newCap)
	if err != nil {
		return nil, err
	}
	if charge.UpdateCappedAmountURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "platform did not return an approval url")
	}

	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"shop":       shop,
		"charge_id":  subscription.ChargeID,
		"capped_new": newCap.String(),
	}), "capped amount raise requested")

	return &CapRaise{
		Shop:            shop,
		ChargeID:        subscription.ChargeID,
		NewCappedAmount: newCap,
		ApprovalURL:     charge.UpdateCappedAmountURL,
	}, nil
}

// RefreshStatus pulls the subscription's platform state and syncs the
// local cache, returning the refreshed row.
func (s *Service) RefreshStatus(ctx context.Context, shop string) (*models.RoyaltySubscription, error) {
	subscription, err := s.repo.FindActiveByShop(ctx, shop)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if subscription == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription for shop")
	}

	charge, err := s.platform.GetRecurringCharge(ctx, shop, subscription.ChargeID)
	if err != nil {
		return nil, err
	}

	status, err := enums.ParseSubscriptionStatus(charge.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse platform status")
	}

	subscription.Status = status
	subscription.CappedAmount = charge.CappedAmount
	subscription.Price = charge.Price
	if err := s.repo.Update(ctx, subscription); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sync subscription")
	}
	return subscription, nil
}

func (s *Service) activeSubscription(ctx context.Context, shop string) (*models.RoyaltySubscription, error) {
	if shop == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop is required")
	}
	subscription, err := s.repo.FindActiveByShop(ctx, shop)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if subscription == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active subscription for shop")
	}
	return subscription, nil
}
