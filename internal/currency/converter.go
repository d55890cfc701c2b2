package currency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/threadloom/royaltyhub-backend/pkg/logger"
	"github.com/threadloom/royaltyhub-backend/pkg/redis"
)

var (
	errRatesRequired  = errors.New("currency: rate source is required")
	errLoggerRequired = errors.New("currency: logger is required")
)

// RateSource fetches a live conversion rate between two currency codes.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Converter resolves conversion rates with a cache in front of the live
// rate source. Same-currency pairs short-circuit to 1 without touching
// either layer.
type Converter struct {
	rates    RateSource
	cache    redis.RateCache
	cacheTTL time.Duration
	logger   *logger.Logger
}

// ConverterParams carries the converter's dependencies.
type ConverterParams struct {
	Rates    RateSource
	Cache    redis.RateCache
	CacheTTL time.Duration
	Logger   *logger.Logger
}

// NewConverter validates dependencies and builds a Converter. Cache is
// optional; without it every non-identity lookup hits the rate source.
func NewConverter(params ConverterParams) (*Converter, error) {
	if params.Rates == nil {
		return nil, errRatesRequired
	}
	if params.Logger == nil {
		return nil, errLoggerRequired
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Converter{
		rates:    params.Rates,
		cache:    params.Cache,
		cacheTTL: ttl,
		logger:   params.Logger,
	}, nil
}

// Rate returns the conversion rate from one currency to another.
func (c *Converter) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	if from == to || from == "" || to == "" {
		return decimal.NewFromInt(1), nil
	}

	if cached, ok := c.cachedRate(ctx, from, to); ok {
		return cached, nil
	}

	rate, err := c.rates.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	c.storeRate(ctx, from, to, rate)
	return rate, nil
}

// Convert converts an amount between currencies at the current rate. The
// result keeps the decimal's full precision; callers round at the edge.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// ConvertOrFallback converts an amount, degrading to the unconverted
// amount when the rate cannot be resolved. The degradation is logged so
// operators can reconcile affected records later.
func (c *Converter) ConvertOrFallback(ctx context.Context, amount decimal.Decimal, from, to string) decimal.Decimal {
	converted, err := c.Convert(ctx, amount, from, to)
	if err != nil {
		c.logger.Error(c.logger.WithFields(ctx, map[string]any{
			"from":   from,
			"to":     to,
			"amount": amount.String(),
		}), "currency conversion unavailable, keeping original amount", err)
		return amount
	}
	return converted
}

func (c *Converter) cachedRate(ctx context.Context, from, to string) (decimal.Decimal, bool) {
	if c.cache == nil {
		return decimal.Zero, false
	}
	raw, err := c.cache.Get(ctx, c.cache.RateKey(from, to))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn(ctx, "rate cache read failed: "+err.Error())
		}
		return decimal.Zero, false
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil || rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return rate, true
}

func (c *Converter) storeRate(ctx context.Context, from, to string, rate decimal.Decimal) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, c.cache.RateKey(from, to), rate.String(), c.cacheTTL); err != nil {
		c.logger.Warn(ctx, "rate cache write failed: "+err.Error())
	}
}
