package currency

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
	"github.com/threadloom/royaltyhub-backend/pkg/redis"
)

type stubRates struct {
	calls  int
	rateFn func(ctx context.Context, from, to string) (decimal.Decimal, error)
}

func (s *stubRates) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	s.calls++
	if s.rateFn != nil {
		return s.rateFn(ctx, from, to)
	}
	return decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "no rate")
}

type stubCache struct {
	store map[string]string
}

func newStubCache() *stubCache {
	return &stubCache{store: map[string]string{}}
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	if value, ok := s.store[key]; ok {
		return value, nil
	}
	return "", redis.Nil
}

func (s *stubCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.store[key] = value.(string)
	return nil
}

func (s *stubCache) RateKey(from, to string) string {
	return "rh:fx:" + from + ":" + to
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "currency-test", Level: zerolog.Disabled, Output: io.Discard})
}

func TestConverterIdentityPairSkipsLookup(t *testing.T) {
	rates := &stubRates{}
	conv, err := NewConverter(ConverterParams{Rates: rates, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}

	rate, err := conv.Rate(context.Background(), "USD", "usd")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if !rate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected identity rate 1, got %s", rate)
	}
	if rates.calls != 0 {
		t.Fatalf("expected no lookups, got %d", rates.calls)
	}

	amount := decimal.RequireFromString("42.37")
	converted, err := conv.Convert(context.Background(), amount, "EUR", "EUR")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !converted.Equal(amount) {
		t.Fatalf("identity conversion changed amount: %s", converted)
	}
}

func TestConverterCachesRates(t *testing.T) {
	rates := &stubRates{
		rateFn: func(ctx context.Context, from, to string) (decimal.Decimal, error) {
			return decimal.RequireFromString("1.0875"), nil
		},
	}
	cache := newStubCache()
	conv, err := NewConverter(ConverterParams{Rates: rates, Cache: cache, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}

	for i := 0; i < 3; i++ {
		rate, err := conv.Rate(context.Background(), "EUR", "USD")
		if err != nil {
			t.Fatalf("rate: %v", err)
		}
		if !rate.Equal(decimal.RequireFromString("1.0875")) {
			t.Fatalf("unexpected rate %s", rate)
		}
	}
	if rates.calls != 1 {
		t.Fatalf("expected one live lookup, got %d", rates.calls)
	}
	if cache.store["rh:fx:EUR:USD"] != "1.0875" {
		t.Fatalf("rate not cached: %+v", cache.store)
	}
}

func TestConverterConvert(t *testing.T) {
	rates := &stubRates{
		rateFn: func(ctx context.Context, from, to string) (decimal.Decimal, error) {
			return decimal.RequireFromString("0.5"), nil
		},
	}
	conv, err := NewConverter(ConverterParams{Rates: rates, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}

	converted, err := conv.Convert(context.Background(), decimal.RequireFromString("10.10"), "GBP", "USD")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !converted.Equal(decimal.RequireFromString("5.05")) {
		t.Fatalf("unexpected conversion %s", converted)
	}
}

func TestConverterFallbackKeepsOriginalAmount(t *testing.T) {
	conv, err := NewConverter(ConverterParams{Rates: &stubRates{}, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}

	amount := decimal.RequireFromString("19.99")
	got := conv.ConvertOrFallback(context.Background(), amount, "CAD", "USD")
	if !got.Equal(amount) {
		t.Fatalf("expected fallback to original amount, got %s", got)
	}
}

func TestNewConverterRequiresRates(t *testing.T) {
	if _, err := NewConverter(ConverterParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without rate source")
	}
}
