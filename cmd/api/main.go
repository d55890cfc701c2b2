package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/threadloom/royaltyhub-backend/api/routes"
	"github.com/threadloom/royaltyhub-backend/internal/assignments"
	"github.com/threadloom/royaltyhub-backend/internal/billing"
	"github.com/threadloom/royaltyhub-backend/internal/currency"
	"github.com/threadloom/royaltyhub-backend/internal/orders"
	"github.com/threadloom/royaltyhub-backend/internal/transactions"
	shopifywebhook "github.com/threadloom/royaltyhub-backend/internal/webhooks/shopify"
	"github.com/threadloom/royaltyhub-backend/pkg/config"
	"github.com/threadloom/royaltyhub-backend/pkg/db"
	"github.com/threadloom/royaltyhub-backend/pkg/exchange"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
	"github.com/threadloom/royaltyhub-backend/pkg/metrics"
	"github.com/threadloom/royaltyhub-backend/pkg/migrate"
	"github.com/threadloom/royaltyhub-backend/pkg/redis"
	"github.com/threadloom/royaltyhub-backend/pkg/shopify"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	shopifyClient, err := shopify.NewClient(cfg.Shopify, nil, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create shopify client", err)
		os.Exit(1)
	}

	rateClient := exchange.NewClient(
		exchange.WithBaseURL(cfg.Exchange.BaseURL),
		exchange.WithHTTPClient(&http.Client{Timeout: cfg.Exchange.Timeout}),
	)
	converter, err := currency.NewConverter(currency.ConverterParams{
		Rates:    rateClient,
		Cache:    redisClient,
		CacheTTL: cfg.Exchange.CacheTTL,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create currency converter", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	assignmentsRepo := assignments.NewRepository(dbClient.DB())
	transactionsRepo := transactions.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())

	registry := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	emitter, err := transactions.NewEmitter(transactions.EmitterParams{
		Repo:            transactionsRepo,
		Assignments:     assignmentsRepo,
		Subscriptions:   billingRepo,
		Billing:         shopifyClient,
		Converter:       converter,
		Metrics:         webhookMetrics,
		Logger:          logg,
		BillingCurrency: cfg.Royalty.BillingCurrency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage charge emitter", err)
		os.Exit(1)
	}

	webhookService, err := shopifywebhook.NewService(shopifywebhook.ServiceParams{
		OrdersRepo:        ordersRepo,
		AssignmentsRepo:   assignmentsRepo,
		Emitter:           emitter,
		Converter:         converter,
		TransactionRunner: dbClient,
		Metrics:           webhookMetrics,
		Logger:            logg,
		BillingCurrency:   cfg.Royalty.BillingCurrency,
		OrderTxTimeout:    cfg.Royalty.OrderTxTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order webhook service", err)
		os.Exit(1)
	}

	assignmentService, err := assignments.NewService(assignments.ServiceParams{
		Repo:      assignmentsRepo,
		Converter: converter,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create assignment service", err)
		os.Exit(1)
	}

	billingService, err := billing.NewService(billing.ServiceParams{
		Repo:              billingRepo,
		Transactions:      transactionsRepo,
		Platform:          shopifyClient,
		Logger:            logg,
		BaseCappedAmount:  decimal.NewFromFloat(cfg.Royalty.BaseCappedAmount),
		CapWarningPercent: decimal.NewFromFloat(cfg.Royalty.CapWarningPercent),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Shopify:        shopifyClient,
			WebhookService: webhookService,
			Assignments:    assignmentService,
			Billing:        billingService,
			Orders:         ordersRepo,
			Registry:       registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
