package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/threadloom/royaltyhub-backend/api/controllers"
	billingcontrollers "github.com/threadloom/royaltyhub-backend/api/controllers/billing"
	royaltycontrollers "github.com/threadloom/royaltyhub-backend/api/controllers/royalties"
	webhookcontrollers "github.com/threadloom/royaltyhub-backend/api/controllers/webhooks"
	"github.com/threadloom/royaltyhub-backend/api/middleware"
	"github.com/threadloom/royaltyhub-backend/internal/assignments"
	billingsvc "github.com/threadloom/royaltyhub-backend/internal/billing"
	"github.com/threadloom/royaltyhub-backend/internal/orders"
	"github.com/threadloom/royaltyhub-backend/pkg/config"
	"github.com/threadloom/royaltyhub-backend/pkg/db"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
	"github.com/threadloom/royaltyhub-backend/pkg/redis"
	"github.com/threadloom/royaltyhub-backend/pkg/shopify"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          redis.Pinger
	Shopify        *shopify.Client
	WebhookService webhookcontrollers.OrderWebhookService
	Assignments    *assignments.Service
	Billing        *billingsvc.Service
	Orders         orders.Repository
	Registry       *prometheus.Registry
}

// NewRouter assembles the API surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, deps.Logger, deps.DB, deps.Redis))
	})

	r.Get("/api/public/ping", controllers.PublicPing())

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks/orders", func(r chi.Router) {
		r.Post("/create", webhookcontrollers.OrderCreated(deps.WebhookService, deps.Shopify, deps.Logger))
		r.Post("/updated", webhookcontrollers.OrderUpdated(deps.WebhookService, deps.Shopify, deps.Logger))
	})

	r.Route("/api/v1/royalties", func(r chi.Router) {
		r.Get("/", royaltycontrollers.ListAssignments(deps.Assignments, deps.Logger))
		r.Post("/", royaltycontrollers.CreateAssignment(deps.Assignments, deps.Logger))
		r.Patch("/{id}", royaltycontrollers.UpdateAssignment(deps.Assignments, deps.Logger))
		r.Post("/{id}/toggle", royaltycontrollers.ToggleAssignment(deps.Assignments, deps.Logger))
		r.Get("/orders", royaltycontrollers.ListOrders(deps.Orders, deps.Logger))
	})

	r.Route("/api/v1/billing", func(r chi.Router) {
		r.Get("/usage", billingcontrollers.GetUsage(deps.Billing, deps.Logger))
		r.Put("/capped-amount", billingcontrollers.RaiseCappedAmount(deps.Billing, deps.Logger))
		r.Get("/status", billingcontrollers.GetStatus(deps.Billing, deps.Logger))
	})

	return r
}
