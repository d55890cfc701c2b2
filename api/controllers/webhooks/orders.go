package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/threadloom/royaltyhub-backend/api/responses"
	shopifywebhook "github.com/threadloom/royaltyhub-backend/internal/webhooks/shopify"
	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
)

const (
	shopDomainHeader = "X-Shopify-Shop-Domain"
	signatureHeader  = "X-Shopify-Hmac-Sha256"
	topicHeader      = "X-Shopify-Topic"
)

// OrderWebhookService processes verified order payloads.
type OrderWebhookService interface {
	HandleOrderCreate(ctx context.Context, shop string, payload *shopifywebhook.OrderPayload) (*shopifywebhook.ProcessResult, error)
	HandleOrderUpdate(ctx context.Context, shop string, payload *shopifywebhook.OrderPayload) (*shopifywebhook.ProcessResult, error)
}

type signingClient interface {
	SigningSecret() string
}

type orderWebhookResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	RoyaltyOrder any    `json:"royaltyOrder,omitempty"`
}

// OrderCreated handles the platform's order creation webhook.
func OrderCreated(svc OrderWebhookService, client signingClient, logg *logger.Logger) http.HandlerFunc {
	return handleOrderWebhook(svc, client, logg, func(ctx context.Context, svc OrderWebhookService, shop string, payload *shopifywebhook.OrderPayload) (*shopifywebhook.ProcessResult, error) {
		return svc.HandleOrderCreate(ctx, shop, payload)
	})
}

// OrderUpdated handles the platform's order update webhook.
func OrderUpdated(svc OrderWebhookService, client signingClient, logg *logger.Logger) http.HandlerFunc {
	return handleOrderWebhook(svc, client, logg, func(ctx context.Context, svc OrderWebhookService, shop string, payload *shopifywebhook.OrderPayload) (*shopifywebhook.ProcessResult, error) {
		return svc.HandleOrderUpdate(ctx, shop, payload)
	})
}

func handleOrderWebhook(svc OrderWebhookService, client signingClient, logg *logger.Logger, dispatch func(context.Context, OrderWebhookService, string, *shopifywebhook.OrderPayload) (*shopifywebhook.ProcessResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shopify client unavailable"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		shop := strings.TrimSpace(r.Header.Get(shopDomainHeader))
		if shop == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "shop domain header missing"))
			return
		}

		signature := r.Header.Get(signatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing"))
			return
		}
		if !shopifywebhook.ValidSignature(body, client.SigningSecret(), signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		payload, err := shopifywebhook.DecodeOrderPayload(body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"topic": r.Header.Get(topicHeader),
				"shop":  shop,
			})
		}

		result, err := dispatch(ctx, svc, shop, payload)
		if err != nil {
			// The order may already be committed; a non-2xx status makes
			// the platform redeliver so failed charges retry.
			if result != nil {
				msg := "settlement failed"
				if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
					msg = typed.Message()
				}
				resp := orderWebhookResponse{Success: false, Message: msg}
				if result.Order != nil {
					resp.RoyaltyOrder = result.Order
				}
				responses.WriteSuccessStatus(w, http.StatusInternalServerError, resp)
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		// An order with no royalty-bearing items reports success=false so
		// callers can tell a skip from a recorded order.
		resp := orderWebhookResponse{Success: !result.NoRoyalties, Message: result.Message}
		if result.Order != nil {
			resp.RoyaltyOrder = result.Order
		}
		responses.WriteSuccess(w, resp)
	}
}
