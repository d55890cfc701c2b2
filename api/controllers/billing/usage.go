package billing

import (
	"net/http"

	"github.com/threadloom/royaltyhub-backend/api/responses"
	"github.com/threadloom/royaltyhub-backend/api/validators"
	billingsvc "github.com/threadloom/royaltyhub-backend/internal/billing"
	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
)

// GetUsage reports how much of the subscription cap is consumed.
func GetUsage(svc *billingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		usage, err := svc.GetUsage(ctx, r.URL.Query().Get("shop"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, usage)
	}
}

type raiseCappedAmountRequest struct {
	Shop string `json:"shop" validate:"required"`
}

// RaiseCappedAmount requests a higher usage cap from the billing platform.
// The response carries the merchant approval URL; nothing changes until
// the merchant confirms there.
func RaiseCappedAmount(svc *billingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		var payload raiseCappedAmountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		raise, err := svc.RaiseCappedAmount(ctx, payload.Shop)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, raise)
	}
}

// GetStatus refreshes and returns the subscription's platform status.
func GetStatus(svc *billingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		subscription, err := svc.RefreshStatus(ctx, r.URL.Query().Get("shop"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, subscription)
	}
}
