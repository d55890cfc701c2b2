package royalties

import (
	"context"
	"net/http"

	"github.com/threadloom/royaltyhub-backend/api/responses"
	"github.com/threadloom/royaltyhub-backend/api/validators"
	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
)

type orderLister interface {
	ListByShop(ctx context.Context, shop string, limit int) ([]models.RoyaltyOrder, error)
}

// ListOrders returns the shop's most recent royalty orders.
func ListOrders(repo orderLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if repo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		shop := r.URL.Query().Get("shop")
		if shop == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "shop is required"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 250)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		results, err := repo.ListByShop(ctx, shop, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing royalty orders"))
			return
		}

		responses.WriteSuccess(w, results)
	}
}
