package royalties

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/threadloom/royaltyhub-backend/pkg/db/models"
)

type stubOrderLister struct {
	shop   string
	limit  int
	orders []models.RoyaltyOrder
}

func (s *stubOrderLister) ListByShop(ctx context.Context, shop string, limit int) ([]models.RoyaltyOrder, error) {
	s.shop = shop
	s.limit = limit
	return s.orders, nil
}

func TestListOrdersEndpoint(t *testing.T) {
	lister := &stubOrderLister{
		orders: []models.RoyaltyOrder{{
			Shop:              "demo.myshopify.com",
			OrderID:           "1001",
			OrderName:         "#1001",
			CalculatedRoyalty: decimal.RequireFromString("8.65"),
		}},
	}
	handler := ListOrders(lister, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/royalties/orders?shop=demo.myshopify.com&limit=25", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "demo.myshopify.com", lister.shop)
	require.Equal(t, 25, lister.limit)
	require.Contains(t, rec.Body.String(), "#1001")
}

func TestListOrdersEndpointRequiresShop(t *testing.T) {
	handler := ListOrders(&stubOrderLister{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/royalties/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrdersEndpointRejectsBadLimit(t *testing.T) {
	handler := ListOrders(&stubOrderLister{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/royalties/orders?shop=demo.myshopify.com&limit=9999", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
