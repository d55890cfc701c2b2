package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/threadloom/royaltyhub-backend/pkg/types"
)

// RoyaltyOrder is the single record for an externally identified order.
// The unique (shop, order_id) index is the idempotency key for order
// processing: a redelivered order-create webhook finds this row and stops.
// Rows are immutable once written; order-update events only emit
// transactions.
type RoyaltyOrder struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Shop      string    `gorm:"column:shop;not null;uniqueIndex:royalty_orders_shop_order_id"`
	OrderID   string    `gorm:"column:order_id;not null;uniqueIndex:royalty_orders_shop_order_id"`
	OrderName string    `gorm:"column:order_name;not null"`

	Currency      string `gorm:"column:currency;not null"`
	StoreCurrency string `gorm:"column:store_currency;not null"`

	LineItems types.LineItemRoyalties `gorm:"column:line_items;type:jsonb;not null"`

	// CalculatedRoyalty is in store currency; NormalizedRoyaltyUSD carries
	// six decimal places so cross-shop aggregation does not compound
	// rounding error.
	CalculatedRoyalty    decimal.Decimal `gorm:"column:calculated_royalty;type:numeric(18,2);not null"`
	NormalizedRoyaltyUSD decimal.Decimal `gorm:"column:normalized_royalty_usd;type:numeric(18,6);not null"`
	OrderProductTotal    decimal.Decimal `gorm:"column:order_product_total;type:numeric(18,2);not null"`

	OrderCreatedAt time.Time `gorm:"column:order_created_at;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
