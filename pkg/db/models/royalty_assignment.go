package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/threadloom/royaltyhub-backend/pkg/types"
)

const shopifyProductGIDPrefix = "gid://shopify/Product/"

// RoyaltyAssignment binds a product to a designer at a royalty percentage.
// Archival is the deletion semantic; rows are never hard-deleted, so a
// product keeps its historical assignments after reassignment. A partial
// unique index (shop, product_id) WHERE NOT archived enforces at most one
// active assignment per product.
type RoyaltyAssignment struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Shop       string    `gorm:"column:shop;not null;index"`
	ProductID  string    `gorm:"column:product_id;not null;index"`
	ShopifyGID string    `gorm:"column:shopify_gid;not null"`
	Title      string    `gorm:"column:title;not null"`
	Image      *string   `gorm:"column:image"`
	DesignerID string    `gorm:"column:designer_id;not null;index"`

	Percentage decimal.Decimal `gorm:"column:percentage;type:numeric(5,2);not null"`
	Archived   bool            `gorm:"column:archived;not null;default:false"`
	Expiry     *time.Time      `gorm:"column:expiry"`

	Price types.PriceSnapshot `gorm:"column:price;type:jsonb"`

	UnitsSold      int64           `gorm:"column:units_sold;not null;default:0"`
	EarnedAmount   decimal.Decimal `gorm:"column:earned_amount;type:numeric(18,6);not null;default:0"`
	EarnedUSD      decimal.Decimal `gorm:"column:earned_usd;type:numeric(18,6);not null;default:0"`
	EarnedCurrency string          `gorm:"column:earned_currency;not null;default:''"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Active reports whether the assignment can earn royalty at the given time.
func (a *RoyaltyAssignment) Active(now time.Time) bool {
	if a == nil || a.Archived {
		return false
	}
	return !a.Expired(now)
}

// Expired reports whether the assignment's expiry has passed.
func (a *RoyaltyAssignment) Expired(now time.Time) bool {
	if a == nil || a.Expiry == nil {
		return false
	}
	return a.Expiry.Before(now)
}

// NumericProductID strips the Shopify GID prefix when present.
func NumericProductID(id string) string {
	if strings.Contains(id, shopifyProductGIDPrefix) {
		return strings.TrimPrefix(id, shopifyProductGIDPrefix)
	}
	return id
}

// ProductGID returns the platform-qualified form of a raw product id.
func ProductGID(id string) string {
	if strings.HasPrefix(id, shopifyProductGIDPrefix) {
		return id
	}
	return shopifyProductGIDPrefix + id
}
