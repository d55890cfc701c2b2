package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/threadloom/royaltyhub-backend/pkg/enums"
)

// RoyaltyTransaction is the billing ledger entry written after a usage
// charge is accepted by the billing platform. The compound unique index
// (shop, order_id, product_id, charge_ref, designer_id) is the idempotency
// key that suppresses double-billing under webhook redelivery. Rows are
// never mutated after creation.
type RoyaltyTransaction struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Shop        string    `gorm:"column:shop;not null;uniqueIndex:royalty_transactions_idempotency"`
	OrderID     string    `gorm:"column:order_id;not null;uniqueIndex:royalty_transactions_idempotency"`
	OrderName   string    `gorm:"column:order_name;not null"`
	ProductID   string    `gorm:"column:product_id;not null;uniqueIndex:royalty_transactions_idempotency"`
	ChargeRef   string    `gorm:"column:charge_ref;not null;default:'';uniqueIndex:royalty_transactions_idempotency"`
	DesignerID  string    `gorm:"column:designer_id;not null;default:'';uniqueIndex:royalty_transactions_idempotency"`
	Description string    `gorm:"column:description;not null"`

	StorePrice    decimal.Decimal `gorm:"column:store_price;type:numeric(18,2);not null"`
	StoreCurrency string          `gorm:"column:store_currency;not null"`
	USDPrice      decimal.Decimal `gorm:"column:usd_price;type:numeric(18,2);not null"`

	Status enums.TransactionStatus `gorm:"column:status;not null;default:'pending'"`

	BalanceUsed      decimal.Decimal `gorm:"column:balance_used;type:numeric(18,2);not null;default:0"`
	BalanceRemaining decimal.Decimal `gorm:"column:balance_remaining;type:numeric(18,2);not null;default:0"`

	Percentage decimal.Decimal `gorm:"column:percentage;type:numeric(5,2);not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
