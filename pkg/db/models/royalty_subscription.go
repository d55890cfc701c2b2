package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/threadloom/royaltyhub-backend/pkg/enums"
)

// RoyaltySubscription mirrors the shop's recurring application charge on
// the billing platform. The platform is authoritative for the capped
// amount; this row is a cache refreshed from platform responses.
type RoyaltySubscription struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Shop     string    `gorm:"column:shop;not null;index"`
	ChargeID string    `gorm:"column:charge_id;not null;unique"`
	Name     string    `gorm:"column:name;not null"`

	Price        decimal.Decimal `gorm:"column:price;type:numeric(18,2);not null;default:0"`
	CappedAmount decimal.Decimal `gorm:"column:capped_amount;type:numeric(18,2);not null"`
	Currency     string          `gorm:"column:currency;not null;default:'USD'"`
	Terms        string          `gorm:"column:terms"`

	Status enums.SubscriptionStatus `gorm:"column:status;not null;default:'pending'"`
	Test   bool                     `gorm:"column:test;not null;default:false"`

	ActivatedAt *time.Time `gorm:"column:activated_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
