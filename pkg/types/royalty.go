package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceSnapshot captures an amount in its original currency alongside the
// store-currency conversion taken at assignment time. Persisted as JSONB.
type PriceSnapshot struct {
	OriginalAmount   decimal.Decimal `json:"original_amount"`
	OriginalCurrency string          `json:"original_currency"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

// Value marshals the snapshot into JSON for Postgres.
func (p PriceSnapshot) Value() (driver.Value, error) {
	buf, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Scan decodes JSONB into the snapshot.
func (p *PriceSnapshot) Scan(value interface{}) error {
	raw, err := jsonbBytes("price snapshot", value)
	if err != nil {
		return err
	}
	if raw == nil {
		*p = PriceSnapshot{}
		return nil
	}
	return json.Unmarshal(raw, p)
}

// LineItemRoyalty is one line item's computed royalty, embedded in a
// royalty order. Amounts are in the shop's store currency.
type LineItemRoyalty struct {
	AssignmentID uuid.UUID       `json:"assignment_id"`
	ProductID    string          `json:"product_id"`
	Title        string          `json:"title"`
	VariantID    string          `json:"variant_id,omitempty"`
	VariantTitle string          `json:"variant_title,omitempty"`
	DesignerID   string          `json:"designer_id"`
	Amount       decimal.Decimal `json:"amount"`
	Quantity     int64           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Percentage   decimal.Decimal `json:"percentage"`
}

// LineItemRoyalties persists the embedded line item list as JSONB.
type LineItemRoyalties []LineItemRoyalty

// Value marshals the list into JSON for Postgres.
func (l LineItemRoyalties) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	buf, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Scan decodes JSONB into the list.
func (l *LineItemRoyalties) Scan(value interface{}) error {
	raw, err := jsonbBytes("line item royalties", value)
	if err != nil {
		return err
	}
	if raw == nil {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, l)
}

func jsonbBytes(label string, value interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("%s: unsupported scan type %T", label, value)
	}
}
