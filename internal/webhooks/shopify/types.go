package shopifywebhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
)

// OrderPayload is the slice of the platform's order webhook body this
// service reads. Platform payloads carry many more fields; unknown ones
// are ignored rather than rejected.
type OrderPayload struct {
	ID                  json.Number     `json:"id"`
	Name                string          `json:"name"`
	Currency            string          `json:"currency"`
	PresentmentCurrency string          `json:"presentment_currency"`
	FinancialStatus     string          `json:"financial_status"`
	FulfillmentStatus   string          `json:"fulfillment_status"`
	TotalLineItemsPrice string          `json:"total_line_items_price"`
	CreatedAt           time.Time       `json:"created_at"`
	LineItems           []OrderLineItem `json:"line_items"`
}

// OrderLineItem is one purchasable row on the order.
type OrderLineItem struct {
	ID           json.Number `json:"id"`
	ProductID    json.Number `json:"product_id"`
	VariantID    json.Number `json:"variant_id"`
	Title        string      `json:"title"`
	VariantTitle string      `json:"variant_title"`
	Quantity     int64       `json:"quantity"`
	Price        string      `json:"price"`
}

// DecodeOrderPayload parses and validates the raw webhook body. Numeric
// ids arrive as JSON numbers too large for float64, so decoding goes
// through json.Number.
func DecodeOrderPayload(body []byte) (*OrderPayload, error) {
	var payload OrderPayload
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode order payload")
	}
	if payload.ID.String() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if payload.Currency == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order currency is required")
	}
	if len(payload.LineItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order line items are required")
	}
	return &payload, nil
}

// UnitPrice parses the line item price, which the platform serializes as
// a string.
func (l OrderLineItem) UnitPrice() (decimal.Decimal, error) {
	price := strings.TrimSpace(l.Price)
	if price == "" {
		return decimal.Zero, nil
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse line item price")
	}
	return parsed, nil
}

// ProductTotal parses the order's product subtotal, defaulting to zero
// when absent.
func (p *OrderPayload) ProductTotal() decimal.Decimal {
	total, err := decimal.NewFromString(strings.TrimSpace(p.TotalLineItemsPrice))
	if err != nil {
		return decimal.Zero
	}
	return total
}
