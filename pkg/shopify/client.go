package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/threadloom/royaltyhub-backend/pkg/config"
	pkgerrors "github.com/threadloom/royaltyhub-backend/pkg/errors"
	"github.com/threadloom/royaltyhub-backend/pkg/logger"
)

const accessTokenHeader = "X-Shopify-Access-Token"

var (
	errWebhookSecretRequired = errors.New("shopify webhook secret is required")
	errLoggerRequired        = errors.New("shopify logger is required")
)

// TokenSource resolves the Admin API access token for a shop.
type TokenSource interface {
	AccessToken(ctx context.Context, shop string) (string, error)
}

// StaticTokenSource serves one configured token for every shop. Suits
// single-store installs; multi-store installs inject a session-backed
// implementation.
type StaticTokenSource string

func (s StaticTokenSource) AccessToken(ctx context.Context, shop string) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "no access token available for shop")
	}
	return token, nil
}

// Client wraps the Shopify Admin REST Billing API with centralized auth,
// logging, and error mapping.
type Client struct {
	httpClient    *http.Client
	apiVersion    string
	webhookSecret string
	tokens        TokenSource
	logger        *logger.Logger

	// baseURLOverride replaces https://{shop} for tests.
	baseURLOverride string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the per-shop admin URL, for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURLOverride = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// NewClient initializes the Shopify wrapper and validates the credentials.
func NewClient(cfg config.ShopifyConfig, tokens TokenSource, logg *logger.Logger, opts ...Option) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errWebhookSecretRequired
	}
	if tokens == nil {
		tokens = StaticTokenSource(cfg.AccessToken)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = "2025-07"
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		apiVersion:    apiVersion,
		webhookSecret: secret,
		tokens:        tokens,
		logger:        logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// SigningSecret returns the webhook HMAC secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// UsageCharge is the platform's metered charge representation.
type UsageCharge struct {
	ID               int64           `json:"id"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	Status           string          `json:"status"`
	BalanceUsed      decimal.Decimal `json:"balance_used"`
	BalanceRemaining decimal.Decimal `json:"balance_remaining"`
	CreatedAt        time.Time       `json:"created_at"`
}

type usageChargeEnvelope struct {
	UsageCharge *UsageCharge `json:"usage_charge"`
}

// CreateUsageCharge posts a metered charge against the shop's recurring
// application charge. The price must already be in the billing currency.
func (c *Client) CreateUsageCharge(ctx context.Context, shop, chargeID, description string, price decimal.Decimal) (*UsageCharge, error) {
	if shop == "" || chargeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop and charge id are required")
	}

	body := map[string]any{
		"usage_charge": map[string]any{
			"description": description,
			"price":       price.StringFixed(2),
		},
	}

	path := fmt.Sprintf("recurring_application_charges/%s/usage_charges.json", chargeID)
	c.log(ctx, "request", "create_usage_charge", map[string]any{
		"shop":      shop,
		"charge_id": chargeID,
		"price":     price.StringFixed(2),
	})

	var envelope usageChargeEnvelope
	if err := c.do(ctx, http.MethodPost, shop, path, body, &envelope); err != nil {
		c.log(ctx, "error", "create_usage_charge", map[string]any{"error": err.Error()})
		return nil, err
	}
	if envelope.UsageCharge == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "usage charge missing from response")
	}

	c.log(ctx, "response", "create_usage_charge", map[string]any{
		"usage_charge_id": envelope.UsageCharge.ID,
		"status":          envelope.UsageCharge.Status,
	})
	return envelope.UsageCharge, nil
}

// RecurringCharge is the platform's subscription representation.
type RecurringCharge struct {
	ID                    int64           `json:"id"`
	Name                  string          `json:"name"`
	Price                 decimal.Decimal `json:"price"`
	CappedAmount          decimal.Decimal `json:"capped_amount"`
	Status                string          `json:"status"`
	Terms                 string          `json:"terms"`
	Test                  bool            `json:"test"`
	UpdateCappedAmountURL string          `json:"update_capped_amount_url"`
	ConfirmationURL       string          `json:"confirmation_url"`
}

type recurringChargeEnvelope struct {
	RecurringCharge *RecurringCharge `json:"recurring_application_charge"`
}

// UpdateCappedAmount requests a new capped amount for the charge. The
// platform requires merchant re-approval; the returned charge carries the
// approval URL to surface to the merchant.
func (c *Client) UpdateCappedAmount(ctx context.Context, shop, chargeID string, cappedAmount decimal.Decimal) (*RecurringCharge, error) {
	if shop == "" || chargeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop and charge id are required")
	}

	body := map[string]any{
		"recurring_application_charge": map[string]any{
			"capped_amount": cappedAmount.StringFixed(2),
		},
	}

	path := fmt.Sprintf("recurring_application_charges/%s/customize.json", chargeID)
	c.log(ctx, "request", "update_capped_amount", map[string]any{
		"shop":          shop,
		"charge_id":     chargeID,
		"capped_amount": cappedAmount.StringFixed(2),
	})

	var envelope recurringChargeEnvelope
	if err := c.do(ctx, http.MethodPut, shop, path, body, &envelope); err != nil {
		c.log(ctx, "error", "update_capped_amount", map[string]any{"error": err.Error()})
		return nil, err
	}
	if envelope.RecurringCharge == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "recurring charge missing from response")
	}
	return envelope.RecurringCharge, nil
}

// GetRecurringCharge fetches the subscription's current platform state.
func (c *Client) GetRecurringCharge(ctx context.Context, shop, chargeID string) (*RecurringCharge, error) {
	if shop == "" || chargeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop and charge id are required")
	}

	path := fmt.Sprintf("recurring_application_charges/%s.json", chargeID)
	var envelope recurringChargeEnvelope
	if err := c.do(ctx, http.MethodGet, shop, path, nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.RecurringCharge == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "recurring charge missing from response")
	}
	return envelope.RecurringCharge, nil
}

func (c *Client) do(ctx context.Context, method, shop, path string, body, out any) error {
	token, err := c.tokens.AccessToken(ctx, shop)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve access token")
	}

	base := c.baseURLOverride
	if base == "" {
		base = fmt.Sprintf("https://%s", shop)
	}
	endpoint := fmt.Sprintf("%s/admin/api/%s/%s", base, c.apiVersion, path)

	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode request body")
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	req.Header.Set(accessTokenHeader, token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call shopify api")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("shopify api returned status %d", resp.StatusCode)).
			WithDetails(errBody)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode shopify response")
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, operation string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	merged := map[string]any{"phase": phase, "operation": operation}
	for k, v := range fields {
		merged[k] = v
	}
	c.logger.Info(c.logger.WithFields(ctx, merged), "shopify."+operation)
}
