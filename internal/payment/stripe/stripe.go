package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("stripe config invalid")
	ErrRequestFailed    = errors.New("stripe request failed")
	ErrResponseInvalid  = errors.New("stripe response invalid")
	ErrSignatureInvalid = errors.New("stripe signature invalid")
)

const (
	defaultAPIBaseURL        = "https://api.stripe.com"
	defaultTimeout           = 12 * time.Second
	defaultWebhookToleranceS = 300
)

// Config Stripe 订阅配置。
type Config struct {
	SecretKey               string
	WebhookSecret           string
	APIBaseURL              string
	WebhookToleranceSeconds int
}

func (c *Config) normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.WebhookToleranceSeconds <= 0 {
		c.WebhookToleranceSeconds = defaultWebhookToleranceS
	}
}

// Client Stripe REST 客户端，由调用方构造并注入。
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient 创建 Stripe 客户端，httpClient 为空时使用默认超时客户端。
func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg.normalize()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// Configured 是否已配置密钥。
func (c *Client) Configured() bool {
	return c != nil && c.cfg.SecretKey != ""
}

// APIError Stripe 返回的错误信息。
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe api error (status %d, type %s, code %s): %s", e.StatusCode, e.Type, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrRequestFailed
}

// IsNotFound 资源不存在。
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// CheckoutSessionParams 创建订阅结账会话参数。
type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CreateCustomer 创建客户。
func (c *Client) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*Customer, error) {
	form := url.Values{}
	if email = strings.TrimSpace(email); email != "" {
		form.Set("email", email)
	}
	setMetadata(form, "metadata", metadata)

	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/v1/customers", form, &customer); err != nil {
		return nil, err
	}
	if customer.ID == "" {
		return nil, fmt.Errorf("%w: missing customer id", ErrResponseInvalid)
	}
	return &customer, nil
}

// RetrieveCustomer 查询客户，已删除的客户 Deleted 为 true。
func (c *Client) RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrConfigInvalid)
	}
	var customer Customer
	if err := c.do(ctx, http.MethodGet, "/v1/customers/"+url.PathEscape(customerID), nil, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCheckoutSession 创建订阅模式的托管结账页面。
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	if strings.TrimSpace(params.PriceID) == "" {
		return nil, fmt.Errorf("%w: price id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(params.SuccessURL) == "" || strings.TrimSpace(params.CancelURL) == "" {
		return nil, fmt.Errorf("%w: success and cancel url are required", ErrConfigInvalid)
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Add("payment_method_types[]", "card")
	form.Set("line_items[0][price]", strings.TrimSpace(params.PriceID))
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", strings.TrimSpace(params.SuccessURL))
	form.Set("cancel_url", strings.TrimSpace(params.CancelURL))
	if customerID := strings.TrimSpace(params.CustomerID); customerID != "" {
		form.Set("customer", customerID)
	}
	setMetadata(form, "metadata", params.Metadata)
	setMetadata(form, "subscription_data[metadata]", params.Metadata)

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("%w: missing session id or url", ErrResponseInvalid)
	}
	return &session, nil
}

// RetrieveSubscription 查询订阅。
func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, fmt.Errorf("%w: subscription id is required", ErrConfigInvalid)
	}
	var subscription Subscription
	if err := c.do(ctx, http.MethodGet, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, &subscription); err != nil {
		return nil, err
	}
	if err := subscription.validate(); err != nil {
		return nil, err
	}
	return &subscription, nil
}

// CancelSubscription 立即取消订阅。
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, fmt.Errorf("%w: subscription id is required", ErrConfigInvalid)
	}
	var subscription Subscription
	if err := c.do(ctx, http.MethodDelete, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, &subscription); err != nil {
		return nil, err
	}
	if err := subscription.validate(); err != nil {
		return nil, err
	}
	return &subscription, nil
}

// UpdateSubscriptionPrice 替换订阅项价格，按比例计费。
func (c *Client) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string, metadata map[string]string) (*Subscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" || strings.TrimSpace(itemID) == "" || strings.TrimSpace(priceID) == "" {
		return nil, fmt.Errorf("%w: subscription, item and price id are required", ErrConfigInvalid)
	}
	form := url.Values{}
	form.Set("items[0][id]", strings.TrimSpace(itemID))
	form.Set("items[0][price]", strings.TrimSpace(priceID))
	form.Set("proration_behavior", "create_prorations")
	setMetadata(form, "metadata", metadata)

	var subscription Subscription
	if err := c.do(ctx, http.MethodPost, "/v1/subscriptions/"+url.PathEscape(subscriptionID), form, &subscription); err != nil {
		return nil, err
	}
	if err := subscription.validate(); err != nil {
		return nil, err
	}
	return &subscription, nil
}

// CreateBillingPortalSession 创建客户自助账单页面。
func (c *Client) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrConfigInvalid)
	}
	form := url.Values{}
	form.Set("customer", customerID)
	if returnURL = strings.TrimSpace(returnURL); returnURL != "" {
		form.Set("return_url", returnURL)
	}
	var session PortalSession
	if err := c.do(ctx, http.MethodPost, "/v1/billing_portal/sessions", form, &session); err != nil {
		return nil, err
	}
	if session.URL == "" {
		return nil, fmt.Errorf("%w: missing portal url", ErrResponseInvalid)
	}
	return &session, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	if !c.Configured() {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.cfg.APIBaseURL + path
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		_ = json.Unmarshal(respBody, &envelope)
		apiErr := envelope.Error
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return nil
}

func setMetadata(form url.Values, prefix string, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		form.Set(prefix+"["+key+"]", metadata[key])
	}
}
