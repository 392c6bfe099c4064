package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Webhook 事件类型。
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventSubscriptionTrialWillEnd = "customer.subscription.trial_will_end"
	EventInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
)

// Event 已验签的 webhook 事件，具体类型见 SubscriptionEvent、CheckoutSessionEvent、InvoiceEvent、UnknownEvent。
type Event interface {
	EventID() string
	EventType() string
}

// EventMeta 事件公共字段。
type EventMeta struct {
	ID      string
	Type    string
	Created time.Time
}

func (m EventMeta) EventID() string   { return m.ID }
func (m EventMeta) EventType() string { return m.Type }

// SubscriptionEvent customer.subscription.* 事件。
type SubscriptionEvent struct {
	EventMeta
	Subscription Subscription
}

// CheckoutSessionEvent checkout.session.* 事件。
type CheckoutSessionEvent struct {
	EventMeta
	Session CheckoutSession
}

// InvoiceEvent invoice.* 事件。
type InvoiceEvent struct {
	EventMeta
	Invoice Invoice
}

// UnknownEvent 未处理的事件类型，保留原始对象。
type UnknownEvent struct {
	EventMeta
	Object json.RawMessage
}

type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseWebhook 校验签名并解析事件，签名无效时不解析事件内容。
func (c *Client) ParseWebhook(body []byte, signatureHeader string, now time.Time) (Event, error) {
	if c == nil || c.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if err := verifySignature(c.cfg.WebhookSecret, c.cfg.WebhookToleranceSeconds, signatureHeader, body, now); err != nil {
		return nil, err
	}
	return decodeEvent(body)
}

func verifySignature(secret string, toleranceSeconds int, signatureHeader string, body []byte, now time.Time) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return fmt.Errorf("%w: Stripe-Signature is required", ErrSignatureInvalid)
	}
	if now.IsZero() {
		now = time.Now()
	}
	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return err
	}
	if toleranceSeconds > 0 {
		delta := math.Abs(float64(now.Unix() - timestamp))
		if delta > float64(toleranceSeconds) {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
		}
	}
	expected := computeSignature(secret, timestamp, body)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("%w: verify failed", ErrSignatureInvalid)
}

func decodeEvent(body []byte) (Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode event failed", ErrResponseInvalid)
	}
	eventType := strings.TrimSpace(envelope.Type)
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrResponseInvalid)
	}
	if len(envelope.Data.Object) == 0 {
		return nil, fmt.Errorf("%w: missing event object", ErrResponseInvalid)
	}
	meta := EventMeta{ID: strings.TrimSpace(envelope.ID), Type: eventType}
	if envelope.Created > 0 {
		meta.Created = time.Unix(envelope.Created, 0)
	}

	switch {
	case strings.HasPrefix(eventType, "customer.subscription."):
		event := &SubscriptionEvent{EventMeta: meta}
		if err := json.Unmarshal(envelope.Data.Object, &event.Subscription); err != nil {
			return nil, fmt.Errorf("%w: decode subscription failed", ErrResponseInvalid)
		}
		if err := event.Subscription.validate(); err != nil {
			return nil, err
		}
		return event, nil
	case strings.HasPrefix(eventType, "checkout.session."):
		event := &CheckoutSessionEvent{EventMeta: meta}
		if err := json.Unmarshal(envelope.Data.Object, &event.Session); err != nil {
			return nil, fmt.Errorf("%w: decode checkout session failed", ErrResponseInvalid)
		}
		if event.Session.ID == "" {
			return nil, fmt.Errorf("%w: missing checkout session id", ErrResponseInvalid)
		}
		return event, nil
	case strings.HasPrefix(eventType, "invoice."):
		event := &InvoiceEvent{EventMeta: meta}
		if err := json.Unmarshal(envelope.Data.Object, &event.Invoice); err != nil {
			return nil, fmt.Errorf("%w: decode invoice failed", ErrResponseInvalid)
		}
		if event.Invoice.ID == "" {
			return nil, fmt.Errorf("%w: missing invoice id", ErrResponseInvalid)
		}
		return event, nil
	default:
		return &UnknownEvent{EventMeta: meta, Object: envelope.Data.Object}, nil
	}
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	payload := strconv.FormatInt(timestamp, 10) + "." + string(body)
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// SignPayload 生成 Stripe-Signature 头，供本地联调与测试构造事件。
func SignPayload(secret string, timestamp time.Time, body []byte) string {
	ts := timestamp.Unix()
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + computeSignature(secret, ts, body)
}

func parseSignatureHeader(signatureHeader string) (int64, []string, error) {
	timestamp := int64(0)
	signatures := make([]string, 0)
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		value := strings.TrimSpace(kv[1])
		switch strings.TrimSpace(kv[0]) {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
			}
			timestamp = parsed
		case "v1":
			if value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if timestamp <= 0 {
		return 0, nil, fmt.Errorf("%w: timestamp is missing", ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: v1 signature is missing", ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
}
