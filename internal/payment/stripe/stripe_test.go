package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test_abc",
		APIBaseURL:    server.URL + "/",
	}, server.Client())
}

func TestCreateCheckoutSessionSendsSubscriptionForm(t *testing.T) {
	var captured url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test_123" {
			t.Fatalf("missing bearer secret")
		}
		body, _ := io.ReadAll(r.Body)
		captured, _ = url.ParseQuery(string(body))
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://checkout.stripe.com/c/cs_test_1"}`))
	})

	session, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionParams{
		CustomerID: "cus_1",
		PriceID:    "price_monthly",
		SuccessURL: "https://example.com/ok",
		CancelURL:  "https://example.com/cancel",
		Metadata:   map[string]string{"userId": "7", "plan": "monthly"},
	})
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	if session.ID != "cs_test_1" {
		t.Fatalf("unexpected session: %+v", session)
	}
	checks := map[string]string{
		"mode":                              "subscription",
		"line_items[0][price]":              "price_monthly",
		"line_items[0][quantity]":           "1",
		"customer":                          "cus_1",
		"metadata[userId]":                  "7",
		"subscription_data[metadata][plan]": "monthly",
		"payment_method_types[]":            "card",
	}
	for key, want := range checks {
		if got := captured.Get(key); got != want {
			t.Fatalf("form %s want %q got %q", key, want, got)
		}
	}
}

func TestRetrieveSubscriptionReadsItemPeriod(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id":"sub_1","object":"subscription","status":"active",
			"customer":{"id":"cus_9","object":"customer"},
			"items":{"data":[{"id":"si_1","price":{"id":"price_y"},"current_period_start":1700000000,"current_period_end":1731536000}]},
			"cancel_at_period_end":true
		}`))
	})
	sub, err := client.RetrieveSubscription(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if sub.Customer.String() != "cus_9" || sub.PriceID() != "price_y" {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	if sub.PeriodStart() != 1700000000 || sub.PeriodEnd() != 1731536000 || !sub.CancelAtPeriodEnd {
		t.Fatalf("unexpected period: %+v", sub)
	}
}

func TestAPIErrorIsReported(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such customer"}}`))
	})
	_, err := client.RetrieveCustomer(context.Background(), "cus_missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found api error, got %v", err)
	}
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("api error should unwrap to ErrRequestFailed")
	}
}

func TestClientRequiresSecretKey(t *testing.T) {
	client := NewClient(Config{}, nil)
	if _, err := client.CreateCustomer(context.Background(), "a@example.com", nil); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func signedEvent(t *testing.T, secret string, now time.Time, payload map[string]interface{}) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	return body, SignPayload(secret, now, body)
}

func TestParseWebhookSubscriptionEvent(t *testing.T) {
	client := NewClient(Config{WebhookSecret: "whsec_test_abc"}, nil)
	now := time.Unix(1760000000, 0)
	body, header := signedEvent(t, "whsec_test_abc", now, map[string]interface{}{
		"id":   "evt_1",
		"type": EventSubscriptionCreated,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":   "subscription",
				"id":       "sub_123",
				"customer": "cus_123",
				"status":   "trialing",
				"metadata": map[string]interface{}{"userId": "42", "plan": "yearly"},
			},
		},
	})

	event, err := client.ParseWebhook(body, header, now)
	if err != nil {
		t.Fatalf("parse webhook failed: %v", err)
	}
	subEvent, ok := event.(*SubscriptionEvent)
	if !ok {
		t.Fatalf("expected subscription event, got %T", event)
	}
	if subEvent.EventID() != "evt_1" || subEvent.Subscription.ID != "sub_123" || subEvent.Subscription.Metadata["userId"] != "42" {
		t.Fatalf("unexpected event: %+v", subEvent)
	}
}

func TestParseWebhookInvoiceAndUnknownEvents(t *testing.T) {
	client := NewClient(Config{WebhookSecret: "whsec_test_abc"}, nil)
	now := time.Unix(1760000000, 0)
	body, header := signedEvent(t, "whsec_test_abc", now, map[string]interface{}{
		"id":   "evt_2",
		"type": EventInvoicePaymentFailed,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object": "invoice",
				"id":     "in_1",
				"parent": map[string]interface{}{
					"subscription_details": map[string]interface{}{"subscription": "sub_9"},
				},
			},
		},
	})
	event, err := client.ParseWebhook(body, header, now)
	if err != nil {
		t.Fatalf("parse invoice failed: %v", err)
	}
	invoiceEvent, ok := event.(*InvoiceEvent)
	if !ok || invoiceEvent.Invoice.SubscriptionID() != "sub_9" {
		t.Fatalf("unexpected invoice event: %#v", event)
	}

	body, header = signedEvent(t, "whsec_test_abc", now, map[string]interface{}{
		"id":   "evt_3",
		"type": "charge.refunded",
		"data": map[string]interface{}{"object": map[string]interface{}{"id": "ch_1"}},
	})
	event, err = client.ParseWebhook(body, header, now)
	if err != nil {
		t.Fatalf("parse unknown failed: %v", err)
	}
	if _, ok := event.(*UnknownEvent); !ok {
		t.Fatalf("expected unknown event, got %T", event)
	}
}

func TestParseWebhookInvalidSignature(t *testing.T) {
	client := NewClient(Config{WebhookSecret: "whsec_test_abc"}, nil)
	now := time.Unix(1760000000, 0)
	body, _ := signedEvent(t, "whsec_other", now, map[string]interface{}{
		"id":   "evt_bad",
		"type": EventSubscriptionDeleted,
		"data": map[string]interface{}{"object": map[string]interface{}{"object": "subscription", "id": "sub_1"}},
	})
	header := SignPayload("whsec_other", now, body)
	if _, err := client.ParseWebhook(body, header, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}

	valid := SignPayload("whsec_test_abc", now, body)
	if _, err := client.ParseWebhook(body, valid, now.Add(10*time.Minute)); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected tolerance error, got %v", err)
	}
	if _, err := client.ParseWebhook(body, "", now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected missing header error, got %v", err)
	}
}

func TestParseWebhookRejectsMalformedSubscription(t *testing.T) {
	client := NewClient(Config{WebhookSecret: "whsec_test_abc"}, nil)
	now := time.Unix(1760000000, 0)
	body, header := signedEvent(t, "whsec_test_abc", now, map[string]interface{}{
		"id":   "evt_4",
		"type": EventSubscriptionUpdated,
		"data": map[string]interface{}{"object": map[string]interface{}{"object": "invoice", "id": "in_1"}},
	})
	if _, err := client.ParseWebhook(body, header, now); !errors.Is(err, ErrResponseInvalid) {
		t.Fatalf("expected schema error, got %v", err)
	}
}
