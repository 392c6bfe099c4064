package service

import (
	"errors"
	"testing"
	"time"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/models"
)

func TestGenerateProductKeyFormat(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		key, err := GenerateProductKey()
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if !IsProductKeyFormat(key) {
			t.Fatalf("unexpected key format: %s", key)
		}
		seen[key] = struct{}{}
	}
	if len(seen) < 199 {
		t.Fatalf("expected distinct keys, got %d unique of 200", len(seen))
	}
}

func TestGenerateUniqueProductKeyExhausted(t *testing.T) {
	_, err := generateUniqueProductKey(func(string) (bool, error) { return true, nil })
	if !errors.Is(err, ErrProductKeyExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}

func TestEvaluateProductKey(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(72 * time.Hour)

	cases := []struct {
		name       string
		sub        *models.Subscription
		valid      bool
		status     string
		willCancel bool
	}{
		{"missing", nil, false, "Product key not found", false},
		{"expired", &models.Subscription{Status: constants.SubscriptionStatusActive, CurrentPeriodEnd: &past}, false, "Expired", false},
		{"inactive", &models.Subscription{Status: constants.SubscriptionStatusPastDue, CurrentPeriodEnd: &future}, false, "Inactive", false},
		{"active", &models.Subscription{Status: constants.SubscriptionStatusActive, CurrentPeriodEnd: &future}, true, "Active", false},
		{"trialing", &models.Subscription{Status: constants.SubscriptionStatusTrialing, CurrentPeriodEnd: &future}, true, "Active", false},
		{"canceling", &models.Subscription{Status: constants.SubscriptionStatusActive, CurrentPeriodEnd: &future, CancelAtPeriodEnd: true}, true, "Active (Canceling at period end)", true},
	}
	for _, tc := range cases {
		got := evaluateProductKey(tc.sub, now)
		if got.IsValid != tc.valid || got.Status != tc.status || got.WillCancel != tc.willCancel {
			t.Fatalf("%s: unexpected result %+v", tc.name, got)
		}
	}
}

func TestEvaluateExpiration(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(6*24*time.Hour + time.Hour)
	later := now.Add(30 * 24 * time.Hour)
	past := now.Add(-time.Minute)

	if got := evaluateExpiration(&models.Subscription{CurrentPeriodEnd: &soon}, now); !got.WillExpireSoon || got.DaysUntilExpiration != 7 {
		t.Fatalf("expected warning at 7 days, got %+v", got)
	}
	if got := evaluateExpiration(&models.Subscription{CurrentPeriodEnd: &later}, now); got.WillExpireSoon {
		t.Fatalf("30 days out should not warn: %+v", got)
	}
	if got := evaluateExpiration(&models.Subscription{CurrentPeriodEnd: &past}, now); got.WillExpireSoon {
		t.Fatalf("expired key should not warn: %+v", got)
	}
}
