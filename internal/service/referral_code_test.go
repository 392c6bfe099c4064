package service

import (
	"errors"
	"testing"
)

func TestDeriveReferralCodeDeterministic(t *testing.T) {
	first := deriveReferralCode(42, 0)
	second := deriveReferralCode(42, 0)
	if first != second {
		t.Fatalf("expected deterministic code, got %s and %s", first, second)
	}
	if !referralCodePattern.MatchString(first) || len(first) != referralCodeLength {
		t.Fatalf("unexpected code format: %s", first)
	}
	if deriveReferralCode(42, 1) == first {
		t.Fatalf("salted attempt should produce a different code")
	}
}

func TestGenerateUniqueReferralCodeRetriesOnCollision(t *testing.T) {
	taken := map[string]bool{
		deriveReferralCode(7, 0): true,
		deriveReferralCode(7, 1): true,
	}
	calls := 0
	code, err := GenerateUniqueReferralCode(7, func(code string) (bool, error) {
		calls++
		return taken[code], nil
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if code != deriveReferralCode(7, 2) {
		t.Fatalf("expected third attempt code, got %s", code)
	}
	if calls != 3 {
		t.Fatalf("expected 3 lookups, got %d", calls)
	}
}

func TestGenerateUniqueReferralCodeExhausted(t *testing.T) {
	calls := 0
	_, err := GenerateUniqueReferralCode(7, func(string) (bool, error) {
		calls++
		return true, nil
	})
	if !errors.Is(err, ErrReferralCodeExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if calls != referralCodeMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", referralCodeMaxAttempts, calls)
	}
}

func TestNormalizeReferralCode(t *testing.T) {
	cases := map[string]string{
		" abc12345 ": "ABC12345",
		"ABC":        "",
		"abc-12345":  "",
		"":           "",
	}
	for input, want := range cases {
		if got := NormalizeReferralCode(input); got != want {
			t.Fatalf("normalize %q want %q got %q", input, want, got)
		}
	}
}
