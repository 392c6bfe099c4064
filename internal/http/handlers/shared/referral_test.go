package shared

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newReferralTestContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	if body != "" {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return c, w
}

func TestExtractReferralCodeOrder(t *testing.T) {
	c, _ := newReferralTestContext(http.MethodPost, "/api/user/create?ref=query111&referral=second22", `{"referralCode":"body3333"}`)
	c.Request.AddCookie(&http.Cookie{Name: ReferralCookieName, Value: "COOKIE44"})
	c.Request.Header.Set(ReferralHeaderName, "HEADER55")
	if got := ExtractReferralCode(c); got != "QUERY111" {
		t.Fatalf("query ref should win, got %s", got)
	}

	c, _ = newReferralTestContext(http.MethodPost, "/api/user/create?ref=x!&referral=second22", `{"referralCode":"body3333"}`)
	if got := ExtractReferralCode(c); got != "SECOND22" {
		t.Fatalf("invalid ref should fall through to referral, got %s", got)
	}

	c, _ = newReferralTestContext(http.MethodPost, "/api/user/create", `{"email":"a@example.com","referralCode":"body3333"}`)
	c.Request.AddCookie(&http.Cookie{Name: ReferralCookieName, Value: "COOKIE44"})
	if got := ExtractReferralCode(c); got != "BODY3333" {
		t.Fatalf("body should win over cookie, got %s", got)
	}
	raw, _ := io.ReadAll(c.Request.Body)
	if !strings.Contains(string(raw), `"email":"a@example.com"`) {
		t.Fatalf("body should be restored, got %s", raw)
	}

	c, _ = newReferralTestContext(http.MethodGet, "/api/plugin/getallplugins", "")
	c.Request.AddCookie(&http.Cookie{Name: ReferralCookieName, Value: "cookie44"})
	c.Request.Header.Set(ReferralHeaderName, "HEADER55")
	if got := ExtractReferralCode(c); got != "COOKIE44" {
		t.Fatalf("cookie should win over header, got %s", got)
	}

	c, _ = newReferralTestContext(http.MethodGet, "/api/plugin/getallplugins", "")
	c.Request.Header.Set(ReferralHeaderName, "header55")
	if got := ExtractReferralCode(c); got != "HEADER55" {
		t.Fatalf("header fallback failed, got %s", got)
	}

	c, _ = newReferralTestContext(http.MethodGet, "/api/plugin/getallplugins?ref=short", "")
	if got := ExtractReferralCode(c); got != "" {
		t.Fatalf("short code should be rejected, got %s", got)
	}
}

func TestExtractReferralCodeSkipsOversizedBody(t *testing.T) {
	body := `{"referralCode":"BODY3333","padding":"` + strings.Repeat("x", maxReferralPeekBytes) + `"}`
	c, _ := newReferralTestContext(http.MethodPost, "/api/user/create", body)
	c.Request.Header.Set(ReferralHeaderName, "HEADER55")
	if got := ExtractReferralCode(c); got != "HEADER55" {
		t.Fatalf("oversized body should be skipped, got %s", got)
	}
	raw, _ := io.ReadAll(c.Request.Body)
	if len(raw) != len(body) {
		t.Fatalf("body should be restored in full, got %d of %d bytes", len(raw), len(body))
	}
}

func TestSetReferralCookie(t *testing.T) {
	c, w := newReferralTestContext(http.MethodGet, "/", "")
	SetReferralCookie(c, "ABC12345", 0, true)
	cookie := w.Header().Get("Set-Cookie")
	for _, want := range []string{"referralCode=ABC12345", "Max-Age=2592000", "HttpOnly", "Secure", "SameSite=Lax"} {
		if !strings.Contains(cookie, want) {
			t.Fatalf("cookie %q missing %s", cookie, want)
		}
	}
}

func TestSafeRedirectTarget(t *testing.T) {
	allowlist := []string{"https://shop.example.com/"}
	cases := map[string]string{
		"":                                "/",
		"/pricing?plan=yearly":            "/pricing?plan=yearly",
		"//evil.example.com":              "/",
		"/\\evil.example.com":             "/",
		"https://shop.example.com/promo":  "https://shop.example.com/promo",
		"HTTPS://SHOP.example.com/promo":  "HTTPS://SHOP.example.com/promo",
		"https://evil.example.com/promo":  "/",
		"javascript:alert(1)":             "/",
		"ftp://shop.example.com/download": "/",
	}
	for input, want := range cases {
		if got := SafeRedirectTarget(input, allowlist); got != want {
			t.Fatalf("redirect %q want %q got %q", input, want, got)
		}
	}
}
