package shared

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pluginhub/internal/service"

	"github.com/gin-gonic/gin"
)

// 推荐码来源
const (
	ReferralCookieName = "referralCode"
	ReferralHeaderName = "X-Referral-Code"
)

// ExtractReferralCode 按 query ref、query referral、body referralCode、cookie、header 顺序读取推荐码。
// 返回大写后的合法推荐码，格式非法时跳过该来源。
func ExtractReferralCode(c *gin.Context) string {
	candidates := []func() string{
		func() string { return c.Query("ref") },
		func() string { return c.Query("referral") },
		func() string { return peekBodyReferralCode(c) },
		func() string {
			value, _ := c.Cookie(ReferralCookieName)
			return value
		},
		func() string { return c.GetHeader(ReferralHeaderName) },
	}
	for _, candidate := range candidates {
		if code := service.NormalizeReferralCode(candidate()); code != "" {
			return code
		}
	}
	return ""
}

// maxReferralPeekBytes 读取推荐码时最多缓冲的 body 字节数
const maxReferralPeekBytes = 64 << 10

// peekBodyReferralCode 读取 JSON body 中的 referralCode，并还原 body 供后续绑定。
// 超过 maxReferralPeekBytes 的 body 不解析，未读部分原样保留。
func peekBodyReferralCode(c *gin.Context) string {
	if c.Request == nil || c.Request.Body == nil {
		return ""
	}
	if !strings.HasPrefix(c.ContentType(), "application/json") {
		return ""
	}
	body := c.Request.Body
	raw, err := io.ReadAll(io.LimitReader(body, maxReferralPeekBytes+1))
	c.Request.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), body), body}
	if err != nil || len(raw) == 0 || len(raw) > maxReferralPeekBytes {
		return ""
	}
	var payload struct {
		ReferralCode string `json:"referralCode"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.ReferralCode
}

// SetReferralCookie 写入推荐码 Cookie（httpOnly, SameSite=Lax）
func SetReferralCookie(c *gin.Context, code string, maxAgeDays int, secure bool) {
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ReferralCookieName, code, maxAgeDays*24*60*60, "/", "", secure, true)
}

// SafeRedirectTarget 只允许站内相对路径或白名单来源，否则返回 "/"
func SafeRedirectTarget(raw string, allowlist []string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "/"
	}
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") && !strings.HasPrefix(target, "/\\") {
		return target
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "/"
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "/"
	}
	origin := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	for _, allowed := range allowlist {
		if strings.ToLower(strings.TrimRight(strings.TrimSpace(allowed), "/")) == origin {
			return target
		}
	}
	return "/"
}
