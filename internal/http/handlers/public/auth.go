package public

import (
	"net/http"
	"strings"

	handlershared "github.com/pluginhub/internal/http/handlers/shared"
	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/service"

	"github.com/gin-gonic/gin"
)

const defaultRefreshCookieName = "refresh_token"

// GenerateOTPRequest 发送登录验证码请求
type GenerateOTPRequest struct {
	Email string `json:"email" binding:"required"`
	handlershared.CaptchaPayloadRequest
}

// LoginRequest 验证码登录请求
type LoginRequest struct {
	Email string `json:"email" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

// GetCaptcha 获取图片验证码
func (h *Handler) GetCaptcha(c *gin.Context) {
	challenge, err := h.CaptchaService.Generate()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, challenge)
}

// GenerateOTP 向用户邮箱发送登录验证码
func (h *Handler) GenerateOTP(c *gin.Context) {
	var req GenerateOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Email is required", err)
		return
	}
	if h.CaptchaService != nil && h.CaptchaService.Enabled() {
		captchaID, captchaCode := req.Normalize()
		if err := h.CaptchaService.Verify(captchaID, captchaCode); err != nil {
			respondServiceError(c, err)
			return
		}
	}
	if err := h.AuthService.GenerateOTP(c.Request.Context(), req.Email); err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "OTP sent successfully", gin.H{"sent": true})
}

// Login 验证码登录，签发访问令牌并写入刷新令牌 Cookie
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Email and OTP are required", err)
		return
	}
	pair, err := h.AuthService.Login(req.Email, req.OTP)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	h.writeTokens(c, "Login successful", pair)
}

// GenerateRefreshToken 使用刷新令牌 Cookie 轮换令牌
func (h *Handler) GenerateRefreshToken(c *gin.Context) {
	token, err := c.Cookie(h.refreshCookieName())
	if err != nil || strings.TrimSpace(token) == "" {
		respondError(c, response.CodeUnauthorized, "Refresh token not found", nil)
		return
	}
	pair, err := h.AuthService.Refresh(token)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	h.writeTokens(c, "Token refreshed", pair)
}

// Logout 清除刷新令牌并使已签发的访问令牌失效
func (h *Handler) Logout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	if err := h.AuthService.Logout(c.Request.Context(), uid); err != nil {
		respondServiceError(c, err)
		return
	}
	h.clearRefreshCookie(c)
	response.SuccessWithMsg(c, "Logged out", nil)
}

func (h *Handler) refreshCookieName() string {
	if h.Config != nil && strings.TrimSpace(h.Config.RefreshJWT.CookieName) != "" {
		return strings.TrimSpace(h.Config.RefreshJWT.CookieName)
	}
	return defaultRefreshCookieName
}

func (h *Handler) secureCookies() bool {
	return h.Config != nil && h.Config.Server.IsRelease()
}

// writeTokens 刷新令牌只走 Cookie，响应体返回访问令牌与用户
func (h *Handler) writeTokens(c *gin.Context, msg string, pair *service.TokenPair) {
	h.setRefreshCookie(c, pair.RefreshToken)
	response.SuccessWithMsg(c, msg, pair)
}

func (h *Handler) setRefreshCookie(c *gin.Context, token string) {
	maxAge := int(h.AuthService.RefreshTTL().Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.refreshCookieName(), token, maxAge, "/", "", h.secureCookies(), true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.refreshCookieName(), "", -1, "/", "", h.secureCookies(), true)
}
