package router

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pluginhub/internal/authz"
	"github.com/pluginhub/internal/config"
	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/http/handlers/shared"
	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/service"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = shared.ContextKeyRequestID
const requestIDHeader = response.RequestIDHeader

// CORSMiddleware 跨域中间件
func CORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowedMethods := cfg.AllowedMethods
	if len(allowedMethods) == 0 {
		allowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	allowedHeaders := cfg.AllowedHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = []string{
			"Content-Type",
			"Content-Length",
			"Authorization",
			"Cache-Control",
			"X-Requested-With",
			"X-Referral-Code",
			"Stripe-Signature",
		}
	}
	methodsHeader := strings.Join(allowedMethods, ", ")
	headersHeader := strings.Join(allowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := resolveAllowedOrigin(origin, allowedOrigins, cfg.AllowCredentials)
		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if allowedOrigin != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if cfg.AllowCredentials {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", headersHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", methodsHeader)
		if cfg.MaxAge > 0 {
			c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func resolveAllowedOrigin(origin string, allowedOrigins []string, allowCredentials bool) string {
	if len(allowedOrigins) == 0 {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			if allowCredentials && origin != "" {
				return origin
			}
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 结构化请求日志中间件
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.L()
	}
	sugar := log.Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := sugar.With(
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if len(c.Errors) > 0 {
			entry.Errorw("request", "errors", c.Errors.String())
			return
		}
		entry.Infow("request")
	}
}

func getRequestID(c *gin.Context) string {
	value, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	if requestID, ok := value.(string); ok {
		return requestID
	}
	return ""
}

// SentryMiddleware 错误上报中间件，未配置 DSN 时 hub 无客户端，上报为空操作
func SentryMiddleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{Repanic: true})
}

// RecoveryMiddleware panic 恢复，返回统一信封
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Errorw("http_panic_recovered",
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"panic", recovered,
		)
		response.Abort(c, response.CodeInternal, response.MsgInternal)
	})
}

// UserAuthMiddleware Bearer 访问令牌鉴权
func UserAuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authService == nil {
			logger.Errorw("user_auth_service_unavailable")
			response.Abort(c, response.CodeUnauthorized, "Invalid or expired token")
			return
		}
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Abort(c, response.CodeUnauthorized, "Access token required")
			return
		}
		claims, err := authService.ParseAccessToken(tokenString)
		if err != nil {
			response.Abort(c, response.CodeUnauthorized, "Invalid or expired token")
			return
		}

		state, err := authService.ResolveAuthState(c.Request.Context(), claims.ID)
		if err != nil {
			if !errors.Is(err, service.ErrUserNotFound) {
				logger.Warnw("user_auth_state_resolve_failed", "user_id", claims.ID, "error", err)
			}
			response.Abort(c, response.CodeUnauthorized, "Invalid or expired token")
			return
		}
		if claims.TokenVersion != state.TokenVersion {
			response.Abort(c, response.CodeUnauthorized, "Token revoked")
			return
		}

		c.Set(shared.ContextKeyUserID, state.UserID)
		c.Set(shared.ContextKeyUserEmail, state.Email)
		c.Set(shared.ContextKeyUserType, state.UserType)
		c.Next()
	}
}

// AdminMiddleware 管理员鉴权，需在 UserAuthMiddleware 之后
// 先校验用户类型，再按角色策略校验路由权限
func AdminMiddleware(authzService *authz.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := shared.UserIDFromContext(c)
		if userID == 0 {
			response.Abort(c, response.CodeUnauthorized, "Access token required")
			return
		}
		if shared.CurrentUserType(c) != constants.UserTypeAdmin {
			response.Abort(c, response.CodeForbidden, "Admin access required")
			return
		}
		if authzService == nil {
			logger.Errorw("admin_authz_service_unavailable")
			response.Abort(c, response.CodeForbidden, "Admin access required")
			return
		}

		resource := c.FullPath()
		if strings.TrimSpace(resource) == "" {
			resource = c.Request.URL.Path
		}
		allowed, err := authzService.EnforceUser(userID, resource, c.Request.Method)
		if err != nil {
			logger.Errorw("admin_authz_enforce_failed",
				"user_id", userID,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", err,
			)
			response.Abort(c, response.CodeForbidden, "Admin access required")
			return
		}
		if !allowed {
			logger.Warnw("admin_authz_permission_denied",
				"user_id", userID,
				"method", c.Request.Method,
				"resource", authz.NormalizeObject(resource),
			)
			response.Abort(c, response.CodeForbidden, "Permission denied")
			return
		}
		c.Next()
	}
}

// RequireAffiliate 要求当前用户已有推广账户
func RequireAffiliate(affiliateService *service.AffiliateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := shared.UserIDFromContext(c)
		if userID == 0 {
			response.Abort(c, response.CodeUnauthorized, "Access token required")
			return
		}
		if affiliateService == nil {
			response.Abort(c, response.CodeInternal, response.MsgInternal)
			return
		}
		affiliate, err := affiliateService.GetByUser(userID)
		if err != nil {
			logger.Errorw("require_affiliate_lookup_failed", "user_id", userID, "error", err)
			response.Abort(c, response.CodeInternal, response.MsgInternal)
			return
		}
		if affiliate == nil {
			response.Abort(c, response.CodeForbidden, "Affiliate account required")
			return
		}
		c.Set(shared.ContextKeyAffiliate, affiliate)
		c.Next()
	}
}

// ReferralTrackingMiddleware 匿名请求的推荐码追踪
// 写入推荐 Cookie，并把已审核的推广用户挂到上下文
func ReferralTrackingMiddleware(affiliateService *service.AffiliateService, cfg *config.Config) gin.HandlerFunc {
	maxAgeDays := 30
	secure := false
	if cfg != nil {
		if cfg.Affiliate.CookieMaxAgeDays > 0 {
			maxAgeDays = cfg.Affiliate.CookieMaxAgeDays
		}
		secure = cfg.Server.IsRelease()
	}
	return func(c *gin.Context) {
		if affiliateService == nil || shared.UserIDFromContext(c) != 0 || hasBearer(c) {
			c.Next()
			return
		}
		code := shared.ExtractReferralCode(c)
		if code == "" {
			c.Next()
			return
		}
		shared.SetReferralCookie(c, code, maxAgeDays, secure)
		c.Set(shared.ContextKeyReferralCode, code)

		affiliate, err := affiliateService.ResolveApprovedCached(c.Request.Context(), code)
		if err != nil {
			logger.Warnw("referral_tracking_resolve_failed", "code", code, "error", err)
		} else if affiliate != nil {
			c.Set(shared.ContextKeyReferralAffiliate, affiliate)
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func hasBearer(c *gin.Context) bool {
	_, ok := bearerToken(c.GetHeader("Authorization"))
	return ok
}
