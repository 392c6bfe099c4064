package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pluginhub/internal/authz"
	"github.com/pluginhub/internal/cache"
	"github.com/pluginhub/internal/config"
	adminhandlers "github.com/pluginhub/internal/http/handlers/admin"
	publichandlers "github.com/pluginhub/internal/http/handlers/public"
	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/provider"

	"github.com/gin-gonic/gin"
)

// adminRoutePrefixes 需要管理员权限的路由前缀
var adminRoutePrefixes = []string{
	"/api/admin/",
	"/api/affiliate/admin/",
	"/api/plugin/createplugin",
}

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ph"
	}
	redisClient := cache.Client()
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxRequests,
		Message:       "Too many login attempts",
	}
	otpRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:otp", redisPrefix),
		WindowSeconds: cfg.Security.OTPRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.OTPRateLimit.MaxRequests,
		Message:       "Too many OTP requests",
	}

	userAuth := UserAuthMiddleware(c.AuthService)
	adminAuth := AdminMiddleware(c.AuthzService)

	// 中间件
	r.Use(RequestIDMiddleware())
	r.Use(SentryMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	api := r.Group("/api")
	api.Use(ReferralTrackingMiddleware(c.AffiliateService, cfg))
	{
		// 用户
		user := api.Group("/user")
		{
			user.POST("/create", publicHandler.CreateUser)
			user.GET("/me", userAuth, publicHandler.GetMe)
		}

		// 登录认证
		auth := api.Group("/auth")
		{
			auth.GET("/captcha", publicHandler.GetCaptcha)
			auth.POST("/generateotp", RateLimitMiddleware(redisClient, otpRule, KeyByIPAndJSONField("email")), publicHandler.GenerateOTP)
			auth.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("email")), publicHandler.Login)
			auth.POST("/generaterefreshtoken", publicHandler.GenerateRefreshToken)
			auth.POST("/logout", userAuth, publicHandler.Logout)
		}

		// 推广
		affiliate := api.Group("/affiliate")
		{
			affiliate.GET("/track", publicHandler.TrackReferral)
			affiliate.POST("/apply", userAuth, publicHandler.ApplyAffiliate)
			affiliate.GET("/verify", userAuth, publicHandler.VerifyAffiliate)

			own := affiliate.Group("")
			own.Use(userAuth, RequireAffiliate(c.AffiliateService))
			{
				own.GET("/dashboard", publicHandler.GetAffiliateDashboard)
				own.GET("/report", publicHandler.GetAffiliateReport)
			}

			manage := affiliate.Group("/admin")
			manage.Use(userAuth, adminAuth)
			{
				manage.POST("/update/:affiliateId", adminHandler.UpdateAffiliate)
				manage.GET("/getpendingaffiliatecount", adminHandler.GetPendingAffiliateCount)
				manage.GET("/getallaffiliates", adminHandler.GetAllAffiliates)
				manage.GET("/getaffiliatestats", adminHandler.GetAffiliateStats)
				manage.POST("/bulkupdatestatus", adminHandler.BulkUpdateAffiliateStatus)
				manage.POST("/conversion", adminHandler.ProcessConversion)
				manage.POST("/commissions/:id/pay", adminHandler.MarkCommissionPaid)
			}
		}

		// 插件
		plugin := api.Group("/plugin")
		{
			plugin.POST("/createplugin", userAuth, adminAuth, adminHandler.CreatePlugin)
			plugin.GET("/getallplugins", publicHandler.GetAllPlugins)
			plugin.GET("/getPluginWithVersions/:id", publicHandler.GetPluginWithVersions)
		}

		// 订阅
		subscription := api.Group("/subscription")
		{
			subscription.POST("/create-checkout-session", publicHandler.CreateCheckoutSession)
			subscription.POST("/webhook", publicHandler.StripeWebhook)
			subscription.POST("/validate-product-key", publicHandler.ValidateProductKey)
			subscription.GET("/product-key/:productKey", publicHandler.GetSubscriptionByProductKey)
			subscription.GET("/product-key/:productKey/expiration", publicHandler.CheckProductKeyExpiration)
			subscription.POST("/product-key/:productKey/download", publicHandler.RecordPluginDownload)

			owner := subscription.Group("/user")
			owner.Use(userAuth)
			{
				owner.GET("/:userId", publicHandler.GetUserSubscription)
				owner.GET("/:userId/all", publicHandler.GetUserSubscriptions)
				owner.POST("/cancel/:userId", publicHandler.CancelUserSubscription)
				owner.POST("/:userId/billing-portal", publicHandler.CreateBillingPortal)
				owner.PUT("/:userId/change-plan", publicHandler.ChangeSubscriptionPlan)
			}
		}

		// 权限管理
		admin := api.Group("/admin")
		admin.Use(userAuth, adminAuth)
		{
			admin.GET("/authz/roles", adminHandler.ListAuthzRoles)
			admin.GET("/authz/roles/:role/policies", adminHandler.GetAuthzRolePolicies)
			admin.POST("/authz/policies", adminHandler.GrantAuthzPolicy)
			admin.DELETE("/authz/policies", adminHandler.RevokeAuthzPolicy)
			admin.GET("/authz/users/:id/roles", adminHandler.GetAuthzUserRoles)
			admin.PUT("/authz/users/:id/roles", adminHandler.SetAuthzUserRoles)
			admin.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
				response.Success(ctx, buildAdminPermissionCatalog(r))
			})
		}
	}

	// 健康检查
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !isAdminRoute(item.Path) {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func isAdminRoute(path string) bool {
	for _, prefix := range adminRoutePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func deriveAdminPermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	return segments[1]
}
