package provider

import (
	"time"

	"github.com/pluginhub/internal/authz"
	"github.com/pluginhub/internal/cache"
	"github.com/pluginhub/internal/config"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/models"
	"github.com/pluginhub/internal/payment/stripe"
	"github.com/pluginhub/internal/queue"
	"github.com/pluginhub/internal/repository"
	"github.com/pluginhub/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config       *config.Config
	QueueClient  *queue.Client
	StripeClient *stripe.Client

	// Repositories
	UserRepo         repository.UserRepository
	AffiliateRepo    repository.AffiliateRepository
	ReferralRepo     repository.ReferralRepository
	SubscriptionRepo repository.SubscriptionRepository
	PluginRepo       repository.PluginRepository

	// Services
	AuthzService        *authz.Service
	AuthService         *service.AuthService
	UserService         *service.UserService
	EmailService        *service.EmailService
	CaptchaService      *service.CaptchaService
	NotificationService *service.NotificationService
	AffiliateService    *service.AffiliateService
	SubscriptionService *service.SubscriptionService
	PluginService       *service.PluginService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) (*Container, error) {
	return NewContainerWithDB(cfg, models.DB)
}

// NewContainerWithDB 使用指定数据库初始化容器
func NewContainerWithDB(cfg *config.Config, db *gorm.DB) (*Container, error) {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		StripeClient: stripe.NewClient(stripe.Config{
			SecretKey:               cfg.Stripe.SecretKey,
			WebhookSecret:           cfg.Stripe.WebhookSecret,
			APIBaseURL:              cfg.Stripe.APIBaseURL,
			WebhookToleranceSeconds: cfg.Stripe.WebhookToleranceSeconds,
		}, nil),
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化 Services
	if err := c.initServices(db); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.UserRepo = repository.NewUserRepository(db)
	c.AffiliateRepo = repository.NewAffiliateRepository(db)
	c.ReferralRepo = repository.NewReferralRepository(db)
	c.SubscriptionRepo = repository.NewSubscriptionRepository(db)
	c.PluginRepo = repository.NewPluginRepository(db)
}

func (c *Container) initServices(db *gorm.DB) error {
	authzService, err := authz.NewService(db)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		return err
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		return err
	}

	cfg := c.Config
	c.EmailService = service.NewEmailService(&cfg.Email)
	c.CaptchaService = service.NewCaptchaService(cfg.Captcha)
	c.NotificationService = service.NewNotificationService(c.QueueClient, c.EmailService, c.UserRepo, c.SubscriptionRepo)
	c.AuthService = service.NewAuthService(service.AuthOptions{
		AccessSecret:     cfg.UserJWT.SecretKey,
		AccessTTL:        time.Duration(cfg.UserJWT.ExpireSeconds) * time.Second,
		RefreshSecret:    cfg.RefreshJWT.SecretKey,
		RefreshTTL:       time.Duration(cfg.RefreshJWT.ExpireHours) * time.Hour,
		OTPExpireMinutes: cfg.Email.OTP.ExpireMinutes,
		OTPLength:        cfg.Email.OTP.Length,
	}, c.UserRepo, c.NotificationService)
	c.AffiliateService = service.NewAffiliateService(c.AffiliateRepo, c.ReferralRepo, c.UserRepo, service.AffiliateOptions{
		DefaultCommissionRate: cfg.Affiliate.DefaultCommissionRate,
		CommissionConfirmDays: cfg.Affiliate.CommissionConfirmDays,
	})
	c.UserService = service.NewUserService(c.UserRepo, c.AffiliateService)
	c.SubscriptionService = service.NewSubscriptionService(c.SubscriptionRepo, c.UserRepo, c.StripeClient, c.NotificationService, service.SubscriptionOptions{
		Prices:          cfg.Stripe.Prices,
		SuccessURL:      cfg.Stripe.SuccessURL,
		CancelURL:       cfg.Stripe.CancelURL,
		PortalReturnURL: cfg.Stripe.PortalReturnURL,
	})
	c.PluginService = service.NewPluginService(c.PluginRepo)
	return nil
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
