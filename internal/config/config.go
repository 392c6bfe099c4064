package config

import (
	"fmt"
	"strings"

	"github.com/pluginhub/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	UserJWT    JWTConfig        `mapstructure:"user_jwt"`
	RefreshJWT RefreshJWTConfig `mapstructure:"refresh_jwt"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Security   SecurityConfig   `mapstructure:"security"`
	Email      EmailConfig      `mapstructure:"email"`
	Captcha    CaptchaConfig    `mapstructure:"captcha"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Affiliate  AffiliateConfig  `mapstructure:"affiliate"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
	Bootstrap  BootstrapConfig  `mapstructure:"bootstrap"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        string `mapstructure:"port"`
	Mode        string `mapstructure:"mode"` // debug / release
	FrontendURL string `mapstructure:"frontend_url"`
}

// IsRelease 是否为生产模式
func (c ServerConfig) IsRelease() bool {
	return strings.EqualFold(strings.TrimSpace(c.Mode), "release")
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	return strings.TrimSpace(c.Host) + ":" + port
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Stdout     bool   `mapstructure:"stdout"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		Stdout:     c.Stdout,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 访问令牌配置
type JWTConfig struct {
	SecretKey     string `mapstructure:"secret"`
	ExpireSeconds int    `mapstructure:"expire_seconds"`
}

// RefreshJWTConfig 刷新令牌配置
type RefreshJWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
	CookieName  string `mapstructure:"cookie_name"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// EmailConfig 邮件服务配置
type EmailConfig struct {
	Enabled  bool      `mapstructure:"enabled"`
	Host     string    `mapstructure:"host"`
	Port     int       `mapstructure:"port"`
	Username string    `mapstructure:"username"`
	Password string    `mapstructure:"password"`
	From     string    `mapstructure:"from"`
	FromName string    `mapstructure:"from_name"`
	UseSSL   bool      `mapstructure:"use_ssl"`
	OTP      OTPConfig `mapstructure:"otp"`
}

// OTPConfig 登录验证码配置
type OTPConfig struct {
	ExpireMinutes int `mapstructure:"expire_minutes"`
	Length        int `mapstructure:"length"`
}

// CaptchaConfig 图片验证码配置
type CaptchaConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Length        int  `mapstructure:"length"`
	Width         int  `mapstructure:"width"`
	Height        int  `mapstructure:"height"`
	NoiseCount    int  `mapstructure:"noise_count"`
	ShowLine      int  `mapstructure:"show_line"`
	ExpireSeconds int  `mapstructure:"expire_seconds"`
	MaxStore      int  `mapstructure:"max_store"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	LoginRateLimit RateLimitConfig `mapstructure:"login_rate_limit"`
	OTPRateLimit   RateLimitConfig `mapstructure:"otp_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// StripeConfig Stripe 订阅配置
type StripeConfig struct {
	SecretKey               string            `mapstructure:"secret_key"`
	WebhookSecret           string            `mapstructure:"webhook_secret"`
	APIBaseURL              string            `mapstructure:"api_base_url"`
	WebhookToleranceSeconds int               `mapstructure:"webhook_tolerance_seconds"`
	SuccessURL              string            `mapstructure:"success_url"`
	CancelURL               string            `mapstructure:"cancel_url"`
	PortalReturnURL         string            `mapstructure:"portal_return_url"`
	Prices                  map[string]string `mapstructure:"prices"` // plan -> price id
}

// AffiliateConfig 推广配置
type AffiliateConfig struct {
	DefaultCommissionRate float64  `mapstructure:"default_commission_rate"`
	CookieMaxAgeDays      int      `mapstructure:"cookie_max_age_days"`
	CommissionConfirmDays int      `mapstructure:"commission_confirm_days"`
	AutoConfirm           bool     `mapstructure:"auto_confirm"`
	RedirectAllowlist     []string `mapstructure:"redirect_allowlist"`
}

// SentryConfig 错误上报配置
type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	Environment      string  `mapstructure:"environment"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// BootstrapConfig 首次启动初始化配置
type BootstrapConfig struct {
	AdminEmail string `mapstructure:"admin_email"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	// .env 不存在时忽略
	if err := godotenv.Load(); err == nil {
		logger.Infow("env_file_loaded", "file", ".env")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("./etc")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.frontend_url", "http://localhost:3000")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "app.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("log.stdout", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/pluginhub.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("user_jwt.secret", "user-change-me-in-production")
	viper.SetDefault("user_jwt.expire_seconds", 300)
	viper.SetDefault("refresh_jwt.secret", "refresh-change-me-in-production")
	viper.SetDefault("refresh_jwt.expire_hours", 24)
	viper.SetDefault("refresh_jwt.cookie_name", "refresh_token")
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "ph")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Referral-Code",
	})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 600)
	viper.SetDefault("security.login_rate_limit.window_seconds", 300)
	viper.SetDefault("security.login_rate_limit.max_requests", 10)
	viper.SetDefault("security.otp_rate_limit.window_seconds", 60)
	viper.SetDefault("security.otp_rate_limit.max_requests", 3)
	viper.SetDefault("email.enabled", false)
	viper.SetDefault("email.host", "")
	viper.SetDefault("email.port", 587)
	viper.SetDefault("email.username", "")
	viper.SetDefault("email.password", "")
	viper.SetDefault("email.from", "")
	viper.SetDefault("email.from_name", "PluginHub")
	viper.SetDefault("email.use_ssl", false)
	viper.SetDefault("email.otp.expire_minutes", 10)
	viper.SetDefault("email.otp.length", 4)
	viper.SetDefault("captcha.enabled", false)
	viper.SetDefault("captcha.length", 5)
	viper.SetDefault("captcha.width", 240)
	viper.SetDefault("captcha.height", 80)
	viper.SetDefault("captcha.noise_count", 2)
	viper.SetDefault("captcha.show_line", 2)
	viper.SetDefault("captcha.expire_seconds", 300)
	viper.SetDefault("captcha.max_store", 10240)
	viper.SetDefault("stripe.secret_key", "")
	viper.SetDefault("stripe.webhook_secret", "")
	viper.SetDefault("stripe.api_base_url", "https://api.stripe.com")
	viper.SetDefault("stripe.webhook_tolerance_seconds", 300)
	viper.SetDefault("stripe.success_url", "http://localhost:3000/subscription/success?session_id={CHECKOUT_SESSION_ID}")
	viper.SetDefault("stripe.cancel_url", "http://localhost:3000/subscription/cancel")
	viper.SetDefault("stripe.portal_return_url", "")
	viper.SetDefault("stripe.prices", map[string]string{
		"single":  "",
		"monthly": "",
		"yearly":  "",
	})
	viper.SetDefault("affiliate.default_commission_rate", 0.10)
	viper.SetDefault("affiliate.cookie_max_age_days", 30)
	viper.SetDefault("affiliate.commission_confirm_days", 14)
	viper.SetDefault("affiliate.auto_confirm", true)
	viper.SetDefault("affiliate.redirect_allowlist", []string{})
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "development")
	viper.SetDefault("sentry.traces_sample_rate", 0.0)
	viper.SetDefault("bootstrap.admin_email", "")

	// 环境变量支持 (例如 stripe.secret_key -> STRIPE_SECRET_KEY)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}
