package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/pluginhub/internal/cache"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/models"
	"github.com/pluginhub/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	otpPattern   = regexp.MustCompile(`^\d{4,6}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// OTPDelivery 验证码投递方式（队列或同步邮件）
type OTPDelivery interface {
	DeliverOTP(ctx context.Context, email, code string, expireMinutes int) error
}

// AuthOptions 令牌与验证码参数
type AuthOptions struct {
	AccessSecret     string
	AccessTTL        time.Duration
	RefreshSecret    string
	RefreshTTL       time.Duration
	OTPExpireMinutes int
	OTPLength        int
}

// AuthService OTP 登录与令牌服务
type AuthService struct {
	opts     AuthOptions
	userRepo repository.UserRepository
	delivery OTPDelivery
	nowFunc  func() time.Time
}

// NewAuthService 创建认证服务
func NewAuthService(opts AuthOptions, userRepo repository.UserRepository, delivery OTPDelivery) *AuthService {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 300 * time.Second
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	if opts.OTPExpireMinutes <= 0 {
		opts.OTPExpireMinutes = 10
	}
	if opts.OTPLength < 4 || opts.OTPLength > 6 {
		opts.OTPLength = 4
	}
	return &AuthService{opts: opts, userRepo: userRepo, delivery: delivery, nowFunc: time.Now}
}

// AccessClaims 访问令牌声明
type AccessClaims struct {
	Email        string `json:"email"`
	ID           uint   `json:"id"`
	UserType     int    `json:"userType"`
	TokenVersion uint64 `json:"tv"`
	jwt.RegisteredClaims
}

// RefreshClaims 刷新令牌声明
type RefreshClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenPair 登录或刷新后签发的令牌
type TokenPair struct {
	AccessToken      string       `json:"accessToken"`
	AccessExpiresAt  time.Time    `json:"accessExpiresAt"`
	RefreshToken     string       `json:"-"`
	RefreshExpiresAt time.Time    `json:"-"`
	User             *models.User `json:"user"`
}

// RefreshTTL 刷新令牌有效期，用于设置 Cookie
func (s *AuthService) RefreshTTL() time.Duration {
	return s.opts.RefreshTTL
}

// GenerateOTP 生成并投递登录验证码
func (s *AuthService) GenerateOTP(ctx context.Context, email string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	user, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	code, err := randomNumericCode(s.opts.OTPLength)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	expiresAt := s.nowFunc().Add(time.Duration(s.opts.OTPExpireMinutes) * time.Minute)
	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		"otp_hash":       string(hash),
		"otp_expires_at": expiresAt,
	}); err != nil {
		return err
	}
	if s.delivery == nil {
		return ErrEmailServiceNotConfigured
	}
	if err := s.delivery.DeliverOTP(ctx, user.Email, code, s.opts.OTPExpireMinutes); err != nil {
		return err
	}
	logger.Infow("otp_issued", "user_id", user.ID)
	return nil
}

// Login 校验验证码并签发令牌，成功后验证码失效
func (s *AuthService) Login(email, otp string) (*TokenPair, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	otp = strings.TrimSpace(otp)
	if !otpPattern.MatchString(otp) {
		return nil, ErrOTPFormat
	}
	user, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.OTPHash == "" || user.OTPExpiresAt == nil {
		return nil, ErrInvalidOTP
	}
	now := s.nowFunc()
	if now.After(*user.OTPExpiresAt) {
		return nil, ErrOTPExpired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.OTPHash), []byte(otp)); err != nil {
		return nil, ErrInvalidOTP
	}

	pair, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		"otp_hash":       "",
		"otp_expires_at": nil,
		"refresh_token":  pair.RefreshToken,
		"last_login_at":  now,
	}); err != nil {
		return nil, err
	}
	user.OTPHash = ""
	user.OTPExpiresAt = nil
	user.RefreshToken = pair.RefreshToken
	user.LastLoginAt = &now
	logger.Infow("user_login", "user_id", user.ID)
	return pair, nil
}

// Refresh 校验刷新令牌并轮换全部令牌
func (s *AuthService) Refresh(refreshToken string) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrRefreshToken
	}
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return nil, ErrRefreshToken
	}
	user, err := s.userRepo.GetByEmail(claims.Email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.RefreshToken != refreshToken {
		return nil, ErrTokenMismatch
	}

	pair, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{"refresh_token": pair.RefreshToken}); err != nil {
		return nil, err
	}
	user.RefreshToken = pair.RefreshToken
	return pair, nil
}

// Logout 清空刷新令牌并使已签发的访问令牌失效
func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		"refresh_token": "",
		"token_version": user.TokenVersion + 1,
	}); err != nil {
		return err
	}
	if err := cache.DelUserAuthState(ctx, user.ID); err != nil {
		logger.Warnw("auth_state_cache_del_failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// ParseAccessToken 解析访问令牌
func (s *AuthService) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &AccessClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.opts.AccessSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.ID == 0 {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ResolveAuthState 获取用户鉴权快照，优先读缓存
func (s *AuthService) ResolveAuthState(ctx context.Context, userID uint) (*cache.UserAuthState, error) {
	state, hit, err := cache.GetUserAuthState(ctx, userID)
	if err != nil {
		logger.Warnw("auth_state_cache_get_failed", "user_id", userID, "error", err)
	}
	if hit && state != nil {
		return state, nil
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	state = cache.BuildUserAuthState(user)
	if err := cache.SetUserAuthState(ctx, state); err != nil {
		logger.Warnw("auth_state_cache_set_failed", "user_id", userID, "error", err)
	}
	return state, nil
}

func (s *AuthService) issueTokens(user *models.User) (*TokenPair, error) {
	now := s.nowFunc()
	accessExpires := now.Add(s.opts.AccessTTL)
	access := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Email:        user.Email,
		ID:           user.ID,
		UserType:     user.UserType,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(accessExpires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	})
	accessToken, err := access.SignedString([]byte(s.opts.AccessSecret))
	if err != nil {
		return nil, err
	}

	refreshExpires := now.Add(s.opts.RefreshTTL)
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(refreshExpires),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})
	refreshToken, err := refresh.SignedString([]byte(s.opts.RefreshSecret))
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpires,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpires,
		User:             user,
	}, nil
}

func (s *AuthService) parseRefresh(tokenString string) (*RefreshClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &RefreshClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.opts.RefreshSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Email == "" {
		return nil, errors.New("invalid refresh token")
	}
	return claims, nil
}

func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || !emailPattern.MatchString(normalized) {
		return "", ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(normalized); err != nil {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

func randomNumericCode(length int) (string, error) {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String(), nil
}
