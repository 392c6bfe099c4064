package service

import (
	"strings"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/models"
	"github.com/pluginhub/internal/repository"

	"github.com/shopspring/decimal"
)

// CreateUserInput 创建用户输入
type CreateUserInput struct {
	Email        string
	UserType     *int
	Provider     string
	ProviderID   string
	ReferralCode string
	IPAddress    string
	UserAgent    string
}

// ReferralOutcome 注册时推荐归因结果
type ReferralOutcome struct {
	Attributed   bool   `json:"attributed"`
	ReferralCode string `json:"referralCode,omitempty"`
	Message      string `json:"message,omitempty"`
}

// CreateUserResult 创建用户结果
type CreateUserResult struct {
	User     *models.User     `json:"user"`
	Referral *ReferralOutcome `json:"referral,omitempty"`
}

// UserService 用户服务
type UserService struct {
	userRepo  repository.UserRepository
	affiliate *AffiliateService
}

// NewUserService 创建用户服务
func NewUserService(userRepo repository.UserRepository, affiliate *AffiliateService) *UserService {
	return &UserService{userRepo: userRepo, affiliate: affiliate}
}

// Create 创建用户并尝试推荐归因；归因失败不影响注册
func (s *UserService) Create(input CreateUserInput) (*CreateUserResult, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, newValidationError([]string{"Invalid email format."})
	}
	var messages []string
	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	if provider == "" {
		provider = constants.AuthProviderCustom
	}
	if !constants.IsValidAuthProvider(provider) {
		messages = append(messages, "Invalid provider. Must be google, apple or custom.")
	}
	userType := constants.UserTypeUser
	if input.UserType != nil {
		userType = *input.UserType
	}
	if !constants.IsValidUserType(userType) {
		messages = append(messages, "Invalid user type.")
	}
	if err := newValidationError(messages); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}
	user := &models.User{
		Email:        email,
		AuthProvider: provider,
		ProviderID:   strings.TrimSpace(input.ProviderID),
		UserType:     userType,
	}
	if err := s.userRepo.Create(user); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	logger.Infow("user_created", "user_id", user.ID, "provider", provider)

	result := &CreateUserResult{User: user}
	if code := NormalizeReferralCode(input.ReferralCode); code != "" && s.affiliate != nil {
		result.Referral = s.attributeSignup(user, code, input)
	}
	return result, nil
}

func (s *UserService) attributeSignup(user *models.User, code string, input CreateUserInput) *ReferralOutcome {
	outcome := &ReferralOutcome{ReferralCode: code}
	conversion, err := s.affiliate.ProcessReferralConversion(ConversionInput{
		UserID:          user.ID,
		ReferralCode:    code,
		ConversionValue: decimal.Zero,
		Source:          "signup",
		IPAddress:       input.IPAddress,
		UserAgent:       input.UserAgent,
	})
	switch {
	case err != nil:
		logger.Warnw("signup_referral_failed", "user_id", user.ID, "referral_code", code, "error", err)
		outcome.Message = "Referral could not be processed"
	case conversion == nil:
		outcome.Message = "Referral code not applicable"
	default:
		outcome.Attributed = true
	}
	return outcome
}

// GetByID 获取用户
func (s *UserService) GetByID(id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
