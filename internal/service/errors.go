package service

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already exists")
	ErrInvalidEmail  = errors.New("invalid email")
	ErrInvalidOTP    = errors.New("invalid otp")
	ErrOTPExpired    = errors.New("otp expired")
	ErrOTPFormat     = errors.New("otp must be 4-6 digits")
	ErrRefreshToken  = errors.New("invalid refresh token")
	ErrTokenMismatch = errors.New("refresh token mismatch")

	ErrReferralCodeExhausted     = errors.New("unable to generate unique referral code")
	ErrAffiliateExists           = errors.New("affiliate account already exists for this user")
	ErrAffiliateNotFound         = errors.New("affiliate not found")
	ErrAffiliateStatusInvalid    = errors.New("invalid affiliate status")
	ErrAffiliateStatusTransition = errors.New("affiliate status transition not allowed")
	ErrAffiliatePaymentInvalid   = errors.New("invalid affiliate payment method")
	ErrCommissionRateInvalid     = errors.New("commission rate must be between 0 and 1")
	ErrConversionValueInvalid    = errors.New("conversion value must not be negative")
	ErrCommissionNotFound        = errors.New("commission not found")
	ErrCommissionStatusInvalid   = errors.New("commission status does not allow this operation")

	ErrSubscriptionNotFound    = errors.New("subscription not found")
	ErrSubscriptionPlanInvalid = errors.New("invalid subscription plan")
	ErrSubscriptionPriceUnset  = errors.New("subscription price not configured")
	ErrSubscriptionUserMissing = errors.New("subscription metadata missing user id")
	ErrProductKeyExhausted     = errors.New("unable to generate unique product key")
	ErrProductKeyInvalid       = errors.New("product key is not valid")
	ErrPaymentProvider         = errors.New("payment provider request failed")
	ErrWebhookSignature        = errors.New("webhook signature invalid")

	ErrPluginNameExists = errors.New("plugin with this name already exists")
	ErrPluginNotFound   = errors.New("plugin not found")

	ErrEmailServiceNotConfigured = errors.New("email service not configured")
	ErrCaptchaRequired           = errors.New("captcha required")
	ErrCaptchaInvalid            = errors.New("captcha invalid")
	ErrCaptchaDisabled           = errors.New("captcha disabled")
)

// ValidationError 聚合字段校验错误
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return joinMessages(e.Messages)
}

// Unwrap 使 errors.Is(err, ErrInvalidInput) 成立
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func newValidationError(messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	return &ValidationError{Messages: messages}
}

func joinMessages(messages []string) string {
	out := ""
	for i, msg := range messages {
		if i > 0 {
			out += ", "
		}
		out += msg
	}
	return out
}
