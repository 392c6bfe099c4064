package shared

import (
	"errors"

	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/service"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get(ContextKeyRequestID); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志，5xx 上报 Sentry。
func RespondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
		if appErr.Code >= response.CodeInternal {
			if hub := sentrygin.GetHubFromContext(c); hub != nil {
				hub.CaptureException(appErr)
			}
		}
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// MappedError 业务错误到接口响应的映射。
type MappedError struct {
	Target  error
	Code    int
	Message string
}

// RespondMappedError 按映射表返回错误，校验错误返回拼接后的字段消息，未命中时返回 500。
func RespondMappedError(c *gin.Context, err error, rules []MappedError) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		RespondError(c, response.CodeBadRequest, validationErr.Error(), nil)
		return
	}
	if appErr, ok := response.AsAppError(err); ok {
		RespondError(c, appErr.Code, appErr.Message, appErr.Err)
		return
	}
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			RespondError(c, rule.Code, rule.Message, nil)
			return
		}
	}
	RespondError(c, response.CodeInternal, response.MsgInternal, err)
}

// ServiceErrorRules 领域错误通用映射
var ServiceErrorRules = []MappedError{
	{Target: service.ErrUserNotFound, Code: response.CodeNotFound, Message: "User not found"},
	{Target: service.ErrUserExists, Code: response.CodeBadRequest, Message: "User already exists"},
	{Target: service.ErrInvalidEmail, Code: response.CodeBadRequest, Message: "Invalid email address"},
	{Target: service.ErrOTPFormat, Code: response.CodeBadRequest, Message: "OTP must be 4-6 digits"},
	{Target: service.ErrInvalidOTP, Code: response.CodeUnauthorized, Message: "Invalid OTP"},
	{Target: service.ErrOTPExpired, Code: response.CodeUnauthorized, Message: "OTP expired"},
	{Target: service.ErrRefreshToken, Code: response.CodeForbidden, Message: "Invalid refresh token"},
	{Target: service.ErrTokenMismatch, Code: response.CodeForbidden, Message: "Refresh token mismatch"},
	{Target: service.ErrCaptchaRequired, Code: response.CodeBadRequest, Message: "Captcha required"},
	{Target: service.ErrCaptchaInvalid, Code: response.CodeBadRequest, Message: "Captcha invalid"},
	{Target: service.ErrCaptchaDisabled, Code: response.CodeNotFound, Message: "Captcha disabled"},
	{Target: service.ErrEmailServiceNotConfigured, Code: response.CodeInternal, Message: "Email service not configured"},

	{Target: service.ErrAffiliateExists, Code: response.CodeBadRequest, Message: "Affiliate account already exists for this user"},
	{Target: service.ErrAffiliateNotFound, Code: response.CodeNotFound, Message: "Affiliate not found"},
	{Target: service.ErrAffiliateStatusInvalid, Code: response.CodeBadRequest, Message: "Invalid status"},
	{Target: service.ErrAffiliateStatusTransition, Code: response.CodeBadRequest, Message: "Status transition not allowed"},
	{Target: service.ErrAffiliatePaymentInvalid, Code: response.CodeBadRequest, Message: "Invalid payment method"},
	{Target: service.ErrCommissionRateInvalid, Code: response.CodeBadRequest, Message: "Commission rate must be between 0 and 1"},
	{Target: service.ErrConversionValueInvalid, Code: response.CodeBadRequest, Message: "Conversion value must not be negative"},
	{Target: service.ErrCommissionNotFound, Code: response.CodeNotFound, Message: "Commission not found"},
	{Target: service.ErrCommissionStatusInvalid, Code: response.CodeBadRequest, Message: "Commission status does not allow this operation"},
	{Target: service.ErrReferralCodeExhausted, Code: response.CodeInternal, Message: "Unable to generate referral code"},

	{Target: service.ErrSubscriptionNotFound, Code: response.CodeNotFound, Message: "Subscription not found"},
	{Target: service.ErrSubscriptionPlanInvalid, Code: response.CodeBadRequest, Message: "Invalid plan"},
	{Target: service.ErrSubscriptionPriceUnset, Code: response.CodeInternal, Message: "Plan price not configured"},
	{Target: service.ErrProductKeyInvalid, Code: response.CodeBadRequest, Message: "Product key is not valid"},
	{Target: service.ErrProductKeyExhausted, Code: response.CodeInternal, Message: "Unable to generate product key"},
	{Target: service.ErrWebhookSignature, Code: response.CodeBadRequest, Message: "Webhook signature verification failed"},
	{Target: service.ErrPaymentProvider, Code: response.CodeBadGateway, Message: "Payment provider request failed"},

	{Target: service.ErrPluginNameExists, Code: response.CodeBadRequest, Message: "Plugin with this name already exists"},
	{Target: service.ErrPluginNotFound, Code: response.CodeNotFound, Message: "Plugin not found"},

	{Target: service.ErrNotFound, Code: response.CodeNotFound, Message: "Not found"},
	{Target: service.ErrInvalidInput, Code: response.CodeBadRequest, Message: "Invalid input"},
}

// RespondServiceError 使用通用映射返回领域错误
func RespondServiceError(c *gin.Context, err error) {
	RespondMappedError(c, err, ServiceErrorRules)
}
