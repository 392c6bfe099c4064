package shared

import (
	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/models"

	"github.com/gin-gonic/gin"
)

// 请求上下文键
const (
	ContextKeyRequestID         = "request_id"
	ContextKeyUserID            = "user_id"
	ContextKeyUserEmail         = "user_email"
	ContextKeyUserType          = "user_type"
	ContextKeyAffiliate         = "affiliate"
	ContextKeyReferralAffiliate = "referral_affiliate"
	ContextKeyReferralCode      = "referral_code"
)

// GetContextUint 从上下文读取 uint 值并统一处理错误响应。
func GetContextUint(c *gin.Context, key string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "Unauthorized", nil)
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			RespondError(c, response.CodeBadRequest, "Invalid context value", nil)
			return 0, false
		}
		return uint(v), true
	case float64:
		if v < 0 {
			RespondError(c, response.CodeBadRequest, "Invalid context value", nil)
			return 0, false
		}
		return uint(v), true
	default:
		RespondError(c, response.CodeInternal, response.MsgInternal, nil)
		return 0, false
	}
}

// CurrentUserID 当前登录用户 ID
func CurrentUserID(c *gin.Context) (uint, bool) {
	return GetContextUint(c, ContextKeyUserID)
}

// CurrentUserType 当前登录用户类型，未登录返回 -1
func CurrentUserType(c *gin.Context) int {
	if value, ok := c.Get(ContextKeyUserType); ok {
		if userType, ok := value.(int); ok {
			return userType
		}
	}
	return -1
}

// CurrentAffiliate requireAffiliate 注入的当前用户推广账户
func CurrentAffiliate(c *gin.Context) *models.Affiliate {
	if value, ok := c.Get(ContextKeyAffiliate); ok {
		if affiliate, ok := value.(*models.Affiliate); ok {
			return affiliate
		}
	}
	return nil
}

// CurrentReferralAffiliate 推荐追踪中间件识别到的已审核推广用户
func CurrentReferralAffiliate(c *gin.Context) *models.Affiliate {
	if value, ok := c.Get(ContextKeyReferralAffiliate); ok {
		if affiliate, ok := value.(*models.Affiliate); ok {
			return affiliate
		}
	}
	return nil
}

// UserIDFromContext 读取当前用户 ID，不写响应，缺失时返回 0
func UserIDFromContext(c *gin.Context) uint {
	if value, ok := c.Get(ContextKeyUserID); ok {
		if id, ok := value.(uint); ok {
			return id
		}
	}
	return 0
}
