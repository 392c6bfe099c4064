package public

import (
	"errors"
	"strings"

	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/service"

	"github.com/gin-gonic/gin"
)

const stripeSignatureHeader = "Stripe-Signature"

// CreateCheckoutSessionRequest 创建结账会话请求
type CreateCheckoutSessionRequest struct {
	UserID     uint   `json:"userId" binding:"required"`
	Plan       string `json:"plan" binding:"required"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

// ProductKeyRequest 产品密钥请求
type ProductKeyRequest struct {
	ProductKey string `json:"productKey" binding:"required"`
}

// BillingPortalRequest 账单自助页面请求
type BillingPortalRequest struct {
	ReturnURL string `json:"returnUrl"`
}

// ChangePlanRequest 切换套餐请求
type ChangePlanRequest struct {
	NewPlan string `json:"newPlan" binding:"required"`
}

// CreateCheckoutSession 创建 Stripe 结账会话
func (h *Handler) CreateCheckoutSession(c *gin.Context) {
	var req CreateCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "userId and plan are required", err)
		return
	}
	session, err := h.SubscriptionService.CreateCheckoutSession(c.Request.Context(), service.CheckoutSessionInput{
		UserID:     req.UserID,
		Plan:       req.Plan,
		SuccessURL: strings.TrimSpace(req.SuccessURL),
		CancelURL:  strings.TrimSpace(req.CancelURL),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Checkout session created", session)
}

// StripeWebhook 接收 Stripe 事件，必须读取原始请求体验签
func (h *Handler) StripeWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, response.CodeBadRequest, "Invalid webhook payload", err)
		return
	}
	if err := h.SubscriptionService.HandleWebhook(c.Request.Context(), body, c.GetHeader(stripeSignatureHeader)); err != nil {
		if errors.Is(err, service.ErrWebhookSignature) {
			requestLog(c).Warnw("stripe_webhook_signature_rejected", "error", err)
		}
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"received": true})
}

// ValidateProductKey 校验产品密钥
func (h *Handler) ValidateProductKey(c *gin.Context) {
	var req ProductKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "productKey is required", err)
		return
	}
	result, err := h.SubscriptionService.ValidateProductKey(req.ProductKey)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// GetUserSubscription 获取用户当前有效订阅
func (h *Handler) GetUserSubscription(c *gin.Context) {
	userID, ok := authorizeUserParam(c)
	if !ok {
		return
	}
	sub, err := h.SubscriptionService.GetActiveSubscription(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, sub)
}

// GetUserSubscriptions 获取用户全部订阅记录
func (h *Handler) GetUserSubscriptions(c *gin.Context) {
	userID, ok := authorizeUserParam(c)
	if !ok {
		return
	}
	subs, err := h.SubscriptionService.ListSubscriptions(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, subs)
}

// GetSubscriptionByProductKey 按产品密钥查询订阅
func (h *Handler) GetSubscriptionByProductKey(c *gin.Context) {
	sub, err := h.SubscriptionService.GetByProductKey(c.Param("productKey"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, sub)
}

// CheckProductKeyExpiration 产品密钥到期提醒
func (h *Handler) CheckProductKeyExpiration(c *gin.Context) {
	warning, err := h.SubscriptionService.CheckExpiration(c.Param("productKey"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, warning)
}

// RecordPluginDownload 密钥有效时记录一次插件下载
func (h *Handler) RecordPluginDownload(c *gin.Context) {
	result, err := h.SubscriptionService.RecordDownload(c.Param("productKey"))
	if err != nil {
		if errors.Is(err, service.ErrProductKeyInvalid) && result != nil {
			response.ErrorWithData(c, response.CodeForbidden, result.Status, result)
			return
		}
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Download recorded", result)
}

// CancelUserSubscription 取消用户当前订阅
func (h *Handler) CancelUserSubscription(c *gin.Context) {
	userID, ok := authorizeUserParam(c)
	if !ok {
		return
	}
	sub, err := h.SubscriptionService.CancelSubscription(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Subscription canceled", sub)
}

// CreateBillingPortal 生成 Stripe 账单自助页面
func (h *Handler) CreateBillingPortal(c *gin.Context) {
	userID, ok := authorizeUserParam(c)
	if !ok {
		return
	}
	var req BillingPortalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "Invalid request body", err)
			return
		}
	}
	url, err := h.SubscriptionService.CreateBillingPortal(c.Request.Context(), userID, strings.TrimSpace(req.ReturnURL))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"url": url})
}

// ChangeSubscriptionPlan 切换订阅套餐
func (h *Handler) ChangeSubscriptionPlan(c *gin.Context) {
	userID, ok := authorizeUserParam(c)
	if !ok {
		return
	}
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "newPlan is required", err)
		return
	}
	sub, err := h.SubscriptionService.ChangePlan(c.Request.Context(), userID, req.NewPlan)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Subscription plan updated", sub)
}
