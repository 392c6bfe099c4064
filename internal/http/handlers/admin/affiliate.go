package admin

import (
	"strings"

	"github.com/pluginhub/internal/constants"
	handlershared "github.com/pluginhub/internal/http/handlers/shared"
	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/repository"
	"github.com/pluginhub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// UpdateAffiliateRequest 更新推广用户状态请求，commissionRate 为 0..1 的比例
type UpdateAffiliateRequest struct {
	Status         string           `json:"status" binding:"required"`
	CommissionRate *decimal.Decimal `json:"commissionRate"`
}

// BulkUpdateAffiliateRequest 批量更新状态请求
type BulkUpdateAffiliateRequest struct {
	AffiliateIDs   []uint           `json:"affiliateIds" binding:"required"`
	Status         string           `json:"status" binding:"required"`
	CommissionRate *decimal.Decimal `json:"commissionRate"`
}

// ConversionRequest 手工记录转化请求
type ConversionRequest struct {
	UserID          uint             `json:"userId"`
	ConversionValue *decimal.Decimal `json:"conversionValue"`
	ReferralCode    string           `json:"referralCode"`
	Source          string           `json:"source"`
	Campaign        string           `json:"campaign"`
}

// MarkCommissionPaidRequest 佣金打款请求
type MarkCommissionPaidRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
	PaymentMethod string `json:"paymentMethod"`
	Notes         string `json:"notes"`
}

// UpdateAffiliate 更新推广用户状态与佣金比例
func (h *Handler) UpdateAffiliate(c *gin.Context) {
	affiliateID, ok := parseUintParam(c, "affiliateId")
	if !ok {
		return
	}
	var req UpdateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid status value", err)
		return
	}
	affiliate, err := h.AffiliateService.UpdateStatus(service.UpdateAffiliateStatusInput{
		AffiliateID:    affiliateID,
		Status:         req.Status,
		ApprovedBy:     operatorID(c),
		CommissionRate: req.CommissionRate,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Affiliate "+affiliate.Status+" successfully", affiliate)
}

// GetPendingAffiliateCount 待审核推广用户数量
func (h *Handler) GetPendingAffiliateCount(c *gin.Context) {
	count, err := h.AffiliateService.PendingCount()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Pending affiliate count retrieved successfully", gin.H{"pendingCount": count})
}

// GetAllAffiliates 推广用户分页列表
func (h *Handler) GetAllAffiliates(c *gin.Context) {
	page, limit := handlershared.ParsePagination(c)
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	if status == "all" {
		status = ""
	}
	if status != "" && !constants.IsValidAffiliateStatus(status) {
		respondError(c, response.CodeBadRequest, "Invalid status value", nil)
		return
	}
	search := strings.TrimSpace(c.Query("search"))
	affiliates, total, err := h.AffiliateService.ListAffiliates(repository.AffiliateListFilter{
		Page:     page,
		PageSize: limit,
		Status:   status,
		Search:   search,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	statusFilter := status
	if statusFilter == "" {
		statusFilter = "all"
	}
	var searchFilter interface{}
	if search != "" {
		searchFilter = search
	}
	response.SuccessWithMsg(c, "Affiliates retrieved successfully", gin.H{
		"affiliates": affiliates,
		"pagination": response.NewPagination(page, limit, total),
		"filters": gin.H{
			"status": statusFilter,
			"search": searchFilter,
		},
	})
}

// GetAffiliateStats 推广用户状态统计
func (h *Handler) GetAffiliateStats(c *gin.Context) {
	stats, err := h.AffiliateService.StatusStats()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Affiliate statistics retrieved successfully", gin.H{
		"total":     stats.Total,
		"pending":   stats.Pending,
		"approved":  stats.Approved,
		"suspended": stats.Suspended,
		"rejected":  stats.Rejected,
		"breakdown": gin.H{
			"pending":   stats.Pending,
			"approved":  stats.Approved,
			"suspended": stats.Suspended,
			"rejected":  stats.Rejected,
		},
	})
}

// BulkUpdateAffiliateStatus 批量更新推广用户状态，逐条独立生效
func (h *Handler) BulkUpdateAffiliateStatus(c *gin.Context) {
	var req BulkUpdateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.AffiliateIDs) == 0 {
		respondError(c, response.CodeBadRequest, "Invalid affiliate IDs", err)
		return
	}
	updated, err := h.AffiliateService.BulkUpdateStatus(req.AffiliateIDs, req.Status, operatorID(c), req.CommissionRate)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Affiliates updated successfully", gin.H{
		"updatedCount": updated,
		"status":       strings.ToLower(strings.TrimSpace(req.Status)),
	})
}

// ProcessConversion 手工记录推荐转化；推荐码无效或重复归因时返回空结果
func (h *Handler) ProcessConversion(c *gin.Context) {
	var req ConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == 0 || req.ConversionValue == nil || strings.TrimSpace(req.ReferralCode) == "" {
		respondError(c, response.CodeBadRequest, "Missing required fields: userId, conversionValue, referralCode", nil)
		return
	}
	result, err := h.AffiliateService.ProcessReferralConversion(service.ConversionInput{
		UserID:          req.UserID,
		ReferralCode:    req.ReferralCode,
		ConversionValue: *req.ConversionValue,
		Source:          req.Source,
		Campaign:        req.Campaign,
		IPAddress:       c.ClientIP(),
		UserAgent:       c.GetHeader("User-Agent"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if result == nil {
		respondError(c, response.CodeBadRequest, "Invalid referral code or conversion already processed", nil)
		return
	}
	response.SuccessWithMsg(c, "Conversion processed successfully", gin.H{
		"referralId":       result.Referral.ID,
		"commissionId":     result.Commission.ID,
		"commissionAmount": result.Commission.Amount,
	})
}

// MarkCommissionPaid 标记佣金已打款
func (h *Handler) MarkCommissionPaid(c *gin.Context) {
	commissionID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var req MarkCommissionPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "transactionId is required", err)
		return
	}
	commission, err := h.AffiliateService.MarkCommissionPaid(service.MarkCommissionPaidInput{
		CommissionID:  commissionID,
		TransactionID: req.TransactionID,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Commission marked as paid", commission)
}
