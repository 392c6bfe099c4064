package public

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	handlershared "github.com/pluginhub/internal/http/handlers/shared"
	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/service"

	"github.com/gin-gonic/gin"
)

// ApplyAffiliateRequest 申请推广账户请求
type ApplyAffiliateRequest struct {
	PaymentMethod  string          `json:"paymentMethod"`
	PaymentDetails json.RawMessage `json:"paymentDetails"`
}

// TrackReferral 记录推广链接点击，写入推荐码 Cookie 后跳转
func (h *Handler) TrackReferral(c *gin.Context) {
	target := handlershared.SafeRedirectTarget(c.Query("redirect"), h.Config.Affiliate.RedirectAllowlist)
	code := handlershared.ExtractReferralCode(c)
	if code != "" {
		handlershared.SetReferralCookie(c, code, h.Config.Affiliate.CookieMaxAgeDays, h.secureCookies())
		affiliate, err := h.AffiliateService.TrackClick(service.TrackClickInput{
			ReferralCode: code,
			LandingPath:  target,
			Referrer:     c.GetHeader("Referer"),
			ClientIP:     c.ClientIP(),
			UserAgent:    c.GetHeader("User-Agent"),
		})
		if err != nil {
			requestLog(c).Warnw("affiliate_track_click_failed", "referral_code", code, "error", err)
		} else if affiliate != nil {
			requestLog(c).Infow("affiliate_click_tracked", "referral_code", code, "affiliate_id", affiliate.ID)
		}
	}
	c.Redirect(http.StatusFound, target)
}

// ApplyAffiliate 申请成为推广用户
func (h *Handler) ApplyAffiliate(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req ApplyAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}
	affiliate, err := h.AffiliateService.Apply(service.ApplyAffiliateInput{
		UserID:         uid,
		PaymentMethod:  req.PaymentMethod,
		PaymentDetails: req.PaymentDetails,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Created(c, "Affiliate application submitted successfully", affiliate)
}

// VerifyAffiliate 查询当前用户的推广账户状态
func (h *Handler) VerifyAffiliate(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	affiliate, err := h.AffiliateService.GetByUser(uid)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Affiliate status retrieved successfully", affiliate)
}

// GetAffiliateDashboard 推广中心看板
func (h *Handler) GetAffiliateDashboard(c *gin.Context) {
	dashboard, err := h.AffiliateService.Dashboard(handlershared.CurrentAffiliate(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Dashboard data retrieved successfully", dashboard)
}

// GetAffiliateReport 推广业绩报表
func (h *Handler) GetAffiliateReport(c *gin.Context) {
	startDate, ok := parseOptionalDate(c, "startDate")
	if !ok {
		return
	}
	endDate, ok := parseOptionalDate(c, "endDate")
	if !ok {
		return
	}
	report, err := h.AffiliateService.Report(handlershared.CurrentAffiliate(c), startDate, endDate)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithMsg(c, "Performance report generated successfully", report)
}

// parseOptionalDate 解析可选日期参数，支持 2006-01-02 与 RFC3339；纯日期的 endDate 包含当天
func parseOptionalDate(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		if name == "endDate" {
			parsed = parsed.Add(24*time.Hour - time.Nanosecond)
		}
		return &parsed, true
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return &parsed, true
	}
	respondError(c, response.CodeBadRequest, "Invalid "+name, nil)
	return nil, false
}
