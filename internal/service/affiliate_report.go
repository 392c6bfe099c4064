package service

import (
	"time"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/models"
	"github.com/pluginhub/internal/repository"

	"github.com/shopspring/decimal"
)

// BreakdownItem 按状态聚合的数量与金额
type BreakdownItem struct {
	Count  int64        `json:"count"`
	Amount models.Money `json:"amount"`
}

// DashboardStats 推广中心汇总
type DashboardStats struct {
	TotalReferrals     int64        `json:"totalReferrals"`
	TotalEarnings      models.Money `json:"totalEarnings"`
	PendingCommissions models.Money `json:"pendingCommissions"`
	PaidCommissions    models.Money `json:"paidCommissions"`
	ConversionRate     float64      `json:"conversionRate"`
	ClickCount         int64        `json:"clickCount"`
}

// AffiliateDashboard 推广中心数据
type AffiliateDashboard struct {
	Affiliate           *models.Affiliate        `json:"affiliate"`
	Stats               DashboardStats           `json:"stats"`
	ReferralBreakdown   map[string]BreakdownItem `json:"referralBreakdown"`
	CommissionBreakdown map[string]BreakdownItem `json:"commissionBreakdown"`
	RecentReferrals     []models.Referral        `json:"recentReferrals"`
	RecentCommissions   []models.Commission      `json:"recentCommissions"`
}

// DailyStat 单日业绩
type DailyStat struct {
	Date        string       `json:"date"`
	Referrals   int64        `json:"referrals"`
	Conversions int64        `json:"conversions"`
	Revenue     models.Money `json:"revenue"`
	Commission  models.Money `json:"commission"`
}

// ReportSummary 报表区间汇总
type ReportSummary struct {
	TotalReferrals   int64        `json:"totalReferrals"`
	TotalConversions int64        `json:"totalConversions"`
	TotalRevenue     models.Money `json:"totalRevenue"`
	TotalCommission  models.Money `json:"totalCommission"`
	ConversionRate   float64      `json:"conversionRate"`
}

// PerformanceReport 推广业绩报表
type PerformanceReport struct {
	StartDate  *time.Time    `json:"startDate,omitempty"`
	EndDate    *time.Time    `json:"endDate,omitempty"`
	DailyStats []DailyStat   `json:"dailyStats"`
	Summary    ReportSummary `json:"summary"`
}

// Dashboard 汇总推广用户的推荐与佣金数据
func (s *AffiliateService) Dashboard(affiliate *models.Affiliate) (*AffiliateDashboard, error) {
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}
	referralRows, err := s.referralRepo.ReferralBreakdown(affiliate.ID)
	if err != nil {
		return nil, err
	}
	commissionRows, err := s.referralRepo.CommissionBreakdown(affiliate.ID)
	if err != nil {
		return nil, err
	}
	recentReferrals, err := s.referralRepo.ListRecentReferralsWithUsers(affiliate.ID, dashboardRecentReferrals)
	if err != nil {
		return nil, err
	}
	recentCommissions, err := s.referralRepo.ListRecentCommissions(affiliate.ID, dashboardRecentCommissions)
	if err != nil {
		return nil, err
	}
	clicks, err := s.repo.CountClicks(affiliate.ID)
	if err != nil {
		return nil, err
	}

	referralBreakdown := buildBreakdown(referralRows,
		constants.ReferralStatusPending,
		constants.ReferralStatusConverted,
		constants.ReferralStatusCancelled,
	)
	commissionBreakdown := buildBreakdown(commissionRows,
		constants.CommissionStatusPending,
		constants.CommissionStatusApproved,
		constants.CommissionStatusPaid,
		constants.CommissionStatusCancelled,
	)

	var referralTotal int64
	for _, item := range referralBreakdown {
		referralTotal += item.Count
	}
	pending := commissionBreakdown[constants.CommissionStatusPending].Amount.
		Add(commissionBreakdown[constants.CommissionStatusApproved].Amount)

	if recentReferrals == nil {
		recentReferrals = []models.Referral{}
	}
	if recentCommissions == nil {
		recentCommissions = []models.Commission{}
	}
	return &AffiliateDashboard{
		Affiliate: affiliate,
		Stats: DashboardStats{
			TotalReferrals:     affiliate.TotalReferrals,
			TotalEarnings:      affiliate.TotalEarnings,
			PendingCommissions: pending,
			PaidCommissions:    commissionBreakdown[constants.CommissionStatusPaid].Amount,
			ConversionRate:     percentOf(referralBreakdown[constants.ReferralStatusConverted].Count, referralTotal),
			ClickCount:         clicks,
		},
		ReferralBreakdown:   referralBreakdown,
		CommissionBreakdown: commissionBreakdown,
		RecentReferrals:     recentReferrals,
		RecentCommissions:   recentCommissions,
	}, nil
}

// Report 按日统计推广业绩，起止时间均可选
func (s *AffiliateService) Report(affiliate *models.Affiliate, startDate, endDate *time.Time) (*PerformanceReport, error) {
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}
	if startDate != nil && endDate != nil && endDate.Before(*startDate) {
		return nil, newValidationError([]string{"endDate must not be before startDate"})
	}
	rows, err := s.referralRepo.DailyStats(repository.ReferralReportFilter{
		AffiliateID: affiliate.ID,
		StartDate:   startDate,
		EndDate:     endDate,
	})
	if err != nil {
		return nil, err
	}

	report := &PerformanceReport{
		StartDate:  startDate,
		EndDate:    endDate,
		DailyStats: make([]DailyStat, 0, len(rows)),
	}
	revenue := decimal.Zero
	commission := decimal.Zero
	for _, row := range rows {
		report.DailyStats = append(report.DailyStats, DailyStat{
			Date:        row.Day,
			Referrals:   row.Count,
			Conversions: row.Conversions,
			Revenue:     models.NewMoneyFromDecimal(row.Revenue),
			Commission:  models.NewMoneyFromDecimal(row.Commission),
		})
		report.Summary.TotalReferrals += row.Count
		report.Summary.TotalConversions += row.Conversions
		revenue = revenue.Add(row.Revenue)
		commission = commission.Add(row.Commission)
	}
	report.Summary.TotalRevenue = models.NewMoneyFromDecimal(revenue)
	report.Summary.TotalCommission = models.NewMoneyFromDecimal(commission)
	report.Summary.ConversionRate = percentOf(report.Summary.TotalConversions, report.Summary.TotalReferrals)
	return report, nil
}

func buildBreakdown(rows []repository.StatusAggregate, statuses ...string) map[string]BreakdownItem {
	result := make(map[string]BreakdownItem, len(statuses))
	for _, status := range statuses {
		result[status] = BreakdownItem{Amount: models.NewMoneyFromDecimal(decimal.Zero)}
	}
	for _, row := range rows {
		item := result[row.Status]
		item.Count += row.Count
		item.Amount = item.Amount.Add(models.NewMoneyFromDecimal(row.Amount))
		result[row.Status] = item
	}
	return result
}
