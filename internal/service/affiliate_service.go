package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pluginhub/internal/cache"
	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/models"
	"github.com/pluginhub/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	dashboardRecentReferrals   = 10
	dashboardRecentCommissions = 20
)

var defaultCommissionRate = decimal.RequireFromString("0.10")

// AffiliateService 推广计划业务服务
type AffiliateService struct {
	repo         repository.AffiliateRepository
	referralRepo repository.ReferralRepository
	userRepo     repository.UserRepository
	defaultRate  decimal.Decimal
	confirmAfter time.Duration
	nowFunc      func() time.Time
}

// AffiliateOptions 推广服务可选参数
type AffiliateOptions struct {
	DefaultCommissionRate float64
	CommissionConfirmDays int
}

// NewAffiliateService 创建推广服务
func NewAffiliateService(
	repo repository.AffiliateRepository,
	referralRepo repository.ReferralRepository,
	userRepo repository.UserRepository,
	options AffiliateOptions,
) *AffiliateService {
	rate := defaultCommissionRate
	if options.DefaultCommissionRate > 0 && options.DefaultCommissionRate <= 1 {
		rate = decimal.NewFromFloat(options.DefaultCommissionRate)
	}
	confirmDays := options.CommissionConfirmDays
	if confirmDays <= 0 {
		confirmDays = 30
	}
	return &AffiliateService{
		repo:         repo,
		referralRepo: referralRepo,
		userRepo:     userRepo,
		defaultRate:  rate,
		confirmAfter: time.Duration(confirmDays) * 24 * time.Hour,
		nowFunc:      time.Now,
	}
}

// ApplyAffiliateInput 申请成为推广用户
type ApplyAffiliateInput struct {
	UserID         uint
	PaymentMethod  string
	PaymentDetails json.RawMessage
}

// UpdateAffiliateStatusInput 管理端更新推广用户状态
type UpdateAffiliateStatusInput struct {
	AffiliateID    uint
	Status         string
	ApprovedBy     uint
	CommissionRate *decimal.Decimal
}

// ConversionInput 推荐转化输入
type ConversionInput struct {
	UserID          uint
	ReferralCode    string
	ConversionValue decimal.Decimal
	Source          string
	Campaign        string
	IPAddress       string
	UserAgent       string
}

// ConversionResult 转化产生的推荐与佣金记录
type ConversionResult struct {
	Referral   *models.Referral   `json:"referral"`
	Commission *models.Commission `json:"commission"`
}

// TrackClickInput 推广链接点击
type TrackClickInput struct {
	ReferralCode string
	LandingPath  string
	Referrer     string
	ClientIP     string
	UserAgent    string
}

// AffiliateStatusStats 推广用户按状态统计
type AffiliateStatusStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Approved  int64 `json:"approved"`
	Suspended int64 `json:"suspended"`
	Rejected  int64 `json:"rejected"`
}

// affiliateTransitions 允许的状态迁移，同状态视为幂等
var affiliateTransitions = map[string][]string{
	constants.AffiliateStatusPending:   {constants.AffiliateStatusApproved, constants.AffiliateStatusRejected},
	constants.AffiliateStatusApproved:  {constants.AffiliateStatusSuspended},
	constants.AffiliateStatusSuspended: {constants.AffiliateStatusApproved},
}

func canTransitAffiliate(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range affiliateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Apply 申请推广账户，新账户为 pending 状态
func (s *AffiliateService) Apply(input ApplyAffiliateInput) (*models.Affiliate, error) {
	if input.UserID == 0 {
		return nil, ErrUserNotFound
	}
	method := strings.ToLower(strings.TrimSpace(input.PaymentMethod))
	if method != "" && !constants.IsValidAffiliatePayment(method) {
		return nil, ErrAffiliatePaymentInvalid
	}
	user, err := s.userRepo.GetByID(input.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	existing, err := s.repo.GetByUserID(input.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAffiliateExists
	}

	code, err := GenerateUniqueReferralCode(input.UserID, s.repo.ExistsByCode)
	if err != nil {
		return nil, err
	}
	affiliate := &models.Affiliate{
		UserID:         input.UserID,
		ReferralCode:   code,
		Status:         constants.AffiliateStatusPending,
		CommissionRate: s.defaultRate,
		AppliedAt:      s.nowFunc(),
		PaymentMethod:  method,
	}
	if len(input.PaymentDetails) > 0 && string(input.PaymentDetails) != "null" {
		affiliate.PaymentDetails = datatypes.JSON(input.PaymentDetails)
	}
	if err := s.repo.Create(affiliate); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAffiliateExists
		}
		return nil, err
	}
	logger.Infow("affiliate_applied", "affiliate_id", affiliate.ID, "user_id", input.UserID, "referral_code", code)
	return affiliate, nil
}

// GetByUser 获取用户自己的推广账户
func (s *AffiliateService) GetByUser(userID uint) (*models.Affiliate, error) {
	affiliate, err := s.repo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}
	return affiliate, nil
}

// ResolveApproved 按推荐码获取已审核推广用户，无效或未审核返回 nil
func (s *AffiliateService) ResolveApproved(rawCode string) (*models.Affiliate, error) {
	code := NormalizeReferralCode(rawCode)
	if code == "" {
		return nil, nil
	}
	return s.repo.GetApprovedByCode(code)
}

// ResolveApprovedCached 带缓存的推荐码解析，用于请求追踪；结算路径需使用 ResolveApproved
func (s *AffiliateService) ResolveApprovedCached(ctx context.Context, rawCode string) (*models.Affiliate, error) {
	code := NormalizeReferralCode(rawCode)
	if code == "" {
		return nil, nil
	}
	if entry, hit, err := cache.GetAffiliateCode(ctx, code); err != nil {
		logger.Warnw("affiliate_code_cache_get_failed", "code", code, "error", err)
	} else if hit {
		if !entry.Approved {
			return nil, nil
		}
		rate, err := decimal.NewFromString(entry.CommissionRate)
		if err != nil {
			rate = s.defaultRate
		}
		return &models.Affiliate{
			ID:             entry.AffiliateID,
			UserID:         entry.UserID,
			ReferralCode:   entry.ReferralCode,
			Status:         constants.AffiliateStatusApproved,
			CommissionRate: rate,
		}, nil
	}

	affiliate, err := s.repo.GetApprovedByCode(code)
	if err != nil {
		return nil, err
	}
	entry := &cache.AffiliateCodeEntry{ReferralCode: code}
	if affiliate != nil {
		entry.AffiliateID = affiliate.ID
		entry.UserID = affiliate.UserID
		entry.CommissionRate = affiliate.CommissionRate.String()
		entry.Approved = true
	}
	if err := cache.SetAffiliateCode(ctx, code, entry); err != nil {
		logger.Warnw("affiliate_code_cache_set_failed", "code", code, "error", err)
	}
	return affiliate, nil
}

// UpdateStatus 更新推广用户状态与佣金比例
func (s *AffiliateService) UpdateStatus(input UpdateAffiliateStatusInput) (*models.Affiliate, error) {
	status := strings.ToLower(strings.TrimSpace(input.Status))
	if !constants.IsValidAffiliateStatus(status) {
		return nil, ErrAffiliateStatusInvalid
	}
	if input.CommissionRate != nil {
		if err := validateCommissionRate(*input.CommissionRate); err != nil {
			return nil, err
		}
	}

	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affiliate, err := repo.GetByIDForUpdate(input.AffiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return ErrAffiliateNotFound
		}
		if !canTransitAffiliate(affiliate.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrAffiliateStatusTransition, affiliate.Status, status)
		}

		now := s.nowFunc()
		updates := map[string]interface{}{
			"status":     status,
			"updated_at": now,
		}
		if status == constants.AffiliateStatusApproved && affiliate.Status != constants.AffiliateStatusApproved {
			updates["approved_at"] = now
			if input.ApprovedBy > 0 {
				updates["approved_by"] = input.ApprovedBy
			}
		}
		if input.CommissionRate != nil {
			updates["commission_rate"] = input.CommissionRate.Round(4)
		}
		return repo.UpdateFields(affiliate.ID, updates)
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("affiliate_status_updated", "affiliate_id", input.AffiliateID, "status", status, "approved_by", input.ApprovedBy)
	affiliate, err := s.repo.GetByID(input.AffiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate != nil {
		if err := cache.DelAffiliateCode(context.Background(), affiliate.ReferralCode); err != nil {
			logger.Warnw("affiliate_code_cache_del_failed", "affiliate_id", affiliate.ID, "error", err)
		}
	}
	return affiliate, nil
}

// BulkUpdateStatus 批量更新状态，逐条独立执行，返回成功条数
func (s *AffiliateService) BulkUpdateStatus(ids []uint, status string, approvedBy uint, rate *decimal.Decimal) (int, error) {
	if !constants.IsValidAffiliateStatus(strings.ToLower(strings.TrimSpace(status))) {
		return 0, ErrAffiliateStatusInvalid
	}
	if rate != nil {
		if err := validateCommissionRate(*rate); err != nil {
			return 0, err
		}
	}
	updated := 0
	for _, id := range normalizeIDs(ids) {
		_, err := s.UpdateStatus(UpdateAffiliateStatusInput{
			AffiliateID:    id,
			Status:         status,
			ApprovedBy:     approvedBy,
			CommissionRate: rate,
		})
		if err != nil {
			if errors.Is(err, ErrAffiliateNotFound) || errors.Is(err, ErrAffiliateStatusTransition) {
				logger.Warnw("affiliate_bulk_update_skipped", "affiliate_id", id, "error", err)
				continue
			}
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// ProcessReferralConversion 记录一次推荐转化，并同步生成佣金、累加推广统计。
// 推荐码无效或该用户已归属过此推广用户时返回 nil, nil。
func (s *AffiliateService) ProcessReferralConversion(input ConversionInput) (*ConversionResult, error) {
	if input.ConversionValue.IsNegative() {
		return nil, ErrConversionValueInvalid
	}
	if input.UserID == 0 {
		return nil, nil
	}
	affiliate, err := s.ResolveApproved(input.ReferralCode)
	if err != nil {
		return nil, err
	}
	if affiliate == nil || affiliate.UserID == input.UserID {
		return nil, nil
	}

	var result *ConversionResult
	err = s.repo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.repo.WithTx(tx)
		locked, err := affiliateRepo.GetByIDForUpdate(affiliate.ID)
		if err != nil {
			return err
		}
		// 查找后可能已被暂停或调整比例，以锁定后的记录为准
		if locked == nil || locked.Status != constants.AffiliateStatusApproved {
			logger.Infow("referral_conversion_affiliate_inactive", "affiliate_id", affiliate.ID, "user_id", input.UserID)
			return nil
		}
		affiliate = locked

		referralRepo := s.referralRepo.WithTx(tx)
		existing, err := referralRepo.GetByAffiliateAndUser(affiliate.ID, input.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		now := s.nowFunc()
		value := models.NewMoneyFromDecimal(input.ConversionValue)
		commissionAmount := value.ApplyRate(affiliate.CommissionRate)
		referral := &models.Referral{
			AffiliateID:     affiliate.ID,
			ReferredUserID:  input.UserID,
			ReferralCode:    affiliate.ReferralCode,
			Status:          constants.ReferralStatusConverted,
			ConversionValue: value,
			Commission:      commissionAmount,
			ConversionDate:  &now,
			Source:          strings.TrimSpace(input.Source),
			Campaign:        strings.TrimSpace(input.Campaign),
			IPAddress:       strings.TrimSpace(input.IPAddress),
			UserAgent:       truncate(strings.TrimSpace(input.UserAgent), 1024),
		}
		if err := referralRepo.CreateReferral(referral); err != nil {
			return err
		}
		commission := &models.Commission{
			AffiliateID: affiliate.ID,
			ReferralID:  referral.ID,
			Amount:      commissionAmount,
			Status:      constants.CommissionStatusPending,
		}
		if err := referralRepo.CreateCommission(commission); err != nil {
			return err
		}
		if err := affiliateRepo.IncrementTotals(affiliate.ID, commissionAmount.Decimal); err != nil {
			return err
		}
		result = &ConversionResult{Referral: referral, Commission: commission}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			logger.Infow("referral_conversion_duplicate", "affiliate_id", affiliate.ID, "user_id", input.UserID)
			return nil, nil
		}
		return nil, err
	}
	if result != nil {
		logger.Infow("referral_converted",
			"affiliate_id", affiliate.ID,
			"user_id", input.UserID,
			"conversion_value", result.Referral.ConversionValue.String(),
			"commission", result.Commission.Amount.String(),
		)
	}
	return result, nil
}

// TrackClick 记录推广链接点击，返回对应的已审核推广用户
func (s *AffiliateService) TrackClick(input TrackClickInput) (*models.Affiliate, error) {
	affiliate, err := s.ResolveApproved(input.ReferralCode)
	if err != nil || affiliate == nil {
		return nil, err
	}
	click := &models.AffiliateClick{
		AffiliateID: affiliate.ID,
		LandingPath: truncate(strings.TrimSpace(input.LandingPath), 512),
		Referrer:    truncate(strings.TrimSpace(input.Referrer), 1024),
		ClientIP:    strings.TrimSpace(input.ClientIP),
		UserAgent:   truncate(strings.TrimSpace(input.UserAgent), 1024),
	}
	if err := s.repo.CreateClick(click); err != nil {
		return nil, err
	}
	return affiliate, nil
}

// ListAffiliates 管理端推广用户列表
func (s *AffiliateService) ListAffiliates(filter repository.AffiliateListFilter) ([]models.Affiliate, int64, error) {
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	if filter.Status != "" && !constants.IsValidAffiliateStatus(filter.Status) {
		return nil, 0, ErrAffiliateStatusInvalid
	}
	return s.repo.List(filter)
}

// StatusStats 按状态统计推广用户
func (s *AffiliateService) StatusStats() (*AffiliateStatusStats, error) {
	counts, err := s.repo.CountByStatus()
	if err != nil {
		return nil, err
	}
	stats := &AffiliateStatusStats{
		Pending:   counts[constants.AffiliateStatusPending],
		Approved:  counts[constants.AffiliateStatusApproved],
		Suspended: counts[constants.AffiliateStatusSuspended],
		Rejected:  counts[constants.AffiliateStatusRejected],
	}
	for _, count := range counts {
		stats.Total += count
	}
	return stats, nil
}

// PendingCount 待审核推广用户数
func (s *AffiliateService) PendingCount() (int64, error) {
	counts, err := s.repo.CountByStatus()
	if err != nil {
		return 0, err
	}
	return counts[constants.AffiliateStatusPending], nil
}

// ConfirmDueCommissions 确认期已过的 pending 佣金转为 approved
func (s *AffiliateService) ConfirmDueCommissions() (int64, error) {
	now := s.nowFunc()
	affected, err := s.referralRepo.ApprovePendingCommissions(now.Add(-s.confirmAfter), now)
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		logger.Infow("affiliate_commissions_confirmed", "count", affected)
	}
	return affected, nil
}

// MarkCommissionPaidInput 标记佣金已打款
type MarkCommissionPaidInput struct {
	CommissionID  uint
	TransactionID string
	PaymentMethod string
	Notes         string
}

// MarkCommissionPaid 已确认的佣金标记为已打款
func (s *AffiliateService) MarkCommissionPaid(input MarkCommissionPaidInput) (*models.Commission, error) {
	commission, err := s.referralRepo.GetCommissionByID(input.CommissionID)
	if err != nil {
		return nil, err
	}
	if commission == nil {
		return nil, ErrCommissionNotFound
	}
	if commission.Status != constants.CommissionStatusApproved {
		return nil, ErrCommissionStatusInvalid
	}
	method := strings.ToLower(strings.TrimSpace(input.PaymentMethod))
	if method == "" {
		affiliate, err := s.repo.GetByID(commission.AffiliateID)
		if err != nil {
			return nil, err
		}
		if affiliate != nil {
			method = affiliate.PaymentMethod
		}
	} else if !constants.IsValidAffiliatePayment(method) {
		return nil, ErrAffiliatePaymentInvalid
	}

	now := s.nowFunc()
	updates := map[string]interface{}{
		"status":         constants.CommissionStatusPaid,
		"paid_at":        now,
		"payment_method": method,
		"transaction_id": strings.TrimSpace(input.TransactionID),
		"updated_at":     now,
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		updates["notes"] = notes
	}
	if err := s.referralRepo.UpdateCommissionFields(commission.ID, updates); err != nil {
		return nil, err
	}
	logger.Infow("affiliate_commission_paid", "commission_id", commission.ID, "affiliate_id", commission.AffiliateID)
	return s.referralRepo.GetCommissionByID(commission.ID)
}

func validateCommissionRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrCommissionRateInvalid
	}
	return nil
}

func percentOf(part, total int64) float64 {
	if total <= 0 || part <= 0 {
		return 0
	}
	value := (float64(part) / float64(total)) * 100
	return math.Round(value*100) / 100
}

func normalizeIDs(ids []uint) []uint {
	result := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// truncate 按字节上限截断，不切断多字节字符
func truncate(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
