package repository

import (
	"errors"
	"time"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReferralRepository 推荐与佣金账本数据访问接口
type ReferralRepository interface {
	WithTx(tx *gorm.DB) ReferralRepository

	GetByAffiliateAndUser(affiliateID, referredUserID uint) (*models.Referral, error)
	CreateReferral(referral *models.Referral) error
	CreateCommission(commission *models.Commission) error
	ListRecentReferralsWithUsers(affiliateID uint, limit int) ([]models.Referral, error)
	ListRecentCommissions(affiliateID uint, limit int) ([]models.Commission, error)
	ReferralBreakdown(affiliateID uint) ([]StatusAggregate, error)
	CommissionBreakdown(affiliateID uint) ([]StatusAggregate, error)
	DailyStats(filter ReferralReportFilter) ([]DailyReferralRow, error)
	ConvertedTotals(affiliateID uint) (int64, decimal.Decimal, error)

	GetCommissionByID(id uint) (*models.Commission, error)
	UpdateCommissionFields(id uint, updates map[string]interface{}) error
	ApprovePendingCommissions(createdBefore, now time.Time) (int64, error)
}

// GormReferralRepository GORM 推荐账本仓储
type GormReferralRepository struct {
	db *gorm.DB
}

// NewReferralRepository 创建推荐账本仓储
func NewReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReferralRepository) WithTx(tx *gorm.DB) ReferralRepository {
	if tx == nil {
		return r
	}
	return &GormReferralRepository{db: tx}
}

// GetByAffiliateAndUser 查询推广用户与被推荐用户的唯一记录
func (r *GormReferralRepository) GetByAffiliateAndUser(affiliateID, referredUserID uint) (*models.Referral, error) {
	if affiliateID == 0 || referredUserID == 0 {
		return nil, nil
	}
	var referral models.Referral
	err := r.db.Where("affiliate_id = ? AND referred_user_id = ?", affiliateID, referredUserID).First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// CreateReferral 创建推荐记录
func (r *GormReferralRepository) CreateReferral(referral *models.Referral) error {
	return r.db.Create(referral).Error
}

// CreateCommission 创建佣金记录
func (r *GormReferralRepository) CreateCommission(commission *models.Commission) error {
	return r.db.Create(commission).Error
}

// ListRecentReferralsWithUsers 查询最近推荐记录，并批量回填被推荐用户
func (r *GormReferralRepository) ListRecentReferralsWithUsers(affiliateID uint, limit int) ([]models.Referral, error) {
	var rows []models.Referral
	query := r.db.Where("affiliate_id = ?", affiliateID).Order("created_at desc, id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rows, nil
	}

	userIDs := make([]uint, 0, len(rows))
	seen := make(map[uint]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.ReferredUserID]; ok {
			continue
		}
		seen[row.ReferredUserID] = struct{}{}
		userIDs = append(userIDs, row.ReferredUserID)
	}
	var users []models.User
	if err := r.db.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	userMap := make(map[uint]*models.User, len(users))
	for i := range users {
		userMap[users[i].ID] = &users[i]
	}
	for i := range rows {
		rows[i].ReferredUser = userMap[rows[i].ReferredUserID]
	}
	return rows, nil
}

// ListRecentCommissions 查询最近佣金记录
func (r *GormReferralRepository) ListRecentCommissions(affiliateID uint, limit int) ([]models.Commission, error) {
	var rows []models.Commission
	query := r.db.Where("affiliate_id = ?", affiliateID).Order("created_at desc, id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ReferralBreakdown 按状态统计推荐数量与转化金额
func (r *GormReferralRepository) ReferralBreakdown(affiliateID uint) ([]StatusAggregate, error) {
	var rows []StatusAggregate
	if err := r.db.Model(&models.Referral{}).
		Select("status, COUNT(*) AS total_count, COALESCE(SUM(conversion_value), 0) AS total_amount").
		Where("affiliate_id = ?", affiliateID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CommissionBreakdown 按状态统计佣金数量与金额
func (r *GormReferralRepository) CommissionBreakdown(affiliateID uint) ([]StatusAggregate, error) {
	var rows []StatusAggregate
	if err := r.db.Model(&models.Commission{}).
		Select("status, COUNT(*) AS total_count, COALESCE(SUM(amount), 0) AS total_amount").
		Where("affiliate_id = ?", affiliateID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DailyStats 按自然日统计推荐、转化、营收与佣金
func (r *GormReferralRepository) DailyStats(filter ReferralReportFilter) ([]DailyReferralRow, error) {
	dayExpr := dayBucketExprByDialect(dbDialectName(r.db), "created_at")
	query := r.db.Model(&models.Referral{}).
		Select(
			dayExpr+" AS day, COUNT(*) AS total_count, "+
				"SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS conversions, "+
				"COALESCE(SUM(conversion_value), 0) AS revenue, "+
				"COALESCE(SUM(commission), 0) AS commission",
			constants.ReferralStatusConverted,
		).
		Where("affiliate_id = ?", filter.AffiliateID)
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	var rows []DailyReferralRow
	if err := query.Group(dayExpr).Order(dayExpr + " asc").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ConvertedTotals 汇总已转化推荐的数量与佣金
func (r *GormReferralRepository) ConvertedTotals(affiliateID uint) (int64, decimal.Decimal, error) {
	var row struct {
		Total  int64           `gorm:"column:total_count"`
		Amount decimal.Decimal `gorm:"column:total_amount"`
	}
	if err := r.db.Model(&models.Referral{}).
		Select("COUNT(*) AS total_count, COALESCE(SUM(commission), 0) AS total_amount").
		Where("affiliate_id = ? AND status = ?", affiliateID, constants.ReferralStatusConverted).
		Scan(&row).Error; err != nil {
		return 0, decimal.Zero, err
	}
	return row.Total, row.Amount.Round(2), nil
}

// GetCommissionByID 按ID获取佣金记录
func (r *GormReferralRepository) GetCommissionByID(id uint) (*models.Commission, error) {
	if id == 0 {
		return nil, nil
	}
	var commission models.Commission
	if err := r.db.First(&commission, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &commission, nil
}

// UpdateCommissionFields 按字段更新佣金记录
func (r *GormReferralRepository) UpdateCommissionFields(id uint, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.Commission{}).Where("id = ?", id).Updates(updates).Error
}

// ApprovePendingCommissions 将确认期已过的待确认佣金转为已确认
func (r *GormReferralRepository) ApprovePendingCommissions(createdBefore, now time.Time) (int64, error) {
	result := r.db.Model(&models.Commission{}).
		Where("status = ? AND created_at <= ?", constants.CommissionStatusPending, createdBefore).
		Updates(map[string]interface{}{
			"status":     constants.CommissionStatusApproved,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
