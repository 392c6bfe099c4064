package repository

import (
	"errors"
	"strings"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AffiliateRepository 推广用户数据访问接口
type AffiliateRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateRepository

	GetByID(id uint) (*models.Affiliate, error)
	GetByIDForUpdate(id uint) (*models.Affiliate, error)
	GetByUserID(userID uint) (*models.Affiliate, error)
	GetByCode(code string) (*models.Affiliate, error)
	GetApprovedByCode(code string) (*models.Affiliate, error)
	ExistsByCode(code string) (bool, error)
	Create(affiliate *models.Affiliate) error
	UpdateFields(id uint, updates map[string]interface{}) error
	IncrementTotals(id uint, commission decimal.Decimal) error
	List(filter AffiliateListFilter) ([]models.Affiliate, int64, error)
	CountByStatus() (map[string]int64, error)

	CreateClick(click *models.AffiliateClick) error
	CountClicks(affiliateID uint) (int64, error)
}

// GormAffiliateRepository GORM 推广用户仓储
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广用户仓储
func NewAffiliateRepository(db *gorm.DB) *GormAffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAffiliateRepository) WithTx(tx *gorm.DB) AffiliateRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateRepository{db: tx}
}

// Transaction 执行事务
func (r *GormAffiliateRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

func (r *GormAffiliateRepository) first(query *gorm.DB) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := query.First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// GetByID 按ID获取推广用户
func (r *GormAffiliateRepository) GetByID(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(r.db.Preload("User").Where("id = ?", id))
}

// GetByIDForUpdate 按ID获取并锁定推广用户
func (r *GormAffiliateRepository) GetByIDForUpdate(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

// GetByUserID 按用户ID获取推广用户
func (r *GormAffiliateRepository) GetByUserID(userID uint) (*models.Affiliate, error) {
	if userID == 0 {
		return nil, nil
	}
	return r.first(r.db.Where("user_id = ?", userID))
}

// GetByCode 按推荐码获取推广用户
func (r *GormAffiliateRepository) GetByCode(code string) (*models.Affiliate, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil
	}
	return r.first(r.db.Where("referral_code = ?", normalized))
}

// GetApprovedByCode 按推荐码获取已审核通过的推广用户
func (r *GormAffiliateRepository) GetApprovedByCode(code string) (*models.Affiliate, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil
	}
	return r.first(r.db.Where("referral_code = ? AND status = ?", normalized, constants.AffiliateStatusApproved))
}

// ExistsByCode 推荐码是否已被占用
func (r *GormAffiliateRepository) ExistsByCode(code string) (bool, error) {
	var total int64
	if err := r.db.Model(&models.Affiliate{}).
		Where("referral_code = ?", strings.ToUpper(strings.TrimSpace(code))).
		Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

// Create 创建推广用户
func (r *GormAffiliateRepository) Create(affiliate *models.Affiliate) error {
	return r.db.Create(affiliate).Error
}

// UpdateFields 按字段更新推广用户
func (r *GormAffiliateRepository) UpdateFields(id uint, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).Where("id = ?", id).Updates(updates).Error
}

// IncrementTotals 累加推荐数与累计佣金
func (r *GormAffiliateRepository) IncrementTotals(id uint, commission decimal.Decimal) error {
	result := r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_referrals": gorm.Expr("total_referrals + ?", 1),
			"total_earnings":  gorm.Expr("total_earnings + ?", commission.Round(2)),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List 查询推广用户列表
func (r *GormAffiliateRepository) List(filter AffiliateListFilter) ([]models.Affiliate, int64, error) {
	query := r.db.Model(&models.Affiliate{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("affiliates.status = ?", status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"users.email"})
		query = query.
			Joins("JOIN users ON users.id = affiliates.user_id").
			Where(condition, repeatLikeArgs("%"+search+"%", argCount)...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Affiliate
	if err := query.Preload("User").Order("affiliates.created_at desc, affiliates.id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountByStatus 按状态统计推广用户数量
func (r *GormAffiliateRepository) CountByStatus() (map[string]int64, error) {
	var rows []struct {
		Status string `gorm:"column:status"`
		Total  int64  `gorm:"column:total"`
	}
	if err := r.db.Model(&models.Affiliate{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.Status] = row.Total
	}
	return result, nil
}

// CreateClick 创建推广点击记录
func (r *GormAffiliateRepository) CreateClick(click *models.AffiliateClick) error {
	return r.db.Create(click).Error
}

// CountClicks 统计推广点击数
func (r *GormAffiliateRepository) CountClicks(affiliateID uint) (int64, error) {
	if affiliateID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.AffiliateClick{}).Where("affiliate_id = ?", affiliateID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
