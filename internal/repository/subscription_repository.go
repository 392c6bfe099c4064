package repository

import (
	"errors"
	"strings"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/models"

	"gorm.io/gorm"
)

// SubscriptionRepository 订阅数据访问接口
type SubscriptionRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) SubscriptionRepository

	GetByStripeSubscriptionID(stripeSubscriptionID string) (*models.Subscription, error)
	GetByProductKey(productKey string) (*models.Subscription, error)
	ExistsByProductKey(productKey string) (bool, error)
	GetActiveByUser(userID uint) (*models.Subscription, error)
	GetLatestWithCustomerByUser(userID uint) (*models.Subscription, error)
	ListByUser(userID uint) ([]models.Subscription, error)
	Create(subscription *models.Subscription) error
	UpdateFields(id uint, updates map[string]interface{}) error
	IncrementDownloadCount(id uint) error
}

// GormSubscriptionRepository GORM 订阅仓储
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository 创建订阅仓储
func NewSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSubscriptionRepository) WithTx(tx *gorm.DB) SubscriptionRepository {
	if tx == nil {
		return r
	}
	return &GormSubscriptionRepository{db: tx}
}

// Transaction 执行事务
func (r *GormSubscriptionRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

func (r *GormSubscriptionRepository) first(query *gorm.DB) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := query.First(&subscription).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

// GetByStripeSubscriptionID 按 Stripe 订阅ID获取
func (r *GormSubscriptionRepository) GetByStripeSubscriptionID(stripeSubscriptionID string) (*models.Subscription, error) {
	id := strings.TrimSpace(stripeSubscriptionID)
	if id == "" {
		return nil, nil
	}
	return r.first(r.db.Where("stripe_subscription_id = ?", id))
}

// GetByProductKey 按产品密钥获取，附带用户信息
func (r *GormSubscriptionRepository) GetByProductKey(productKey string) (*models.Subscription, error) {
	key := strings.ToUpper(strings.TrimSpace(productKey))
	if key == "" {
		return nil, nil
	}
	return r.first(r.db.Preload("User").Where("product_key = ?", key))
}

// ExistsByProductKey 产品密钥是否已存在
func (r *GormSubscriptionRepository) ExistsByProductKey(productKey string) (bool, error) {
	var total int64
	if err := r.db.Model(&models.Subscription{}).Where("product_key = ?", productKey).Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

// GetActiveByUser 获取用户最新的 active/trialing 订阅
func (r *GormSubscriptionRepository) GetActiveByUser(userID uint) (*models.Subscription, error) {
	if userID == 0 {
		return nil, nil
	}
	return r.first(r.db.
		Where("user_id = ? AND status IN ?", userID, []string{
			constants.SubscriptionStatusActive,
			constants.SubscriptionStatusTrialing,
		}).
		Order("created_at desc, id desc"))
}

// GetLatestWithCustomerByUser 获取用户最近一条带 Stripe 客户ID 的订阅
func (r *GormSubscriptionRepository) GetLatestWithCustomerByUser(userID uint) (*models.Subscription, error) {
	if userID == 0 {
		return nil, nil
	}
	return r.first(r.db.
		Where("user_id = ? AND stripe_customer_id <> ''", userID).
		Order("created_at desc, id desc"))
}

// ListByUser 获取用户全部订阅
func (r *GormSubscriptionRepository) ListByUser(userID uint) ([]models.Subscription, error) {
	var rows []models.Subscription
	if err := r.db.Where("user_id = ?", userID).Order("created_at desc, id desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Create 创建订阅
func (r *GormSubscriptionRepository) Create(subscription *models.Subscription) error {
	return r.db.Create(subscription).Error
}

// UpdateFields 按字段更新订阅
func (r *GormSubscriptionRepository) UpdateFields(id uint, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).Updates(updates).Error
}

// IncrementDownloadCount 插件下载次数加一
func (r *GormSubscriptionRepository) IncrementDownloadCount(id uint) error {
	return r.db.Model(&models.Subscription{}).
		Where("id = ?", id).
		UpdateColumn("plugin_download_count", gorm.Expr("plugin_download_count + ?", 1)).Error
}
