package repository

import (
	"errors"
	"strings"

	"github.com/pluginhub/internal/models"

	"gorm.io/gorm"
)

// PluginRepository 插件数据访问接口
type PluginRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) PluginRepository

	ExistsByName(name string) (bool, error)
	Create(plugin *models.Plugin) error
	CreateVersions(versions []models.PluginVersion) error
	GetWithVersions(id uint) (*models.Plugin, error)
	List(filter PluginListFilter) ([]models.Plugin, int64, error)
}

// GormPluginRepository GORM 插件仓储
type GormPluginRepository struct {
	db *gorm.DB
}

// NewPluginRepository 创建插件仓储
func NewPluginRepository(db *gorm.DB) *GormPluginRepository {
	return &GormPluginRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPluginRepository) WithTx(tx *gorm.DB) PluginRepository {
	if tx == nil {
		return r
	}
	return &GormPluginRepository{db: tx}
}

// Transaction 执行事务
func (r *GormPluginRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// ExistsByName 名称是否已存在（不区分大小写）
func (r *GormPluginRepository) ExistsByName(name string) (bool, error) {
	var total int64
	if err := r.db.Model(&models.Plugin{}).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

// Create 创建插件（不级联版本）
func (r *GormPluginRepository) Create(plugin *models.Plugin) error {
	return r.db.Omit("Versions").Create(plugin).Error
}

// CreateVersions 批量创建版本
func (r *GormPluginRepository) CreateVersions(versions []models.PluginVersion) error {
	if len(versions) == 0 {
		return nil
	}
	return r.db.Create(&versions).Error
}

// GetWithVersions 获取插件及其版本，版本按发布时间倒序
func (r *GormPluginRepository) GetWithVersions(id uint) (*models.Plugin, error) {
	if id == 0 {
		return nil, nil
	}
	var plugin models.Plugin
	err := r.db.Preload("Versions", func(db *gorm.DB) *gorm.DB {
		return db.Order("release_date desc, id desc")
	}).First(&plugin, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plugin, nil
}

// List 分页查询插件，最新创建在前
func (r *GormPluginRepository) List(filter PluginListFilter) ([]models.Plugin, int64, error) {
	query := r.db.Model(&models.Plugin{})
	if pluginType := strings.TrimSpace(filter.PluginType); pluginType != "" {
		query = query.Where("plugin_type = ?", pluginType)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"name", "description"})
		query = query.Where(condition, repeatLikeArgs("%"+search+"%", argCount)...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Plugin
	if err := query.Order("created_at desc, id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
