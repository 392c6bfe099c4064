package models

import (
	"strings"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/logger"

	"gorm.io/gorm"
)

// InitDefaultAdmin 首次启动时按配置邮箱创建管理员，已存在则提升为管理员，返回管理员 ID
func InitDefaultAdmin(db *gorm.DB, email string) (uint, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return 0, nil
	}

	var existing User
	err := db.Where("email = ?", email).Limit(1).Find(&existing).Error
	if err != nil {
		return 0, err
	}
	if existing.ID != 0 {
		if existing.UserType == constants.UserTypeAdmin {
			return existing.ID, nil
		}
		if err := db.Model(&User{}).Where("id = ?", existing.ID).Update("user_type", constants.UserTypeAdmin).Error; err != nil {
			return 0, err
		}
		logger.Warnw("bootstrap_admin_promoted", "email", email, "user_id", existing.ID)
		return existing.ID, nil
	}

	admin := User{
		Email:        email,
		AuthProvider: constants.AuthProviderCustom,
		UserType:     constants.UserTypeAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return 0, err
	}
	logger.Warnw("bootstrap_admin_created", "email", email, "user_id", admin.ID)
	return admin.ID, nil
}
