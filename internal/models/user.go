package models

import "time"

// User 用户表，邮箱统一小写存储
type User struct {
	ID           uint       `gorm:"primarykey" json:"id"`                                       // 主键
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`        // 邮箱
	AuthProvider string     `gorm:"type:varchar(16);not null;default:'custom'" json:"provider"` // 登录方式
	ProviderID   string     `gorm:"type:varchar(255)" json:"providerId,omitempty"`              // 第三方账号ID
	UserType     int        `gorm:"not null;index" json:"userType"`                             // 0 管理员 / 1 普通用户（无默认值，0 为有效值）
	OTPHash      string     `gorm:"type:varchar(255)" json:"-"`                                 // 登录验证码哈希
	OTPExpiresAt *time.Time `json:"-"`                                                          // 验证码过期时间
	RefreshToken string     `gorm:"type:text" json:"-"`                                         // 当前刷新令牌
	TokenVersion uint64     `gorm:"not null;default:0" json:"-"`                                // Token 版本（登出时递增）
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`                                      // 最后登录时间
	CreatedAt    time.Time  `gorm:"index" json:"createdAt"`                                     // 创建时间
	UpdatedAt    time.Time  `json:"updatedAt"`                                                  // 更新时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
