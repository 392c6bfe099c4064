package models

import "time"

// AffiliateClick 推广链接点击记录
type AffiliateClick struct {
	ID          uint      `gorm:"primarykey" json:"id"`                 // 主键
	AffiliateID uint      `gorm:"not null;index" json:"affiliateId"`    // 推广用户ID
	LandingPath string    `gorm:"type:varchar(512)" json:"landingPath"` // 跳转目标
	Referrer    string    `gorm:"type:varchar(1024)" json:"referrer"`   // 来源地址
	ClientIP    string    `gorm:"type:varchar(64)" json:"clientIp"`     // 客户端IP
	UserAgent   string    `gorm:"type:varchar(1024)" json:"userAgent"`  // 客户端UA
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`               // 创建时间
}

// TableName 指定表名
func (AffiliateClick) TableName() string {
	return "affiliate_clicks"
}
