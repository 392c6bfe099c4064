package models

import "time"

// Referral 推荐转化记录，(affiliate_id, referred_user_id) 唯一
type Referral struct {
	ID              uint       `gorm:"primarykey" json:"id"`                                                                    // 主键
	AffiliateID     uint       `gorm:"not null;index;uniqueIndex:idx_referral_affiliate_user,priority:1" json:"affiliateId"`    // 推广用户ID
	ReferredUserID  uint       `gorm:"not null;index;uniqueIndex:idx_referral_affiliate_user,priority:2" json:"referredUserId"` // 被推荐用户ID
	ReferralCode    string     `gorm:"type:varchar(20);not null;index" json:"referralCode"`                                     // 使用的推荐码
	Status          string     `gorm:"type:varchar(20);not null;index" json:"status"`                                           // 状态
	ConversionValue Money      `gorm:"type:decimal(20,2);not null;default:0" json:"conversionValue"`                            // 转化金额
	Commission      Money      `gorm:"type:decimal(20,2);not null;default:0" json:"commission"`                                 // 佣金（转化时计算）
	ConversionDate  *time.Time `gorm:"index" json:"conversionDate,omitempty"`                                                   // 转化时间
	Source          string     `gorm:"type:varchar(64)" json:"source,omitempty"`                                                // 来源
	Campaign        string     `gorm:"type:varchar(128)" json:"campaign,omitempty"`                                             // 活动
	IPAddress       string     `gorm:"type:varchar(64)" json:"ipAddress,omitempty"`                                             // 客户端IP
	UserAgent       string     `gorm:"type:varchar(1024)" json:"userAgent,omitempty"`                                           // 客户端UA
	CreatedAt       time.Time  `gorm:"index" json:"createdAt"`                                                                  // 创建时间
	UpdatedAt       time.Time  `json:"updatedAt"`                                                                               // 更新时间

	ReferredUser *User `gorm:"foreignKey:ReferredUserID" json:"referredUser,omitempty"`
}

// TableName 指定表名
func (Referral) TableName() string {
	return "referrals"
}
