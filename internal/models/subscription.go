package models

import "time"

// Subscription 订阅记录，仅转为 canceled，不删除
type Subscription struct {
	ID                   uint       `gorm:"primarykey" json:"id"`                                              // 主键
	UserID               uint       `gorm:"not null;index" json:"userId"`                                      // 用户ID
	StripeCustomerID     string     `gorm:"type:varchar(64);not null;index" json:"stripeCustomerId"`           // Stripe 客户ID
	StripeSubscriptionID string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"stripeSubscriptionId"` // Stripe 订阅ID
	StripePriceID        string     `gorm:"type:varchar(64)" json:"stripePriceId"`                             // Stripe 价格ID
	Status               string     `gorm:"type:varchar(32);not null;index" json:"status"`                     // 订阅状态
	Plan                 string     `gorm:"type:varchar(20);not null" json:"plan"`                             // 套餐
	ProductKey           string     `gorm:"type:varchar(19);not null;uniqueIndex" json:"productKey"`           // 产品密钥
	CurrentPeriodStart   *time.Time `json:"currentPeriodStart,omitempty"`                                      // 当前周期开始
	CurrentPeriodEnd     *time.Time `gorm:"index" json:"currentPeriodEnd,omitempty"`                           // 当前周期结束
	TrialStart           *time.Time `json:"trialStart,omitempty"`                                              // 试用开始
	TrialEnd             *time.Time `json:"trialEnd,omitempty"`                                                // 试用结束
	CanceledAt           *time.Time `json:"canceledAt,omitempty"`                                              // 取消时间
	CancelAtPeriodEnd    bool       `gorm:"not null;default:false" json:"cancelAtPeriodEnd"`                   // 周期结束时取消
	PluginDownloadCount  int64      `gorm:"not null;default:0" json:"pluginDownloadCount"`                     // 插件下载次数
	CreatedAt            time.Time  `gorm:"index" json:"createdAt"`                                            // 创建时间
	UpdatedAt            time.Time  `json:"updatedAt"`                                                         // 更新时间

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (Subscription) TableName() string {
	return "subscriptions"
}
