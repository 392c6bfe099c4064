package models

import "time"

// Commission 佣金记录，与 Referral 一一对应
type Commission struct {
	ID            uint       `gorm:"primarykey" json:"id"`                                // 主键
	AffiliateID   uint       `gorm:"not null;index" json:"affiliateId"`                   // 推广用户ID
	ReferralID    uint       `gorm:"not null;uniqueIndex" json:"referralId"`              // 推荐记录ID
	Amount        Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"` // 佣金金额
	Status        string     `gorm:"type:varchar(20);not null;index" json:"status"`       // 状态
	PaidAt        *time.Time `json:"paidAt,omitempty"`                                    // 打款时间
	PaymentMethod string     `gorm:"type:varchar(20)" json:"paymentMethod,omitempty"`     // 打款方式
	TransactionID string     `gorm:"type:varchar(128)" json:"transactionId,omitempty"`    // 打款流水号
	Notes         string     `gorm:"type:text" json:"notes,omitempty"`                    // 备注
	CreatedAt     time.Time  `gorm:"index" json:"createdAt"`                              // 创建时间
	UpdatedAt     time.Time  `json:"updatedAt"`                                           // 更新时间

	Referral *Referral `gorm:"foreignKey:ReferralID" json:"referral,omitempty"`
}

// TableName 指定表名
func (Commission) TableName() string {
	return "commissions"
}
