package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Affiliate 推广用户档案，一个用户至多一条
type Affiliate struct {
	ID             uint            `gorm:"primarykey" json:"id"`                                          // 主键
	UserID         uint            `gorm:"not null;uniqueIndex" json:"userId"`                            // 用户ID
	ReferralCode   string          `gorm:"type:varchar(20);not null;uniqueIndex" json:"referralCode"`     // 推荐码（大写）
	Status         string          `gorm:"type:varchar(20);not null;index" json:"status"`                 // 状态
	CommissionRate decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0.1" json:"commissionRate"` // 佣金比例（0..1）
	TotalEarnings  Money           `gorm:"type:decimal(20,2);not null;default:0" json:"totalEarnings"`    // 累计佣金
	TotalReferrals int64           `gorm:"not null;default:0" json:"totalReferrals"`                      // 累计推荐数
	AppliedAt      time.Time       `gorm:"not null" json:"appliedAt"`                                     // 申请时间
	ApprovedAt     *time.Time      `json:"approvedAt,omitempty"`                                          // 审核通过时间
	ApprovedBy     *uint           `json:"approvedBy,omitempty"`                                          // 审核管理员
	PaymentMethod  string          `gorm:"type:varchar(20)" json:"paymentMethod"`                         // 结算方式
	PaymentDetails datatypes.JSON  `json:"paymentDetails,omitempty"`                                      // 结算信息（原样保存）
	CreatedAt      time.Time       `gorm:"index" json:"createdAt"`                                        // 创建时间
	UpdatedAt      time.Time       `json:"updatedAt"`                                                     // 更新时间

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (Affiliate) TableName() string {
	return "affiliates"
}
