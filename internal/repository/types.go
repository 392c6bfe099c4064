package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// AffiliateListFilter 查询推广用户列表的过滤条件
type AffiliateListFilter struct {
	Page     int
	PageSize int
	Status   string
	Search   string // 按用户邮箱模糊匹配
}

// PluginListFilter 查询插件列表的过滤条件
type PluginListFilter struct {
	Page       int
	PageSize   int
	Search     string
	PluginType string
}

// ReferralReportFilter 推广业绩报表过滤条件，起止时间均可选
type ReferralReportFilter struct {
	AffiliateID uint
	StartDate   *time.Time
	EndDate     *time.Time
}

// StatusAggregate 按状态分组的数量与金额
type StatusAggregate struct {
	Status string          `gorm:"column:status"`
	Count  int64           `gorm:"column:total_count"`
	Amount decimal.Decimal `gorm:"column:total_amount"`
}

// DailyReferralRow 按日统计的推荐数据
type DailyReferralRow struct {
	Day         string          `gorm:"column:day"`
	Count       int64           `gorm:"column:total_count"`
	Conversions int64           `gorm:"column:conversions"`
	Revenue     decimal.Decimal `gorm:"column:revenue"`
	Commission  decimal.Decimal `gorm:"column:commission"`
}
