package cache

import (
	"context"
	"strings"
	"time"
)

const affiliateCodeCacheTTL = 5 * time.Minute

// AffiliateCodeEntry 推广码解析结果；Approved 为 false 时表示码无效或未审核
type AffiliateCodeEntry struct {
	AffiliateID    uint   `json:"affiliate_id"`
	UserID         uint   `json:"user_id"`
	ReferralCode   string `json:"referral_code"`
	CommissionRate string `json:"commission_rate"`
	Approved       bool   `json:"approved"`
}

func affiliateCodeKey(code string) string {
	return "affiliate:code:" + strings.ToUpper(strings.TrimSpace(code))
}

// GetAffiliateCode 读取推广码缓存
func GetAffiliateCode(ctx context.Context, code string) (*AffiliateCodeEntry, bool, error) {
	if strings.TrimSpace(code) == "" {
		return nil, false, nil
	}
	var entry AffiliateCodeEntry
	hit, err := GetJSON(ctx, affiliateCodeKey(code), &entry)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &entry, true, nil
}

// SetAffiliateCode 写入推广码缓存
func SetAffiliateCode(ctx context.Context, code string, entry *AffiliateCodeEntry) error {
	if entry == nil || strings.TrimSpace(code) == "" {
		return nil
	}
	return SetJSON(ctx, affiliateCodeKey(code), entry, affiliateCodeCacheTTL)
}

// DelAffiliateCode 删除推广码缓存
func DelAffiliateCode(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	return Del(ctx, affiliateCodeKey(code))
}
