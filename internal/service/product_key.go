package service

import (
	"crypto/rand"
	"math"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/models"
)

const (
	productKeyAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	productKeyGroups      = 4
	productKeyGroupSize   = 4
	productKeyMaxAttempts = 10
	expirationWarningDays = 7
)

var productKeyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// GenerateProductKey 生成 XXXX-XXXX-XXXX-XXXX 格式的产品密钥
func GenerateProductKey() (string, error) {
	alphabetSize := big.NewInt(int64(len(productKeyAlphabet)))
	var builder strings.Builder
	builder.Grow(productKeyGroups*productKeyGroupSize + productKeyGroups - 1)
	for group := 0; group < productKeyGroups; group++ {
		if group > 0 {
			builder.WriteByte('-')
		}
		for i := 0; i < productKeyGroupSize; i++ {
			// rand.Int 在 [0, n) 上均匀分布，无取模偏差
			idx, err := rand.Int(rand.Reader, alphabetSize)
			if err != nil {
				return "", err
			}
			builder.WriteByte(productKeyAlphabet[idx.Int64()])
		}
	}
	return builder.String(), nil
}

// IsProductKeyFormat 校验产品密钥格式
func IsProductKeyFormat(key string) bool {
	return productKeyPattern.MatchString(key)
}

func normalizeProductKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func generateUniqueProductKey(exists func(string) (bool, error)) (string, error) {
	for attempt := 0; attempt < productKeyMaxAttempts; attempt++ {
		key, err := GenerateProductKey()
		if err != nil {
			return "", err
		}
		taken, err := exists(key)
		if err != nil {
			return "", err
		}
		if !taken {
			return key, nil
		}
	}
	return "", ErrProductKeyExhausted
}

// ProductKeyValidation 产品密钥校验结果
type ProductKeyValidation struct {
	IsValid          bool       `json:"isValid"`
	Status           string     `json:"status"`
	WillCancel       bool       `json:"willCancel"`
	Plan             string     `json:"plan,omitempty"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	Email            string     `json:"email,omitempty"`
}

// ExpirationWarning 到期提醒
type ExpirationWarning struct {
	WillExpireSoon      bool       `json:"willExpireSoon"`
	DaysUntilExpiration int        `json:"daysUntilExpiration"`
	ExpirationDate      *time.Time `json:"expirationDate,omitempty"`
}

// evaluateProductKey 根据订阅记录判断密钥是否可用
func evaluateProductKey(subscription *models.Subscription, now time.Time) *ProductKeyValidation {
	if subscription == nil {
		return &ProductKeyValidation{IsValid: false, Status: "Product key not found"}
	}
	result := &ProductKeyValidation{
		Plan:             subscription.Plan,
		CurrentPeriodEnd: subscription.CurrentPeriodEnd,
	}
	if subscription.User != nil {
		result.Email = subscription.User.Email
	}
	if subscription.CurrentPeriodEnd != nil && subscription.CurrentPeriodEnd.Before(now) {
		result.Status = "Expired"
		return result
	}
	if subscription.Status != constants.SubscriptionStatusActive && subscription.Status != constants.SubscriptionStatusTrialing {
		result.Status = "Inactive"
		return result
	}
	result.IsValid = true
	result.WillCancel = subscription.CancelAtPeriodEnd
	result.Status = "Active"
	if result.WillCancel {
		result.Status = "Active (Canceling at period end)"
	}
	return result
}

// evaluateExpiration 剩余天数向上取整，0 < 天数 <= 7 时提醒
func evaluateExpiration(subscription *models.Subscription, now time.Time) *ExpirationWarning {
	if subscription == nil || subscription.CurrentPeriodEnd == nil {
		return &ExpirationWarning{}
	}
	remaining := subscription.CurrentPeriodEnd.Sub(now)
	days := int(math.Ceil(remaining.Hours() / 24))
	return &ExpirationWarning{
		WillExpireSoon:      days > 0 && days <= expirationWarningDays,
		DaysUntilExpiration: days,
		ExpirationDate:      subscription.CurrentPeriodEnd,
	}
}
