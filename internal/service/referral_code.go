package service

import (
	"crypto/md5"
	"regexp"
	"strconv"
	"strings"
)

const (
	referralCodeLength      = 8
	referralCodeMaxAttempts = 10
	referralCodeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var referralCodePattern = regexp.MustCompile(`^[A-Z0-9]{6,20}$`)

// ReferralCodeExists 推荐码占用检查
type ReferralCodeExists func(code string) (bool, error)

// deriveReferralCode 由用户ID与尝试序号确定性生成推荐码，首次尝试只哈希用户ID
func deriveReferralCode(userID uint, attempt int) string {
	seed := strconv.FormatUint(uint64(userID), 10)
	if attempt > 0 {
		seed += "-" + strconv.Itoa(attempt)
	}
	digest := md5.Sum([]byte(seed))

	var builder strings.Builder
	builder.Grow(referralCodeLength)
	for i := 0; i < referralCodeLength; i++ {
		builder.WriteByte(referralCodeAlphabet[int(digest[i%len(digest)])%len(referralCodeAlphabet)])
	}
	return builder.String()
}

// GenerateUniqueReferralCode 生成未被占用的推荐码，最多尝试 10 次
func GenerateUniqueReferralCode(userID uint, exists ReferralCodeExists) (string, error) {
	for attempt := 0; attempt < referralCodeMaxAttempts; attempt++ {
		code := deriveReferralCode(userID, attempt)
		taken, err := exists(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrReferralCodeExhausted
}

// NormalizeReferralCode 统一大写并校验格式，非法返回空串
func NormalizeReferralCode(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !referralCodePattern.MatchString(code) {
		return ""
	}
	return code
}
