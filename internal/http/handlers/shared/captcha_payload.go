package shared

import "strings"

// CaptchaPayloadRequest 验证码请求载荷。
type CaptchaPayloadRequest struct {
	CaptchaID   string `json:"captchaId"`
	CaptchaCode string `json:"captchaCode"`
}

// Normalize 去除首尾空白。
func (r CaptchaPayloadRequest) Normalize() (string, string) {
	return strings.TrimSpace(r.CaptchaID), strings.TrimSpace(r.CaptchaCode)
}
