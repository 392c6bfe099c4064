package queue

import (
	"encoding/json"

	"github.com/pluginhub/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOTPEmail 登录验证码邮件任务
	TaskOTPEmail = constants.TaskOTPEmail
	// TaskSubscriptionNotice 订阅提醒邮件任务
	TaskSubscriptionNotice = constants.TaskSubscriptionNotice
	// TaskCommissionConfirmDue 到期佣金确认任务
	TaskCommissionConfirmDue = constants.TaskCommissionConfirmDue
)

// OTPEmailPayload 验证码邮件任务载荷
type OTPEmailPayload struct {
	Email         string `json:"email"`
	Code          string `json:"code"`
	ExpireMinutes int    `json:"expire_minutes"`
}

// SubscriptionNoticePayload 订阅提醒任务载荷
type SubscriptionNoticePayload struct {
	Kind                 string `json:"kind"`
	UserID               uint   `json:"user_id"`
	StripeSubscriptionID string `json:"stripe_subscription_id"`
}

// NewOTPEmailTask 创建验证码邮件任务
func NewOTPEmailTask(payload OTPEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOTPEmail, body), nil
}

// NewSubscriptionNoticeTask 创建订阅提醒任务
func NewSubscriptionNoticeTask(payload SubscriptionNoticePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSubscriptionNotice, body), nil
}
