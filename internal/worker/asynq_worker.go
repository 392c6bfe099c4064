package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/provider"
	"github.com/pluginhub/internal/queue"
	"github.com/pluginhub/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOTPEmail, c.handleOTPEmail)
	mux.HandleFunc(queue.TaskSubscriptionNotice, c.handleSubscriptionNotice)
	mux.HandleFunc(queue.TaskCommissionConfirmDue, c.handleCommissionConfirmDue)
}

func (c *Consumer) handleOTPEmail(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.NotificationService == nil {
		return nil
	}
	var payload queue.OTPEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_otp_email_unmarshal_failed", "error", err)
		return err
	}
	email := strings.TrimSpace(payload.Email)
	if email == "" || payload.Code == "" {
		logger.Debugw("worker_otp_email_skip_invalid_payload", "email", email)
		return nil
	}
	if err := c.NotificationService.SendOTPNow(email, payload.Code, payload.ExpireMinutes); err != nil {
		return skipPermanentEmailError("worker_otp_email_send_failed", email, err)
	}
	return nil
}

func (c *Consumer) handleSubscriptionNotice(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.NotificationService == nil {
		return nil
	}
	var payload queue.SubscriptionNoticePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_subscription_notice_unmarshal_failed", "error", err)
		return err
	}
	if payload.UserID == 0 || payload.Kind == "" {
		logger.Debugw("worker_subscription_notice_skip_invalid_payload", "user_id", payload.UserID, "kind", payload.Kind)
		return nil
	}
	err := c.NotificationService.SendSubscriptionNoticeNow(payload.Kind, payload.UserID, payload.StripeSubscriptionID)
	if err != nil {
		return skipPermanentEmailError("worker_subscription_notice_send_failed", payload.Kind, err)
	}
	return nil
}

func (c *Consumer) handleCommissionConfirmDue(_ context.Context, _ *asynq.Task) error {
	if c == nil || c.AffiliateService == nil {
		return nil
	}
	confirmed, err := c.AffiliateService.ConfirmDueCommissions()
	if err != nil {
		logger.Warnw("worker_commission_confirm_due_failed", "error", err)
		return err
	}
	if confirmed > 0 {
		logger.Infow("worker_commission_confirm_due_done", "confirmed", confirmed)
	}
	return nil
}

// skipPermanentEmailError 配置缺失或地址非法时不再重试
func skipPermanentEmailError(event, target string, err error) error {
	if errors.Is(err, service.ErrEmailServiceNotConfigured) || errors.Is(err, service.ErrInvalidEmail) {
		logger.Warnw(event, "target", target, "error", err, "retry", false)
		return nil
	}
	logger.Warnw(event, "target", target, "error", err, "retry", true)
	return err
}
