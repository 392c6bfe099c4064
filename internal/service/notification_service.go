package service

import (
	"context"
	"strings"

	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/queue"
	"github.com/pluginhub/internal/repository"
)

// NotificationService 邮件通知分发：队列启用时入队，否则同步发送
type NotificationService struct {
	queueClient *queue.Client
	email       *EmailService
	userRepo    repository.UserRepository
	subRepo     repository.SubscriptionRepository
}

// NewNotificationService 创建通知服务
func NewNotificationService(queueClient *queue.Client, email *EmailService, userRepo repository.UserRepository, subRepo repository.SubscriptionRepository) *NotificationService {
	return &NotificationService{
		queueClient: queueClient,
		email:       email,
		userRepo:    userRepo,
		subRepo:     subRepo,
	}
}

// DeliverOTP 投递登录验证码
func (s *NotificationService) DeliverOTP(ctx context.Context, email, code string, expireMinutes int) error {
	if s.queueClient.Enabled() {
		return s.queueClient.EnqueueOTPEmail(ctx, queue.OTPEmailPayload{
			Email:         email,
			Code:          code,
			ExpireMinutes: expireMinutes,
		})
	}
	return s.SendOTPNow(email, code, expireMinutes)
}

// SendOTPNow 同步发送验证码邮件（队列消费者同样调用）
func (s *NotificationService) SendOTPNow(email, code string, expireMinutes int) error {
	if s.email == nil {
		return ErrEmailServiceNotConfigured
	}
	return s.email.SendOTP(email, code, expireMinutes)
}

// NotifySubscription 投递订阅提醒
func (s *NotificationService) NotifySubscription(ctx context.Context, kind string, userID uint, stripeSubscriptionID string) error {
	if s.queueClient.Enabled() {
		return s.queueClient.EnqueueSubscriptionNotice(ctx, queue.SubscriptionNoticePayload{
			Kind:                 kind,
			UserID:               userID,
			StripeSubscriptionID: stripeSubscriptionID,
		})
	}
	return s.SendSubscriptionNoticeNow(kind, userID, stripeSubscriptionID)
}

// SendSubscriptionNoticeNow 同步发送订阅提醒
func (s *NotificationService) SendSubscriptionNoticeNow(kind string, userID uint, stripeSubscriptionID string) error {
	if s.email == nil || !s.email.Configured() {
		logger.Debugw("subscription_notice_skip_email_disabled", "kind", kind, "user_id", userID)
		return nil
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil || strings.TrimSpace(user.Email) == "" {
		logger.Debugw("subscription_notice_skip_user_missing", "kind", kind, "user_id", userID)
		return nil
	}
	plan := "plugin"
	if s.subRepo != nil && stripeSubscriptionID != "" {
		sub, err := s.subRepo.GetByStripeSubscriptionID(stripeSubscriptionID)
		if err != nil {
			return err
		}
		if sub != nil && sub.Plan != "" {
			plan = sub.Plan
		}
	}
	return s.email.SendSubscriptionNotice(user.Email, kind, plan)
}
