package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/models"
	"github.com/pluginhub/internal/payment/stripe"
	"github.com/pluginhub/internal/repository"

	"gorm.io/gorm"
)

// StripeGateway 订阅流程依赖的 Stripe 能力
type StripeGateway interface {
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*stripe.Customer, error)
	RetrieveCustomer(ctx context.Context, customerID string) (*stripe.Customer, error)
	CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string, metadata map[string]string) (*stripe.Subscription, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*stripe.PortalSession, error)
	ParseWebhook(body []byte, signatureHeader string, now time.Time) (stripe.Event, error)
}

// 订阅通知类型
const (
	SubscriptionNoticePaymentFailed = "payment_failed"
	SubscriptionNoticeTrialWillEnd  = "trial_will_end"
)

// SubscriptionNotifier 订阅通知投递（异步队列或同步邮件）
type SubscriptionNotifier interface {
	NotifySubscription(ctx context.Context, kind string, userID uint, stripeSubscriptionID string) error
}

// SubscriptionOptions 订阅服务配置
type SubscriptionOptions struct {
	Prices          map[string]string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// SubscriptionService 订阅与授权业务服务
type SubscriptionService struct {
	repo     repository.SubscriptionRepository
	userRepo repository.UserRepository
	gateway  StripeGateway
	notifier SubscriptionNotifier
	options  SubscriptionOptions
	nowFunc  func() time.Time
}

// NewSubscriptionService 创建订阅服务
func NewSubscriptionService(
	repo repository.SubscriptionRepository,
	userRepo repository.UserRepository,
	gateway StripeGateway,
	notifier SubscriptionNotifier,
	options SubscriptionOptions,
) *SubscriptionService {
	return &SubscriptionService{
		repo:     repo,
		userRepo: userRepo,
		gateway:  gateway,
		notifier: notifier,
		options:  options,
		nowFunc:  time.Now,
	}
}

// CheckoutSessionInput 创建结账会话输入
type CheckoutSessionInput struct {
	UserID     uint
	Plan       string
	SuccessURL string
	CancelURL  string
}

// CheckoutSessionResult 结账会话
type CheckoutSessionResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

func (s *SubscriptionService) priceFor(plan string) (string, error) {
	if !constants.IsValidSubscriptionPlan(plan) {
		return "", ErrSubscriptionPlanInvalid
	}
	priceID := strings.TrimSpace(s.options.Prices[plan])
	if priceID == "" {
		return "", fmt.Errorf("%w: %s", ErrSubscriptionPriceUnset, plan)
	}
	return priceID, nil
}

func (s *SubscriptionService) planForPrice(priceID string) string {
	for plan, configured := range s.options.Prices {
		if strings.TrimSpace(configured) == priceID && priceID != "" {
			return plan
		}
	}
	return ""
}

// CreateCheckoutSession 为用户创建订阅结账会话，本地不落库
func (s *SubscriptionService) CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (*CheckoutSessionResult, error) {
	plan := strings.ToLower(strings.TrimSpace(input.Plan))
	priceID, err := s.priceFor(plan)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(input.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	customerID, err := s.resolveCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	successURL := firstNonEmpty(input.SuccessURL, s.options.SuccessURL)
	cancelURL := firstNonEmpty(input.CancelURL, s.options.CancelURL)
	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutSessionParams{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Metadata: map[string]string{
			"userId": strconv.FormatUint(uint64(user.ID), 10),
			"plan":   plan,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	logger.Infow("subscription_checkout_created", "user_id", user.ID, "plan", plan, "session_id", session.ID)
	return &CheckoutSessionResult{SessionID: session.ID, URL: session.URL}, nil
}

// resolveCustomer 复用最近订阅的客户，失效或不存在时新建
func (s *SubscriptionService) resolveCustomer(ctx context.Context, user *models.User) (string, error) {
	latest, err := s.repo.GetLatestWithCustomerByUser(user.ID)
	if err != nil {
		return "", err
	}
	if latest != nil {
		customer, err := s.gateway.RetrieveCustomer(ctx, latest.StripeCustomerID)
		if err == nil && customer != nil && !customer.Deleted {
			return customer.ID, nil
		}
		logger.Warnw("stripe_customer_reuse_failed", "user_id", user.ID, "customer_id", latest.StripeCustomerID, "error", err)
	}
	customer, err := s.gateway.CreateCustomer(ctx, user.Email, map[string]string{
		"userId": strconv.FormatUint(uint64(user.ID), 10),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	return customer.ID, nil
}

// CreateSubscriptionRecord 按 Stripe 订阅ID幂等写入，仅首次创建时生成产品密钥
func (s *SubscriptionService) CreateSubscriptionRecord(sub *stripe.Subscription, userID uint) (*models.Subscription, error) {
	if sub == nil || strings.TrimSpace(sub.ID) == "" {
		return nil, ErrInvalidInput
	}
	if userID == 0 {
		return nil, ErrSubscriptionUserMissing
	}
	plan := strings.ToLower(strings.TrimSpace(sub.Metadata["plan"]))
	if plan == "" {
		plan = s.planForPrice(sub.PriceID())
	}
	if plan == "" {
		plan = constants.SubscriptionPlanMonthly
	}

	var record *models.Subscription
	err := s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetByStripeSubscriptionID(sub.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			updates := subscriptionUpdates(sub, s.nowFunc())
			updates["stripe_customer_id"] = sub.Customer.String()
			updates["plan"] = plan
			updates = keepCanceled(existing, updates)
			if err := repo.UpdateFields(existing.ID, updates); err != nil {
				return err
			}
			record, err = repo.GetByStripeSubscriptionID(sub.ID)
			return err
		}

		productKey, err := generateUniqueProductKey(repo.ExistsByProductKey)
		if err != nil {
			return err
		}
		record = &models.Subscription{
			UserID:               userID,
			StripeCustomerID:     sub.Customer.String(),
			StripeSubscriptionID: sub.ID,
			StripePriceID:        sub.PriceID(),
			Status:               normalizeSubscriptionStatus(sub.Status),
			Plan:                 plan,
			ProductKey:           productKey,
			CurrentPeriodStart:   unixTimePtr(sub.PeriodStart()),
			CurrentPeriodEnd:     unixTimePtr(sub.PeriodEnd()),
			TrialStart:           unixTimePtr(sub.TrialStart),
			TrialEnd:             unixTimePtr(sub.TrialEnd),
			CanceledAt:           unixTimePtr(sub.CanceledAt),
			CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		}
		return repo.Create(record)
	})
	if err != nil {
		if isUniqueViolation(err) {
			// 并发重复投递，另一请求已写入
			return s.repo.GetByStripeSubscriptionID(sub.ID)
		}
		return nil, err
	}
	logger.Infow("subscription_record_saved", "user_id", userID, "stripe_subscription_id", sub.ID, "status", record.Status)
	return record, nil
}

// UpdateSubscriptionRecord 同步订阅状态，本地不存在时记录日志并返回 nil
func (s *SubscriptionService) UpdateSubscriptionRecord(sub *stripe.Subscription) (*models.Subscription, error) {
	if sub == nil || strings.TrimSpace(sub.ID) == "" {
		return nil, ErrInvalidInput
	}
	existing, err := s.repo.GetByStripeSubscriptionID(sub.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		logger.Warnw("subscription_update_missing_record", "stripe_subscription_id", sub.ID, "status", sub.Status)
		return nil, nil
	}
	updates := subscriptionUpdates(sub, s.nowFunc())
	if plan := s.planForPrice(sub.PriceID()); plan != "" {
		updates["plan"] = plan
	}
	updates = keepCanceled(existing, updates)
	if err := s.repo.UpdateFields(existing.ID, updates); err != nil {
		return nil, err
	}
	return s.repo.GetByStripeSubscriptionID(sub.ID)
}

func subscriptionUpdates(sub *stripe.Subscription, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"status":               normalizeSubscriptionStatus(sub.Status),
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"updated_at":           now,
	}
	if priceID := sub.PriceID(); priceID != "" {
		updates["stripe_price_id"] = priceID
	}
	if start := unixTimePtr(sub.PeriodStart()); start != nil {
		updates["current_period_start"] = *start
	}
	if end := unixTimePtr(sub.PeriodEnd()); end != nil {
		updates["current_period_end"] = *end
	}
	if trialStart := unixTimePtr(sub.TrialStart); trialStart != nil {
		updates["trial_start"] = *trialStart
	}
	if trialEnd := unixTimePtr(sub.TrialEnd); trialEnd != nil {
		updates["trial_end"] = *trialEnd
	}
	if canceledAt := unixTimePtr(sub.CanceledAt); canceledAt != nil {
		updates["canceled_at"] = *canceledAt
	}
	return updates
}

// keepCanceled canceled 为终态：迟到或重复投递的事件只补齐空字段，不改状态
func keepCanceled(existing *models.Subscription, updates map[string]interface{}) map[string]interface{} {
	if existing == nil || existing.Status != constants.SubscriptionStatusCanceled {
		return updates
	}
	if updates["status"] != constants.SubscriptionStatusCanceled {
		logger.Infow("subscription_canceled_keep_status",
			"stripe_subscription_id", existing.StripeSubscriptionID,
			"incoming_status", updates["status"],
		)
	}
	delete(updates, "status")
	delete(updates, "cancel_at_period_end")
	filled := map[string]bool{
		"canceled_at":          existing.CanceledAt != nil,
		"current_period_start": existing.CurrentPeriodStart != nil,
		"current_period_end":   existing.CurrentPeriodEnd != nil,
		"trial_start":          existing.TrialStart != nil,
		"trial_end":            existing.TrialEnd != nil,
		"stripe_price_id":      existing.StripePriceID != "",
		"stripe_customer_id":   existing.StripeCustomerID != "",
		"plan":                 existing.Plan != "",
	}
	for field, set := range filled {
		if set {
			delete(updates, field)
		}
	}
	return updates
}

// HandleWebhook 验签并分发 Stripe 事件，验签失败时不处理任何事件
func (s *SubscriptionService) HandleWebhook(ctx context.Context, body []byte, signatureHeader string) error {
	event, err := s.gateway.ParseWebhook(body, signatureHeader, s.nowFunc())
	if err != nil {
		if errors.Is(err, stripe.ErrSignatureInvalid) {
			return fmt.Errorf("%w: %v", ErrWebhookSignature, err)
		}
		if errors.Is(err, stripe.ErrResponseInvalid) {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return err
	}

	switch typed := event.(type) {
	case *stripe.CheckoutSessionEvent:
		logger.Infow("stripe_checkout_completed",
			"event_id", typed.ID,
			"session_id", typed.Session.ID,
			"subscription_id", typed.Session.Subscription.String(),
			"user_id", typed.Session.Metadata["userId"],
		)
		return nil
	case *stripe.SubscriptionEvent:
		return s.handleSubscriptionEvent(ctx, typed)
	case *stripe.InvoiceEvent:
		return s.handleInvoiceEvent(ctx, typed)
	default:
		logger.Infow("stripe_webhook_unhandled", "event_id", event.EventID(), "event_type", event.EventType())
		return nil
	}
}

func (s *SubscriptionService) handleSubscriptionEvent(ctx context.Context, event *stripe.SubscriptionEvent) error {
	sub := &event.Subscription
	switch event.Type {
	case stripe.EventSubscriptionCreated:
		userID, err := parseMetadataUserID(sub.Metadata)
		if err != nil {
			// 非本站结账创建的订阅（如后台手工创建）无法归属用户，忽略避免重试
			logger.Warnw("stripe_subscription_missing_user", "event_id", event.ID, "stripe_subscription_id", sub.ID, "error", err)
			return nil
		}
		_, err = s.CreateSubscriptionRecord(sub, userID)
		return err
	case stripe.EventSubscriptionUpdated:
		_, err := s.UpdateSubscriptionRecord(sub)
		return err
	case stripe.EventSubscriptionDeleted:
		return s.markCanceled(sub.ID)
	case stripe.EventSubscriptionTrialWillEnd:
		logger.Infow("stripe_trial_will_end", "event_id", event.ID, "stripe_subscription_id", sub.ID)
		return s.notify(ctx, SubscriptionNoticeTrialWillEnd, sub.ID)
	default:
		logger.Infow("stripe_webhook_unhandled", "event_id", event.ID, "event_type", event.Type)
		return nil
	}
}

func (s *SubscriptionService) handleInvoiceEvent(ctx context.Context, event *stripe.InvoiceEvent) error {
	subscriptionID := event.Invoice.SubscriptionID()
	if subscriptionID == "" {
		logger.Infow("stripe_invoice_without_subscription", "event_id", event.ID, "invoice_id", event.Invoice.ID)
		return nil
	}
	switch event.Type {
	case stripe.EventInvoicePaymentSucceeded:
		sub, err := s.gateway.RetrieveSubscription(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPaymentProvider, err)
		}
		_, err = s.UpdateSubscriptionRecord(sub)
		return err
	case stripe.EventInvoicePaymentFailed:
		existing, err := s.repo.GetByStripeSubscriptionID(subscriptionID)
		if err != nil {
			return err
		}
		if existing == nil {
			logger.Warnw("subscription_update_missing_record", "stripe_subscription_id", subscriptionID, "event_type", event.Type)
			return nil
		}
		if existing.Status == constants.SubscriptionStatusCanceled {
			logger.Infow("subscription_canceled_keep_status", "stripe_subscription_id", subscriptionID, "event_type", event.Type)
			return nil
		}
		if err := s.repo.UpdateFields(existing.ID, map[string]interface{}{
			"status":     constants.SubscriptionStatusPastDue,
			"updated_at": s.nowFunc(),
		}); err != nil {
			return err
		}
		logger.Warnw("subscription_payment_failed", "user_id", existing.UserID, "stripe_subscription_id", subscriptionID)
		return s.notify(ctx, SubscriptionNoticePaymentFailed, subscriptionID)
	default:
		logger.Infow("stripe_webhook_unhandled", "event_id", event.ID, "event_type", event.Type)
		return nil
	}
}

func (s *SubscriptionService) markCanceled(stripeSubscriptionID string) error {
	existing, err := s.repo.GetByStripeSubscriptionID(stripeSubscriptionID)
	if err != nil {
		return err
	}
	if existing == nil {
		logger.Warnw("subscription_update_missing_record", "stripe_subscription_id", stripeSubscriptionID, "status", constants.SubscriptionStatusCanceled)
		return nil
	}
	if existing.Status == constants.SubscriptionStatusCanceled && existing.CanceledAt != nil {
		return nil
	}
	now := s.nowFunc()
	return s.repo.UpdateFields(existing.ID, map[string]interface{}{
		"status":      constants.SubscriptionStatusCanceled,
		"canceled_at": now,
		"updated_at":  now,
	})
}

func (s *SubscriptionService) notify(ctx context.Context, kind, stripeSubscriptionID string) error {
	if s.notifier == nil {
		return nil
	}
	existing, err := s.repo.GetByStripeSubscriptionID(stripeSubscriptionID)
	if err != nil || existing == nil {
		return err
	}
	if err := s.notifier.NotifySubscription(ctx, kind, existing.UserID, stripeSubscriptionID); err != nil {
		logger.Warnw("subscription_notify_failed", "kind", kind, "user_id", existing.UserID, "error", err)
	}
	return nil
}

// GetActiveSubscription 获取用户当前有效订阅
func (s *SubscriptionService) GetActiveSubscription(userID uint) (*models.Subscription, error) {
	sub, err := s.repo.GetActiveByUser(userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// ListSubscriptions 获取用户全部订阅记录
func (s *SubscriptionService) ListSubscriptions(userID uint) ([]models.Subscription, error) {
	rows, err := s.repo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.Subscription{}
	}
	return rows, nil
}

// GetByProductKey 按产品密钥获取订阅
func (s *SubscriptionService) GetByProductKey(productKey string) (*models.Subscription, error) {
	sub, err := s.repo.GetByProductKey(normalizeProductKey(productKey))
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// ValidateProductKey 校验产品密钥
func (s *SubscriptionService) ValidateProductKey(productKey string) (*ProductKeyValidation, error) {
	key := normalizeProductKey(productKey)
	if !IsProductKeyFormat(key) {
		return evaluateProductKey(nil, s.nowFunc()), nil
	}
	sub, err := s.repo.GetByProductKey(key)
	if err != nil {
		return nil, err
	}
	return evaluateProductKey(sub, s.nowFunc()), nil
}

// CheckExpiration 产品密钥到期提醒
func (s *SubscriptionService) CheckExpiration(productKey string) (*ExpirationWarning, error) {
	sub, err := s.GetByProductKey(productKey)
	if err != nil {
		return nil, err
	}
	return evaluateExpiration(sub, s.nowFunc()), nil
}

// RecordDownload 密钥有效时累加插件下载次数
func (s *SubscriptionService) RecordDownload(productKey string) (*ProductKeyValidation, error) {
	key := normalizeProductKey(productKey)
	if !IsProductKeyFormat(key) {
		return evaluateProductKey(nil, s.nowFunc()), ErrProductKeyInvalid
	}
	sub, err := s.repo.GetByProductKey(key)
	if err != nil {
		return nil, err
	}
	result := evaluateProductKey(sub, s.nowFunc())
	if !result.IsValid {
		return result, ErrProductKeyInvalid
	}
	if err := s.repo.IncrementDownloadCount(sub.ID); err != nil {
		return nil, err
	}
	return result, nil
}

// CancelSubscription 用户主动取消当前订阅
func (s *SubscriptionService) CancelSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	current, err := s.GetActiveSubscription(userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gateway.CancelSubscription(ctx, current.StripeSubscriptionID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	if err := s.markCanceled(current.StripeSubscriptionID); err != nil {
		return nil, err
	}
	logger.Infow("subscription_canceled_by_user", "user_id", userID, "stripe_subscription_id", current.StripeSubscriptionID)
	return s.repo.GetByStripeSubscriptionID(current.StripeSubscriptionID)
}

// CreateBillingPortal 生成账单自助页面
func (s *SubscriptionService) CreateBillingPortal(ctx context.Context, userID uint, returnURL string) (string, error) {
	latest, err := s.repo.GetLatestWithCustomerByUser(userID)
	if err != nil {
		return "", err
	}
	if latest == nil {
		return "", ErrSubscriptionNotFound
	}
	session, err := s.gateway.CreateBillingPortalSession(ctx, latest.StripeCustomerID, firstNonEmpty(returnURL, s.options.PortalReturnURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	return session.URL, nil
}

// ChangePlan 切换当前订阅的套餐
func (s *SubscriptionService) ChangePlan(ctx context.Context, userID uint, newPlan string) (*models.Subscription, error) {
	plan := strings.ToLower(strings.TrimSpace(newPlan))
	priceID, err := s.priceFor(plan)
	if err != nil {
		return nil, err
	}
	current, err := s.GetActiveSubscription(userID)
	if err != nil {
		return nil, err
	}
	if current.Plan == plan {
		return current, nil
	}
	remote, err := s.gateway.RetrieveSubscription(ctx, current.StripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	item := remote.FirstItem()
	if item == nil {
		return nil, fmt.Errorf("%w: subscription has no items", ErrPaymentProvider)
	}
	updated, err := s.gateway.UpdateSubscriptionPrice(ctx, remote.ID, item.ID, priceID, map[string]string{"plan": plan})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	if _, err := s.UpdateSubscriptionRecord(updated); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateFields(current.ID, map[string]interface{}{"plan": plan}); err != nil {
		return nil, err
	}
	logger.Infow("subscription_plan_changed", "user_id", userID, "from", current.Plan, "to", plan)
	return s.repo.GetByStripeSubscriptionID(current.StripeSubscriptionID)
}

func parseMetadataUserID(metadata map[string]string) (uint, error) {
	raw := strings.TrimSpace(metadata["userId"])
	if raw == "" {
		return 0, ErrSubscriptionUserMissing
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrSubscriptionUserMissing
	}
	return uint(id), nil
}

func normalizeSubscriptionStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if constants.IsValidSubscriptionStatus(status) {
		return status
	}
	return constants.SubscriptionStatusIncomplete
}

func unixTimePtr(seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
