package constants

// 用户类型常量
const (
	UserTypeAdmin = 0
	UserTypeUser  = 1
)

// 用户角色（用于权限策略）
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// 登录方式常量
const (
	AuthProviderGoogle = "google"
	AuthProviderApple  = "apple"
	AuthProviderCustom = "custom"
)

// 推广用户状态常量
const (
	AffiliateStatusPending   = "pending"
	AffiliateStatusApproved  = "approved"
	AffiliateStatusSuspended = "suspended"
	AffiliateStatusRejected  = "rejected"
)

// 推广结算方式常量
const (
	AffiliatePaymentPaypal = "paypal"
	AffiliatePaymentBank   = "bank"
	AffiliatePaymentStripe = "stripe"
)

// 推荐记录状态常量
const (
	ReferralStatusPending   = "pending"
	ReferralStatusConverted = "converted"
	ReferralStatusCancelled = "cancelled"
)

// 佣金状态常量
const (
	CommissionStatusPending   = "pending"
	CommissionStatusApproved  = "approved"
	CommissionStatusPaid      = "paid"
	CommissionStatusCancelled = "cancelled"
)

// 订阅状态常量
const (
	SubscriptionStatusActive            = "active"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
)

// 订阅套餐常量
const (
	SubscriptionPlanSingle  = "single"
	SubscriptionPlanMonthly = "monthly"
	SubscriptionPlanYearly  = "yearly"
)

// 插件类型与平台常量
const (
	PluginTypePremierePro  = "premierepro"
	PluginTypeAfterEffects = "aftereffects"
	PlatformWindows        = "windows"
	PlatformMac            = "mac"
)

// 推荐码传递字段
const (
	ReferralCookieName = "referralCode"
	ReferralHeaderName = "X-Referral-Code"
)

// IsValidAffiliateStatus 校验推广状态
func IsValidAffiliateStatus(status string) bool {
	switch status {
	case AffiliateStatusPending, AffiliateStatusApproved, AffiliateStatusSuspended, AffiliateStatusRejected:
		return true
	}
	return false
}

// IsValidAffiliatePayment 校验结算方式
func IsValidAffiliatePayment(method string) bool {
	switch method {
	case AffiliatePaymentPaypal, AffiliatePaymentBank, AffiliatePaymentStripe:
		return true
	}
	return false
}

// IsValidSubscriptionPlan 校验订阅套餐
func IsValidSubscriptionPlan(plan string) bool {
	switch plan {
	case SubscriptionPlanSingle, SubscriptionPlanMonthly, SubscriptionPlanYearly:
		return true
	}
	return false
}

// IsValidSubscriptionStatus 校验订阅状态
func IsValidSubscriptionStatus(status string) bool {
	switch status {
	case SubscriptionStatusActive, SubscriptionStatusCanceled, SubscriptionStatusPastDue,
		SubscriptionStatusUnpaid, SubscriptionStatusTrialing, SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired:
		return true
	}
	return false
}

// IsValidAuthProvider 校验登录方式
func IsValidAuthProvider(provider string) bool {
	switch provider {
	case AuthProviderGoogle, AuthProviderApple, AuthProviderCustom:
		return true
	}
	return false
}

// IsValidUserType 校验用户类型
func IsValidUserType(userType int) bool {
	return userType == UserTypeAdmin || userType == UserTypeUser
}

// 异步队列与任务类型
const (
	QueueDefault             = "default"
	TaskOTPEmail             = "auth:otp_email"
	TaskSubscriptionNotice   = "subscription:notice"
	TaskCommissionConfirmDue = "affiliate:commission_confirm_due"
)
