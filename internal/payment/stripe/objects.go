package stripe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExpandableID 可展开字段，兼容字符串 ID 与展开后的对象。
type ExpandableID string

// UnmarshalJSON 解析 "cus_xxx" 或 {"id":"cus_xxx",...}。
func (e *ExpandableID) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*e = ""
		return nil
	}
	if trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		*e = ExpandableID(strings.TrimSpace(id))
		return nil
	}
	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(trimmed, &object); err != nil {
		return err
	}
	*e = ExpandableID(strings.TrimSpace(object.ID))
	return nil
}

func (e ExpandableID) String() string {
	return string(e)
}

// Customer 客户
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Deleted  bool              `json:"deleted"`
	Metadata map[string]string `json:"metadata"`
}

// Price 价格
type Price struct {
	ID string `json:"id"`
}

// SubscriptionItem 订阅项，新版本 API 的计费周期在订阅项上
type SubscriptionItem struct {
	ID                 string `json:"id"`
	Price              Price  `json:"price"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
}

// SubscriptionItemList 订阅项列表
type SubscriptionItemList struct {
	Data []SubscriptionItem `json:"data"`
}

// Subscription 订阅
type Subscription struct {
	ID                 string               `json:"id"`
	Object             string               `json:"object"`
	Customer           ExpandableID         `json:"customer"`
	Status             string               `json:"status"`
	Metadata           map[string]string    `json:"metadata"`
	Items              SubscriptionItemList `json:"items"`
	CurrentPeriodStart int64                `json:"current_period_start"`
	CurrentPeriodEnd   int64                `json:"current_period_end"`
	TrialStart         int64                `json:"trial_start"`
	TrialEnd           int64                `json:"trial_end"`
	CanceledAt         int64                `json:"canceled_at"`
	CancelAtPeriodEnd  bool                 `json:"cancel_at_period_end"`
}

func (s *Subscription) validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: missing subscription id", ErrResponseInvalid)
	}
	if s.Object != "" && s.Object != "subscription" {
		return fmt.Errorf("%w: unexpected object %q", ErrResponseInvalid, s.Object)
	}
	return nil
}

// FirstItem 第一个订阅项
func (s *Subscription) FirstItem() *SubscriptionItem {
	if s == nil || len(s.Items.Data) == 0 {
		return nil
	}
	return &s.Items.Data[0]
}

// PriceID 第一个订阅项的价格 ID
func (s *Subscription) PriceID() string {
	if item := s.FirstItem(); item != nil {
		return item.Price.ID
	}
	return ""
}

// PeriodStart 当前周期开始（Unix 秒），优先取订阅项
func (s *Subscription) PeriodStart() int64 {
	if item := s.FirstItem(); item != nil && item.CurrentPeriodStart > 0 {
		return item.CurrentPeriodStart
	}
	return s.CurrentPeriodStart
}

// PeriodEnd 当前周期结束（Unix 秒），优先取订阅项
func (s *Subscription) PeriodEnd() int64 {
	if item := s.FirstItem(); item != nil && item.CurrentPeriodEnd > 0 {
		return item.CurrentPeriodEnd
	}
	return s.CurrentPeriodEnd
}

// CheckoutSession 结账会话
type CheckoutSession struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	URL           string            `json:"url"`
	Mode          string            `json:"mode"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	Customer      ExpandableID      `json:"customer"`
	Subscription  ExpandableID      `json:"subscription"`
	Metadata      map[string]string `json:"metadata"`
}

// Invoice 账单
type Invoice struct {
	ID            string       `json:"id"`
	Object        string       `json:"object"`
	Customer      ExpandableID `json:"customer"`
	CustomerEmail string       `json:"customer_email"`
	Subscription  ExpandableID `json:"subscription"`
	AmountDue     int64        `json:"amount_due"`
	AmountPaid    int64        `json:"amount_paid"`
	Currency      string       `json:"currency"`
	Parent        struct {
		SubscriptionDetails struct {
			Subscription ExpandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID 账单关联的订阅，兼容新旧 API 版本
func (i *Invoice) SubscriptionID() string {
	if id := i.Subscription.String(); id != "" {
		return id
	}
	return i.Parent.SubscriptionDetails.Subscription.String()
}

// PortalSession 账单自助页面
type PortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
