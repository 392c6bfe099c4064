package service

import (
	"crypto/tls"
	"fmt"
	"html"
	"net/mail"
	"strings"

	"github.com/pluginhub/internal/config"

	"gopkg.in/gomail.v2"
)

// MailSender 邮件投递接口，测试中可替换
type MailSender interface {
	Send(msg *gomail.Message) error
}

type smtpSender struct {
	dialer *gomail.Dialer
}

func (s *smtpSender) Send(msg *gomail.Message) error {
	return s.dialer.DialAndSend(msg)
}

// EmailService 邮件发送服务
type EmailService struct {
	cfg    *config.EmailConfig
	sender MailSender
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	svc := &EmailService{cfg: cfg}
	if cfg != nil && cfg.Host != "" && cfg.Port > 0 {
		dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		dialer.SSL = cfg.UseSSL
		dialer.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
		svc.sender = &smtpSender{dialer: dialer}
	}
	return svc
}

// WithSender 替换投递实现
func (s *EmailService) WithSender(sender MailSender) *EmailService {
	s.sender = sender
	return s
}

// Configured 是否可发送邮件
func (s *EmailService) Configured() bool {
	return s != nil && s.cfg != nil && s.cfg.Enabled && s.cfg.From != "" && s.sender != nil
}

// SendOTP 发送登录验证码
func (s *EmailService) SendOTP(toEmail, code string, expireMinutes int) error {
	subject := "Your login code"
	body := fmt.Sprintf(
		"<p>Your one-time login code is <strong>%s</strong>.</p><p>It expires in %d minutes. If you did not request it, ignore this email.</p>",
		html.EscapeString(code), expireMinutes,
	)
	return s.send(toEmail, subject, body)
}

// SendSubscriptionNotice 发送订阅提醒
func (s *EmailService) SendSubscriptionNotice(toEmail, kind, plan string) error {
	var subject, body string
	switch kind {
	case SubscriptionNoticePaymentFailed:
		subject = "Payment failed for your subscription"
		body = fmt.Sprintf("<p>We could not charge your %s subscription. Please update your payment method to keep your plugins active.</p>", html.EscapeString(plan))
	case SubscriptionNoticeTrialWillEnd:
		subject = "Your trial is ending soon"
		body = fmt.Sprintf("<p>Your %s trial ends in a few days. Your subscription will start automatically unless you cancel.</p>", html.EscapeString(plan))
	default:
		return fmt.Errorf("unknown subscription notice %q", kind)
	}
	return s.send(toEmail, subject, body)
}

func (s *EmailService) send(toEmail, subject, body string) error {
	if !s.Configured() {
		return ErrEmailServiceNotConfigured
	}
	if _, err := mail.ParseAddress(toEmail); err != nil {
		return ErrInvalidEmail
	}

	msg := gomail.NewMessage()
	if name := strings.TrimSpace(s.cfg.FromName); name != "" {
		msg.SetAddressHeader("From", s.cfg.From, name)
	} else {
		msg.SetHeader("From", s.cfg.From)
	}
	msg.SetHeader("To", toEmail)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)
	if err := s.sender.Send(msg); err != nil {
		return fmt.Errorf("send email failed: %w", err)
	}
	return nil
}
