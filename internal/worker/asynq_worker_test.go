package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pluginhub/internal/config"
	"github.com/pluginhub/internal/provider"
	"github.com/pluginhub/internal/service"

	"github.com/hibiken/asynq"
)

type countingConfirmer struct {
	calls atomic.Int64
	err   error
}

func (c *countingConfirmer) ConfirmDueCommissions() (int64, error) {
	c.calls.Add(1)
	return 0, c.err
}

func TestSkipPermanentEmailError(t *testing.T) {
	if err := skipPermanentEmailError("event", "a@example.com", service.ErrEmailServiceNotConfigured); err != nil {
		t.Fatalf("not configured should not retry, got %v", err)
	}
	if err := skipPermanentEmailError("event", "bad", service.ErrInvalidEmail); err != nil {
		t.Fatalf("invalid email should not retry, got %v", err)
	}
	transient := errors.New("smtp timeout")
	if err := skipPermanentEmailError("event", "a@example.com", transient); !errors.Is(err, transient) {
		t.Fatalf("transient error should be returned, got %v", err)
	}
}

func TestHandleOTPEmailSkipsInvalidPayload(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})
	task := asynq.NewTask("auth:otp_email", []byte(`{"email":"","code":""}`))
	if err := consumer.handleOTPEmail(context.Background(), task); err != nil {
		t.Fatalf("expected nil for empty payload, got %v", err)
	}
	broken := asynq.NewTask("auth:otp_email", []byte(`{`))
	consumer.NotificationService = &service.NotificationService{}
	if err := consumer.handleOTPEmail(context.Background(), broken); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestNewServiceRequiresWork(t *testing.T) {
	cfg := &config.Config{}
	if _, err := NewService(cfg, NewConsumer(&provider.Container{})); err == nil {
		t.Fatalf("expected error when queue and auto confirm are both disabled")
	}
	cfg.Affiliate.AutoConfirm = true
	if _, err := NewService(cfg, NewConsumer(&provider.Container{})); err == nil {
		t.Fatalf("expected error without affiliate service")
	}
}

func TestCommissionConfirmLoopRunsUntilCancel(t *testing.T) {
	confirmer := &countingConfirmer{err: errors.New("db down")}
	svc := &Service{
		name:        "worker",
		confirmer:   confirmer,
		interval:    10 * time.Millisecond,
		autoConfirm: true,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for confirmer.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
	if confirmer.calls.Load() < 2 {
		t.Fatalf("expected repeated confirm runs, got %d", confirmer.calls.Load())
	}
}
