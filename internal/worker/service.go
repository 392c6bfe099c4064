package worker

import (
	"context"
	"errors"
	"time"

	"github.com/pluginhub/internal/config"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	commissionConfirmInterval = time.Hour
)

// CommissionConfirmer 到期佣金确认
type CommissionConfirmer interface {
	ConfirmDueCommissions() (int64, error)
}

// Service 异步队列服务
type Service struct {
	name        string
	server      *asynq.Server
	mux         *asynq.ServeMux
	confirmer   CommissionConfirmer
	interval    time.Duration
	autoConfirm bool
}

// NewService 创建异步队列服务
// 队列关闭时仅运行佣金确认循环，两者都未启用时返回错误
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	svc := &Service{
		name:        "worker",
		interval:    commissionConfirmInterval,
		autoConfirm: cfg.Affiliate.AutoConfirm,
	}
	if consumer.AffiliateService != nil {
		svc.confirmer = consumer.AffiliateService
	}
	if cfg.Queue.Enabled {
		opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
		svc.server = asynq.NewServer(opt, serverCfg)
		svc.mux = asynq.NewServeMux()
		consumer.Register(svc.mux)
	}
	if svc.server == nil && !svc.confirmLoopEnabled() {
		return nil, errors.New("worker has nothing to run")
	}
	return svc, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("worker not initialized")
	}
	if s.confirmLoopEnabled() {
		go s.runCommissionConfirmLoop(ctx)
	}
	if s.server == nil {
		<-ctx.Done()
		return nil
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

func (s *Service) confirmLoopEnabled() bool {
	return s.autoConfirm && s.confirmer != nil
}

func (s *Service) runCommissionConfirmLoop(ctx context.Context) {
	runOnce := func() {
		confirmed, err := s.confirmer.ConfirmDueCommissions()
		if err != nil {
			logger.Warnw("worker_commission_confirm_due_failed", "error", err)
			return
		}
		if confirmed > 0 {
			logger.Infow("worker_commission_confirm_due_done", "confirmed", confirmed)
		}
	}
	runOnce()

	interval := s.interval
	if interval <= 0 {
		interval = commissionConfirmInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
