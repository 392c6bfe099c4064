package app

import (
	"errors"

	"github.com/pluginhub/internal/config"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/models"
	"github.com/pluginhub/internal/provider"
	"github.com/pluginhub/internal/router"
	"github.com/pluginhub/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if !ValidMode(mode) {
		return nil, errors.New("unknown mode: " + mode)
	}
	opts := Options{Mode: mode}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		return nil, err
	}
	if err := ensureBootstrapAdmin(cfg, container); err != nil {
		logger.Warnw("bootstrap_admin_failed", "email", cfg.Bootstrap.AdminEmail, "error", err)
	}

	var services []Service

	// HTTP 服务
	if opts.runsHTTP() {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	// Worker 服务，all 模式下无任务可跑时跳过
	if opts.runsWorker() {
		workerService, err := worker.NewService(cfg, worker.NewConsumer(container))
		switch {
		case err == nil:
			services = append(services, workerService)
		case mode == ModeWorker:
			container.Close()
			return nil, err
		default:
			logger.Infow("worker_skipped", "reason", err.Error())
		}
	}

	if len(services) == 0 {
		container.Close()
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.onStop = container.Close
	return runner, nil
}

// ensureBootstrapAdmin 按配置邮箱初始化管理员并授予 admin 角色
func ensureBootstrapAdmin(cfg *config.Config, container *provider.Container) error {
	if cfg.Bootstrap.AdminEmail == "" || models.DB == nil {
		return nil
	}
	adminID, err := models.InitDefaultAdmin(models.DB, cfg.Bootstrap.AdminEmail)
	if err != nil || adminID == 0 {
		return err
	}
	return container.AuthzService.EnsureAdminUser(adminID)
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start", "addr", opts.Config.Server.Addr(), "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
