package main

import (
	"errors"
	"time"

	"github.com/pluginhub/internal/config"
	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/models"
	"github.com/pluginhub/internal/repository"
	"github.com/pluginhub/internal/service"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(nil); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	plugins := service.NewPluginService(repository.NewPluginRepository(models.DB))
	released := time.Now().AddDate(0, -1, 0).Format("2006-01-02")

	// 演示插件目录
	seeds := []service.CreatePluginInput{
		{
			Name:        "Auto Captions",
			Description: "Generate and style captions directly on the timeline.",
			IconURL:     "https://cdn.example.com/plugins/auto-captions/icon.png",
			ImageURL:    "https://cdn.example.com/plugins/auto-captions/cover.jpg",
			SubDescriptions: []service.SubDescription{
				{Title: "Speech to text", Description: "Transcribes dialogue in more than 20 languages."},
				{Title: "Templates", Description: "Ships with animated caption presets."},
			},
			PluginType:            constants.PluginTypePremierePro,
			CurrentWindowsVersion: "1.4.0",
			CurrentMacOsVersion:   "1.4.0",
			Versions: []service.PluginVersionInput{
				{Platform: constants.PlatformWindows, URL: "https://cdn.example.com/plugins/auto-captions/1.4.0/win.zip", Size: 48 << 20, Version: "1.4.0", ReleaseDate: released},
				{Platform: constants.PlatformMac, URL: "https://cdn.example.com/plugins/auto-captions/1.4.0/mac.zip", Size: 52 << 20, Version: "1.4.0", ReleaseDate: released},
			},
		},
		{
			Name:        "Motion Toolkit",
			Description: "Keyframe easing, bounce and overshoot presets for compositions.",
			IconURL:     "https://cdn.example.com/plugins/motion-toolkit/icon.png",
			ImageURL:    "https://cdn.example.com/plugins/motion-toolkit/cover.webp",
			SubDescriptions: []service.SubDescription{
				{Title: "Easing curves", Description: "Edit bezier curves with live preview."},
			},
			PluginType:            constants.PluginTypeAfterEffects,
			CurrentWindowsVersion: "2.1.3",
			CurrentMacOsVersion:   "2.1.2",
			Versions: []service.PluginVersionInput{
				{Platform: constants.PlatformWindows, URL: "https://cdn.example.com/plugins/motion-toolkit/2.1.3/win.zip", Size: 30 << 20, Version: "2.1.3", ReleaseDate: released},
				{Platform: constants.PlatformMac, URL: "https://cdn.example.com/plugins/motion-toolkit/2.1.2/mac.zip", Size: 31 << 20, Version: "2.1.2", ReleaseDate: released},
			},
		},
	}

	for _, seed := range seeds {
		plugin, err := plugins.CreateWithVersions(seed)
		switch {
		case errors.Is(err, service.ErrPluginNameExists):
			stdLog.Printf("Plugin already exists: %s", seed.Name)
		case err != nil:
			stdLog.Printf("Failed to create plugin %s: %v", seed.Name, err)
		default:
			stdLog.Printf("Created plugin: %s (id=%d, versions=%d)", plugin.Name, plugin.ID, len(plugin.Versions))
		}
	}

	if adminID, err := models.InitDefaultAdmin(models.DB, cfg.Bootstrap.AdminEmail); err != nil {
		stdLog.Printf("Failed to init admin: %v", err)
	} else if adminID != 0 {
		stdLog.Printf("Admin user ready: %s (id=%d)", cfg.Bootstrap.AdminEmail, adminID)
	}

	stdLog.Println("Seed completed")
}
