package models

import (
	"time"

	"gorm.io/datatypes"
)

// Plugin 插件
type Plugin struct {
	ID                    uint           `gorm:"primarykey" json:"id"`                               // 主键
	Name                  string         `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"` // 名称
	Description           string         `gorm:"type:text;not null" json:"description"`              // 描述
	IconURL               string         `gorm:"type:varchar(1024)" json:"iconUrl"`                  // 图标
	ImageURL              string         `gorm:"type:varchar(1024)" json:"imageUrl"`                 // 封面图
	SubDescriptions       datatypes.JSON `json:"subDescriptions"`                                    // 子描述 [{title, description}]
	PluginType            string         `gorm:"type:varchar(32);not null;index" json:"pluginType"`  // 插件类型
	CurrentWindowsVersion string         `gorm:"type:varchar(32)" json:"currentWindowsVersion"`      // 当前 Windows 版本
	CurrentMacOsVersion   string         `gorm:"type:varchar(32)" json:"currentMacOsVersion"`        // 当前 macOS 版本
	CreatedAt             time.Time      `gorm:"index" json:"createdAt"`                             // 创建时间
	UpdatedAt             time.Time      `json:"updatedAt"`                                          // 更新时间

	Versions []PluginVersion `gorm:"foreignKey:PluginID" json:"versions,omitempty"`
}

// TableName 指定表名
func (Plugin) TableName() string {
	return "plugins"
}

// PluginVersion 插件版本，(plugin_id, platform, version) 唯一
type PluginVersion struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                                                       // 主键
	PluginID    uint      `gorm:"not null;index;uniqueIndex:idx_plugin_version_unique,priority:1" json:"pluginId"`            // 插件ID
	Platform    string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_plugin_version_unique,priority:2" json:"platform"` // 平台
	Version     string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_plugin_version_unique,priority:3" json:"version"`  // 版本号
	URL         string    `gorm:"type:varchar(1024);not null" json:"url"`                                                     // 下载地址
	Size        int64     `gorm:"not null" json:"size"`                                                                       // 文件大小（字节）
	ReleaseDate time.Time `gorm:"index" json:"releaseDate"`                                                                   // 发布时间
	CreatedAt   time.Time `json:"createdAt"`                                                                                  // 创建时间
}

// TableName 指定表名
func (PluginVersion) TableName() string {
	return "plugin_versions"
}
