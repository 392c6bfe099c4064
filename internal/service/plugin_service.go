package service

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/logger"
	"github.com/pluginhub/internal/models"
	"github.com/pluginhub/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	pluginMaxVersions     = 50
	pluginMaxFileSize     = int64(10 * 1024 * 1024 * 1024)
	pluginDefaultPageSize = 10
	pluginMaxPageSize     = 100
)

var (
	semverPattern      = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)
	imageURLPattern    = regexp.MustCompile(`(?i)^https?://.*\.(?:png|jpg|jpeg|gif|svg|webp)$`)
	downloadURLPattern = regexp.MustCompile(`(?i)^https?://[^\s/$.?#].[^\s]*$`)
)

// SubDescription 插件子描述
type SubDescription struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PluginVersionInput 插件版本输入
type PluginVersionInput struct {
	Platform    string `json:"platform"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	Version     string `json:"version"`
	ReleaseDate string `json:"releaseDate"`
}

// CreatePluginInput 创建插件（含版本）输入
type CreatePluginInput struct {
	Name                  string               `json:"name"`
	Description           string               `json:"description"`
	IconURL               string               `json:"iconUrl"`
	ImageURL              string               `json:"imageUrl"`
	SubDescriptions       []SubDescription     `json:"subDescriptions"`
	PluginType            string               `json:"pluginType"`
	CurrentWindowsVersion string               `json:"currentWindowsVersion"`
	CurrentMacOsVersion   string               `json:"currentMacOsVersion"`
	Versions              []PluginVersionInput `json:"versions"`
}

// PluginPage 插件分页结果
type PluginPage struct {
	CurrentPage int             `json:"currentPage"`
	TotalPages  int             `json:"totalPages"`
	TotalItems  int64           `json:"totalItems"`
	Items       []models.Plugin `json:"items"`
}

// PluginService 插件目录服务
type PluginService struct {
	repo    repository.PluginRepository
	nowFunc func() time.Time
}

// NewPluginService 创建插件服务
func NewPluginService(repo repository.PluginRepository) *PluginService {
	return &PluginService{repo: repo, nowFunc: time.Now}
}

// CreateWithVersions 校验后在同一事务内创建插件与全部版本
func (s *PluginService) CreateWithVersions(input CreatePluginInput) (*models.Plugin, error) {
	releaseDates, messages := validatePluginInput(input, s.nowFunc())
	if err := newValidationError(messages); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	exists, err := s.repo.ExistsByName(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrPluginNameExists
	}

	subDescriptions, err := json.Marshal(input.SubDescriptions)
	if err != nil {
		return nil, err
	}
	plugin := &models.Plugin{
		Name:                  name,
		Description:           strings.TrimSpace(input.Description),
		IconURL:               strings.TrimSpace(input.IconURL),
		ImageURL:              strings.TrimSpace(input.ImageURL),
		SubDescriptions:       datatypes.JSON(subDescriptions),
		PluginType:            input.PluginType,
		CurrentWindowsVersion: strings.TrimSpace(input.CurrentWindowsVersion),
		CurrentMacOsVersion:   strings.TrimSpace(input.CurrentMacOsVersion),
	}

	err = s.repo.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(plugin); err != nil {
			return err
		}
		versions := make([]models.PluginVersion, 0, len(input.Versions))
		for i, item := range input.Versions {
			versions = append(versions, models.PluginVersion{
				PluginID:    plugin.ID,
				Platform:    item.Platform,
				Version:     strings.TrimSpace(item.Version),
				URL:         strings.TrimSpace(item.URL),
				Size:        item.Size,
				ReleaseDate: releaseDates[i],
			})
		}
		return repo.CreateVersions(versions)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrPluginNameExists
		}
		return nil, err
	}
	logger.Infow("plugin_created", "plugin_id", plugin.ID, "name", plugin.Name, "versions", len(input.Versions))
	return s.repo.GetWithVersions(plugin.ID)
}

// GetWithVersions 获取插件及版本
func (s *PluginService) GetWithVersions(id uint) (*models.Plugin, error) {
	plugin, err := s.repo.GetWithVersions(id)
	if err != nil {
		return nil, err
	}
	if plugin == nil {
		return nil, ErrPluginNotFound
	}
	return plugin, nil
}

// List 分页查询插件目录
func (s *PluginService) List(filter repository.PluginListFilter) (*PluginPage, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = pluginDefaultPageSize
	}
	if filter.PageSize > pluginMaxPageSize {
		filter.PageSize = pluginMaxPageSize
	}
	filter.PluginType = strings.ToLower(strings.TrimSpace(filter.PluginType))
	if filter.PluginType != "" && !isValidPluginType(filter.PluginType) {
		return nil, newValidationError([]string{"Invalid plugin type."})
	}

	rows, total, err := s.repo.List(filter)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.Plugin{}
	}
	return &PluginPage{
		CurrentPage: filter.Page,
		TotalPages:  int(math.Ceil(float64(total) / float64(filter.PageSize))),
		TotalItems:  total,
		Items:       rows,
	}, nil
}

func isValidPluginType(pluginType string) bool {
	return pluginType == constants.PluginTypePremierePro || pluginType == constants.PluginTypeAfterEffects
}

// validatePluginInput 返回解析后的发布时间与全部校验错误
func validatePluginInput(input CreatePluginInput, now time.Time) ([]time.Time, []string) {
	var messages []string
	add := func(format string, args ...interface{}) {
		messages = append(messages, fmt.Sprintf(format, args...))
	}

	name := strings.TrimSpace(input.Name)
	switch {
	case name == "":
		add("Name is required.")
	case len(name) > 255:
		add("Name must be less than 255 characters.")
	}
	description := strings.TrimSpace(input.Description)
	switch {
	case description == "":
		add("Description is required.")
	case len(description) > 5000:
		add("Description must be less than 5000 characters.")
	}
	switch imageURL := strings.TrimSpace(input.ImageURL); {
	case imageURL == "":
		add("Image URL is required.")
	case !imageURLPattern.MatchString(imageURL):
		add("Invalid image URL format.")
	}
	switch iconURL := strings.TrimSpace(input.IconURL); {
	case iconURL == "":
		add("Icon URL is required.")
	case !imageURLPattern.MatchString(iconURL):
		add("Invalid icon URL format.")
	}

	if len(input.SubDescriptions) == 0 {
		add("At least one subDescription is required.")
	}
	for i, sub := range input.SubDescriptions {
		switch title := strings.TrimSpace(sub.Title); {
		case title == "":
			add("SubDescription #%d title is required.", i+1)
		case len(title) > 100:
			add("SubDescription #%d title must be less than 100 characters.", i+1)
		}
		switch text := strings.TrimSpace(sub.Description); {
		case text == "":
			add("SubDescription #%d description is required.", i+1)
		case len(text) > 500:
			add("SubDescription #%d description must be less than 500 characters.", i+1)
		}
	}

	if !semverPattern.MatchString(strings.TrimSpace(input.CurrentWindowsVersion)) {
		add("Invalid current Windows version format. Use semantic versioning (e.g., 1.0.0).")
	}
	if !semverPattern.MatchString(strings.TrimSpace(input.CurrentMacOsVersion)) {
		add("Invalid current macOS version format. Use semantic versioning (e.g., 1.0.0).")
	}
	if !isValidPluginType(input.PluginType) {
		add("Invalid plugin type.")
	}

	if len(input.Versions) == 0 {
		add("At least one version is required.")
		return nil, messages
	}
	if len(input.Versions) > pluginMaxVersions {
		add("Maximum %d versions allowed per plugin.", pluginMaxVersions)
	}

	releaseDates := make([]time.Time, len(input.Versions))
	latestAllowed := now.AddDate(1, 0, 0)
	seen := make(map[string]struct{}, len(input.Versions))
	hasWindows, hasMac := false, false
	for i, item := range input.Versions {
		prefix := fmt.Sprintf("Version #%d", i+1)
		switch item.Platform {
		case constants.PlatformWindows:
			hasWindows = true
		case constants.PlatformMac:
			hasMac = true
		case "":
			add("%s: Platform is required.", prefix)
		default:
			add("%s: Invalid platform. Must be either 'windows' or 'mac'.", prefix)
		}

		switch url := strings.TrimSpace(item.URL); {
		case url == "":
			add("%s: Download URL is required.", prefix)
		case !downloadURLPattern.MatchString(url):
			add("%s: Invalid URL format.", prefix)
		case len(url) > 2048:
			add("%s: URL must be less than 2048 characters.", prefix)
		}

		switch {
		case item.Size <= 0:
			add("%s: File size must be a positive integer (bytes).", prefix)
		case item.Size > pluginMaxFileSize:
			add("%s: File size cannot exceed 10GB.", prefix)
		}

		version := strings.TrimSpace(item.Version)
		switch {
		case version == "":
			add("%s: Version number is required.", prefix)
		case !semverPattern.MatchString(version):
			add("%s: Invalid version format. Use semantic versioning (e.g., 1.0.0).", prefix)
		}

		releaseDate, err := parseReleaseDate(item.ReleaseDate)
		switch {
		case strings.TrimSpace(item.ReleaseDate) == "":
			add("%s: Release date is required.", prefix)
		case err != nil:
			add("%s: Invalid release date format. Use ISO 8601 format.", prefix)
		case releaseDate.After(latestAllowed):
			add("%s: Release date cannot be more than one year in the future.", prefix)
		default:
			releaseDates[i] = releaseDate
		}

		if item.Platform != "" && version != "" {
			combo := item.Platform + "-" + version
			if _, ok := seen[combo]; ok {
				add("Duplicate version %s for platform %s at index %d.", version, item.Platform, i+1)
			}
			seen[combo] = struct{}{}
		}
	}
	if !hasWindows {
		add("At least one Windows version is required.")
	}
	if !hasMac {
		add("At least one Mac version is required.")
	}
	return releaseDates, messages
}

func parseReleaseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid release date %q", raw)
}
