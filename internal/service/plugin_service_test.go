package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pluginhub/internal/constants"
	"github.com/pluginhub/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPluginInput(name string) CreatePluginInput {
	return CreatePluginInput{
		Name:                  name,
		Description:           "Color grading toolkit",
		IconURL:               "https://cdn.example.com/icon.png",
		ImageURL:              "https://cdn.example.com/cover.JPG",
		SubDescriptions:       []SubDescription{{Title: "Fast", Description: "GPU accelerated"}},
		PluginType:            constants.PluginTypePremierePro,
		CurrentWindowsVersion: "1.2.0",
		CurrentMacOsVersion:   "1.2.0",
		Versions: []PluginVersionInput{
			{Platform: constants.PlatformWindows, URL: "https://dl.example.com/win-1.2.0.zip", Size: 1024, Version: "1.2.0", ReleaseDate: "2026-01-10T00:00:00Z"},
			{Platform: constants.PlatformMac, URL: "https://dl.example.com/mac-1.2.0.zip", Size: 2048, Version: "1.2.0", ReleaseDate: "2026-01-10"},
		},
	}
}

func setupPluginServiceTest(t *testing.T) *PluginService {
	t.Helper()
	db := openServiceTestDB(t)
	svc := NewPluginService(repository.NewPluginRepository(db))
	svc.nowFunc = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestPluginCreateWithVersions(t *testing.T) {
	svc := setupPluginServiceTest(t)

	plugin, err := svc.CreateWithVersions(validPluginInput("Lumetri Pro"))
	require.NoError(t, err)
	require.NotNil(t, plugin)
	assert.Len(t, plugin.Versions, 2)
	assert.JSONEq(t, `[{"title":"Fast","description":"GPU accelerated"}]`, string(plugin.SubDescriptions))

	_, err = svc.CreateWithVersions(validPluginInput("lumetri pro"))
	assert.True(t, errors.Is(err, ErrPluginNameExists), "expected duplicate name, got %v", err)

	got, err := svc.GetWithVersions(plugin.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lumetri Pro", got.Name)

	_, err = svc.GetWithVersions(plugin.ID + 100)
	assert.True(t, errors.Is(err, ErrPluginNotFound))
}

func TestPluginValidationCollectsAllMessages(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	input := validPluginInput("Broken")
	input.IconURL = "ftp://cdn.example.com/icon.bmp"
	input.CurrentMacOsVersion = "1.2"
	input.Versions = []PluginVersionInput{
		{Platform: constants.PlatformWindows, URL: "https://dl.example.com/a.zip", Size: 1, Version: "1.0.0", ReleaseDate: "2026-01-01"},
		{Platform: constants.PlatformWindows, URL: "https://dl.example.com/b.zip", Size: 1, Version: "1.0.0", ReleaseDate: "2026-01-01"},
		{Platform: "linux", URL: "not a url", Size: 0, Version: "v1", ReleaseDate: "2028-01-01"},
	}

	_, messages := validatePluginInput(input, now)
	joined := strings.Join(messages, "\n")
	for _, want := range []string{
		"Invalid icon URL format.",
		"Invalid current macOS version format. Use semantic versioning (e.g., 1.0.0).",
		"Duplicate version 1.0.0 for platform windows at index 2.",
		"Version #3: Invalid platform. Must be either 'windows' or 'mac'.",
		"Version #3: Invalid URL format.",
		"Version #3: File size must be a positive integer (bytes).",
		"Version #3: Invalid version format. Use semantic versioning (e.g., 1.0.0).",
		"Version #3: Release date cannot be more than one year in the future.",
		"At least one Mac version is required.",
	} {
		assert.Contains(t, joined, want)
	}
	assert.NotContains(t, joined, "At least one Windows version is required.")
}

func TestPluginValidationRejectsEmptyVersions(t *testing.T) {
	svc := setupPluginServiceTest(t)
	input := validPluginInput("Empty")
	input.Versions = nil

	_, err := svc.CreateWithVersions(input)
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, []string{"At least one version is required."}, validationErr.Messages)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestPluginListPaginates(t *testing.T) {
	svc := setupPluginServiceTest(t)
	for i := 0; i < 3; i++ {
		input := validPluginInput(fmt.Sprintf("Plugin %d", i))
		if i == 2 {
			input.PluginType = constants.PluginTypeAfterEffects
		}
		_, err := svc.CreateWithVersions(input)
		require.NoError(t, err)
	}

	page, err := svc.List(repository.PluginListFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 2)

	page, err = svc.List(repository.PluginListFilter{PluginType: "AfterEffects"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalItems)
	assert.Equal(t, 1, page.CurrentPage)

	_, err = svc.List(repository.PluginListFilter{PluginType: "photoshop"})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
