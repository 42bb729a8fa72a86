package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 6, cfg.ReportWindowMonths)
	assert.Equal(t, "employees.json", cfg.RosterPath)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Second load reads the file it just wrote.
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen: "0.0.0.0:9090"
report_window_months: 3
feeds:
  - url: https://calendar.example.com/pto.ics
    id: pto
    type: PTO
  - url: https://calendar.example.com/travel.ics
    type: Travel
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Listen)
	assert.Equal(t, 3, cfg.ReportWindowMonths)

	require.Len(t, cfg.Feeds, 2)
	assert.Equal(t, "pto", cfg.Feeds[0].Type)
	assert.Equal(t, "travel", cfg.Feeds[1].Type)
	// Feed without an explicit ID inherits its type.
	assert.Equal(t, "travel", cfg.Feeds[1].ID)

	// Untouched fields pick up defaults.
	assert.Equal(t, "30 6 * * *", cfg.RefreshCron)
	assert.Equal(t, ".", cfg.OutputDir)
}

func TestNormalizeUnknownFeedType(t *testing.T) {
	cfg := &Config{Feeds: []FeedConfig{{URL: "https://x.example/a.ics", Type: "vacation"}}}
	cfg.Normalize()
	assert.Equal(t, "pto", cfg.Feeds[0].Type)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.ReportWindowMonths = 12
	cfg.BasicAuth = &BasicAuthConfig{Username: "view", Password: "secret"}

	require.NoError(t, cfg.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, back.ReportWindowMonths)
	require.NotNil(t, back.BasicAuth)
	assert.Equal(t, "view", back.BasicAuth.Username)
}

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv("TEAMCAL_OPENAI_API_KEY", "sk-test")
	// t.Setenv registers restore; unset so envDefault kicks in.
	t.Setenv("TEAMCAL_OPENAI_MODEL", "placeholder")
	require.NoError(t, os.Unsetenv("TEAMCAL_OPENAI_MODEL"))

	e, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", e.OpenAIAPIKey)
	assert.Equal(t, "gpt-4o-mini", e.OpenAIModel)
}
