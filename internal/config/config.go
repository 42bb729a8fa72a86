package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Secrets never live in the YAML file; see Env.

// FeedConfig describes a single ICS calendar feed.
type FeedConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Type decides the status code events from this feed produce.
	// Supported values: "pto" (default), "travel".
	Type string `yaml:"type" json:"type"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the preview
// server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the preview server.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to anchor "today". "Local" uses
	// the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// ReportWindowMonths is the report horizon: the window runs from the
	// first day of the current month for this many months.
	ReportWindowMonths int `yaml:"report_window_months" json:"report_window_months"`

	// RefreshCron is a cron-style schedule string used by watch mode to
	// regenerate the report.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// RosterPath is the employee hierarchy JSON file.
	RosterPath string `yaml:"roster_path" json:"roster_path"`

	// OutputDir is where workbook files are written.
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// CertificatePath optionally points at a PEM bundle appended to the
	// system roots when fetching feeds (corporate TLS interception).
	CertificatePath string `yaml:"certificate_path" json:"certificate_path"`

	// Feeds is the list of subscribed calendar feeds.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Env carries resolver credentials read from the process environment,
// optionally seeded from a .env file. They are deliberately not part of
// the YAML schema so config files stay safe to commit.
type Env struct {
	// OpenAIAPIKey authenticates against the chat-completions endpoint.
	// When empty the resolver is disabled and every title goes unmatched.
	OpenAIAPIKey string `env:"TEAMCAL_OPENAI_API_KEY"`
	// OpenAIBaseURL overrides the API host, e.g. for a gateway.
	OpenAIBaseURL string `env:"TEAMCAL_OPENAI_BASE_URL"`
	// OpenAIModel selects the chat model used for name resolution.
	OpenAIModel string `env:"TEAMCAL_OPENAI_MODEL" envDefault:"gpt-4o-mini"`
}

// LoadEnv reads resolver credentials from the environment. A .env file in
// the working directory is loaded first if present; real environment
// variables win over it.
func LoadEnv() (Env, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Env{}, err
		}
	}
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, err
	}
	return e, nil
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             "127.0.0.1:8080",
		Timezone:           "Local",
		ReportWindowMonths: 6,
		RefreshCron:        "30 6 * * *",
		RosterPath:         "employees.json",
		OutputDir:          ".",
		Feeds:              []FeedConfig{},
		BasicAuth:          nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.ReportWindowMonths <= 0 {
		c.ReportWindowMonths = 6
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "30 6 * * *"
	}
	if c.RosterPath == "" {
		c.RosterPath = "employees.json"
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		switch strings.ToLower(c.Feeds[i].Type) {
		case "travel":
			c.Feeds[i].Type = "travel"
		default:
			// Unknown value; fall back to pto to avoid dropping a feed.
			c.Feeds[i].Type = "pto"
		}
		if c.Feeds[i].ID == "" {
			c.Feeds[i].ID = c.Feeds[i].Type
		}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".teamcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the
// package-level Save function:
//
//	cfg, _ := config.Load(path)
//	// ... mutate cfg ...
//	if err := cfg.Save(path); err != nil { ... }
func (c *Config) Save(path string) error {
	return Save(path, c)
}
