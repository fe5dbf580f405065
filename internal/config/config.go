package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"webhook-chat/internal/store"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "WEBHOOK_CHAT_"

// Config holds all application configuration
type Config struct {
	// Storage settings
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
	Backend string `yaml:"backend" env:"BACKEND"`

	// WebhookURL, when set, replaces the stored webhook URL at startup
	WebhookURL string `yaml:"webhook_url" env:"WEBHOOK_URL"`

	// Output settings
	LogLevel       string `yaml:"log_level" env:"LOG_LEVEL"`
	RenderMarkdown bool   `yaml:"render_markdown" env:"RENDER_MARKDOWN"`

	// MetricsAddr enables a Prometheus listener, e.g. "127.0.0.1:9464"
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		DataDir:        "~/.webhook-chat",
		Backend:        store.BackendFile,
		LogLevel:       "warn",
		RenderMarkdown: true,
	}
}

// DefaultSettingsPath is where Load looks when no path is given.
func DefaultSettingsPath() string {
	return expandHome("~/.webhook-chat/settings.yaml")
}

// Load applies the YAML settings file at path (if present) and then
// WEBHOOK_CHAT_* environment variables on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(expandHome(path))
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read settings: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.DataDir = expandHome(cfg.DataDir)
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" && c.Backend != store.BackendMemory {
		return fmt.Errorf("data directory cannot be empty")
	}
	switch c.Backend {
	case store.BackendFile, store.BackendPebble, store.BackendSQLite, store.BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (want file, pebble, sqlite or memory)", c.Backend)
	}
	return nil
}

// expandHome expands the ~ in file paths to the user's home directory
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
		return filepath.Join(home, path[2:])
	}
	return home
}
