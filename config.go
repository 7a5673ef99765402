package pubmed

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

// Config holds the tunables shared by all commands. Values come from the
// embedded defaults, overridden by the user config file, overridden by a
// project-local .pm/config.yaml.
type Config struct {
	BatchSize  int    `yaml:"batch_size"`
	RateDelay  string `yaml:"rate_delay"`
	Timeout    string `yaml:"timeout"`
	MaxResults int    `yaml:"max_results"`
	Email      string `yaml:"email"`
	LogFormat  string `yaml:"log_format"`
}

// RateDelayDuration parses the rate delay, falling back to the API default.
func (c *Config) RateDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.RateDelay)
	if err != nil || d < 0 {
		return defaultRateDelay
	}
	return d
}

// TimeoutDuration parses the HTTP timeout, falling back to 30s.
func (c *Config) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ResolvedEmail returns the configured email, overridable via PM_EMAIL.
func (c *Config) ResolvedEmail() string {
	if env := os.Getenv("PM_EMAIL"); env != "" {
		return env
	}
	return c.Email
}

// DefaultConfigPath is the per-user config location.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "pm", "config.yaml")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// LoadConfig resolves the effective configuration. With an empty path the
// per-user config is used, seeded from the embedded defaults on first run.
// When store is non-nil and <store>/config.yaml exists, its set fields
// override the user config.
func LoadConfig(path string, store *Store) (*Config, error) {
	cfg, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
		if _, err := os.Stat(path); err != nil {
			// First run: seed the user config best-effort and run on the
			// embedded defaults. An unwritable config dir must not take
			// every command down.
			writeDefaultConfig(path)
			path = ""
		}
	}
	if path != "" {
		if err := mergeConfigFile(cfg, path, false); err != nil {
			return nil, err
		}
	}

	if root := store.Root(); root != "" {
		if err := mergeConfigFile(cfg, filepath.Join(root, "config.yaml"), true); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func mergeConfigFile(cfg *Config, path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.BatchSize < 0 || cfg.MaxResults < 0 {
		return fmt.Errorf("config %s: negative counts are not valid", path)
	}
	return nil
}

func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}
