package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models moldline.yml.
type Config struct {
	Site struct {
		ID string `yaml:"id"`
	} `yaml:"site"`
	Scheduling struct {
		Scope       string `yaml:"scope"`
		DefaultDays int    `yaml:"default_days"`
		MaxDays     int    `yaml:"max_days"`
		Priority    struct {
			UrgentDays int `yaml:"urgent_days"`
			SoonDays   int `yaml:"soon_days"`
		} `yaml:"priority"`
	} `yaml:"scheduling"`
	Pipeline struct {
		Stages []string `yaml:"stages"`
	} `yaml:"pipeline"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with ml config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Site.ID == "" {
		return fmt.Errorf("config.site.id is required")
	}
	if strings.TrimSpace(c.Scheduling.Scope) == "" {
		return fmt.Errorf("config.scheduling.scope is required")
	}
	if c.Scheduling.DefaultDays <= 0 {
		return fmt.Errorf("config.scheduling.default_days must be positive")
	}
	if c.Scheduling.MaxDays < c.Scheduling.DefaultDays {
		return fmt.Errorf("config.scheduling.max_days must be >= default_days")
	}
	p := c.Scheduling.Priority
	if p.UrgentDays < 0 || p.SoonDays < p.UrgentDays {
		return fmt.Errorf("config.scheduling.priority requires 0 <= urgent_days <= soon_days")
	}
	if len(c.Pipeline.Stages) == 0 {
		return fmt.Errorf("config.pipeline.stages is required")
	}
	seen := map[string]bool{}
	for _, st := range c.Pipeline.Stages {
		if strings.TrimSpace(st) == "" {
			return fmt.Errorf("config.pipeline.stages contains empty stage")
		}
		if seen[st] {
			return fmt.Errorf("config.pipeline.stages repeats stage %s", st)
		}
		seen[st] = true
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "moldline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(siteID string) string {
	return fmt.Sprintf(defaultTemplate, siteID)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace, siteID string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(siteID), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a site.
func Default(siteID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(siteID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses config from raw YAML bytes on top of the defaults and
// validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("default")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `site:
  id: %s

scheduling:
  # labor department whose roster sets the daily ceiling; also the
  # scope whose allocations a regeneration replaces
  scope: molding
  default_days: 20
  max_days: 260
  priority:
    urgent_days: 7
    soon_days: 30

pipeline:
  stages: [molding, finishing, shipping, complete]

server:
  addr: ":8080"
  base_path: /v1

log:
  level: info
`
