// Package hookconfig loads the sparkhook configuration file.
package hookconfig

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the sparkhook configuration.
type Config struct {
	Endpoints   []Endpoint `yaml:"endpoints"`
	Webhooks    []Webhook  `yaml:"webhooks"`
	Workers     int        `yaml:"workers"`
	MaxBodySize int64      `yaml:"max_body_size"`
	TLS         TLS        `yaml:"tls"`
	MetricsAddr string     `yaml:"metrics_addr"`
	LogLevel    string     `yaml:"log_level"`
}

// Endpoint is one address the listener binds.
type Endpoint struct {
	Host  string `yaml:"host"`
	Port  uint16 `yaml:"port"`
	HTTPS bool   `yaml:"https"`
}

// Webhook is a registered webhook whose deliveries are accepted.
type Webhook struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Secret string `yaml:"secret"`
}

// TLS holds the certificate used by HTTPS endpoints.
type TLS struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DefaultConfig returns the defaults applied before the file is parsed.
func DefaultConfig() *Config {
	return &Config{
		Workers:     16,
		MaxBodySize: 1 << 20,
		LogLevel:    "info",
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration data.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// HasHTTPS reports whether any endpoint is served over TLS.
func (c *Config) HasHTTPS() bool {
	for _, ep := range c.Endpoints {
		if ep.HTTPS {
			return true
		}
	}
	return false
}

func validate(cfg *Config) error {
	if len(cfg.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}

	for i, ep := range cfg.Endpoints {
		if strings.TrimSpace(ep.Host) == "" {
			cfg.Endpoints[i].Host = "localhost"
		}
	}

	if len(cfg.Webhooks) == 0 {
		return fmt.Errorf("at least one webhook is required")
	}

	seen := make(map[string]bool, len(cfg.Webhooks))
	for i, w := range cfg.Webhooks {
		if w.ID == "" {
			return fmt.Errorf("webhooks[%d]: id is required", i)
		}
		if w.Secret == "" {
			return fmt.Errorf("webhooks[%d]: secret is required", i)
		}
		if seen[w.ID] {
			return fmt.Errorf("webhooks[%d]: duplicate id %q", i, w.ID)
		}
		seen[w.ID] = true
	}

	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	if cfg.MaxBodySize <= 0 {
		return fmt.Errorf("max_body_size must be positive")
	}

	if cfg.HasHTTPS() && (cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file are required for https endpoints")
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}

	return nil
}
