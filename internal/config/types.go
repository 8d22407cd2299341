package config

import (
	"strings"
	"time"
)

// Config represents the complete msghook configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Webhook  WebhookConfig  `yaml:"webhook"`

	// SourcePath is the config file the values were read from ("" when env-only).
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// HTTPConfig defines the listener settings.
type HTTPConfig struct {
	Listen       string        `yaml:"listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig defines message storage settings.
type DatabaseConfig struct {
	// URL is either a plain filesystem path or a sqlite:///path URL.
	URL string `yaml:"url"`
}

// WebhookConfig defines the ingestion endpoint settings.
type WebhookConfig struct {
	// Secret is the shared HMAC-SHA256 key.
	Secret string `yaml:"secret"`

	// SignatureHeader carries the hex signature (default: X-Signature).
	SignatureHeader string `yaml:"signature_header"`

	// MaxBodySize accepts plain bytes or KB/MB/GB suffixes (default: 1MB).
	MaxBodySize string `yaml:"max_body_size"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "msghook",
			LogLevel:  "info",
			LogFormat: "json",
		},
		HTTP: HTTPConfig{
			Listen:       "127.0.0.1:8000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Webhook: WebhookConfig{
			SignatureHeader: "X-Signature",
			MaxBodySize:     "1MB",
		},
	}
}

// DatabasePath returns the SQLite file path with any sqlite:// scheme removed.
func (c *Config) DatabasePath() string {
	for _, prefix := range []string{"sqlite:///", "sqlite://"} {
		if path, ok := strings.CutPrefix(c.Database.URL, prefix); ok {
			return path
		}
	}
	return c.Database.URL
}

// Ready reports whether the settings required for storage and ingestion are present.
// A config that is not ready still serves liveness, but skips storage initialization.
func (c *Config) Ready() bool {
	return c.DatabasePath() != "" && c.Webhook.Secret != ""
}
