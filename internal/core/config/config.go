package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before they are mapped
// onto config keys. A double underscore separates nested keys:
// AEVON_RUM_TELEMETRY__SESSION_SAMPLE_RATE -> telemetry.session_sample_rate.
const EnvPrefix = "AEVON_RUM_"

// Config is the configuration shared by the telemetry client and the collector.
type Config struct {
	Application ApplicationConfig `koanf:"application"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Collector   CollectorConfig   `koanf:"collector"`
}

type ApplicationConfig struct {
	ID      string `koanf:"id"`
	Version string `koanf:"version"`
	Region  string `koanf:"region"`
}

type TelemetryConfig struct {
	AllowCookies         bool    `koanf:"allow_cookies"`
	SessionSampleRate    float64 `koanf:"session_sample_rate"`
	SessionLengthSeconds int     `koanf:"session_length_seconds"`
	SessionEventLimit    int     `koanf:"session_event_limit"` // 0 = unlimited
	EventCacheSize       int     `koanf:"event_cache_size"`
	CandidateCacheSize   int     `koanf:"candidate_cache_size"`
	UserIDRetentionDays  int     `koanf:"user_id_retention_days"` // <= 0 disables persistent identity

	DispatchInterval time.Duration `koanf:"dispatch_interval"`
	Retries          int           `koanf:"retries"`
	RetryBaseDelay   time.Duration `koanf:"retry_base_delay"`
	RequestTimeout   time.Duration `koanf:"request_timeout"`
	UseBeacon        bool          `koanf:"use_beacon"`
	Signing          bool          `koanf:"signing"`
	Endpoint         string        `koanf:"endpoint"`

	Compression CompressionConfig `koanf:"compression"`
	Credentials CredentialsConfig `koanf:"credentials"`

	CookieDomain string `koanf:"cookie_domain"`
	UserAgent    string `koanf:"user_agent"`
	Language     string `koanf:"language"`
}

type CompressionConfig struct {
	Enabled        bool `koanf:"enabled"`
	ThresholdBytes int  `koanf:"threshold_bytes"`
}

type CredentialsConfig struct {
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	SessionToken    string `koanf:"session_token"`
}

type CollectorConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	Mode           string   `koanf:"mode"` // debug | release
	MaxBodySizeMB  int      `koanf:"max_body_size_mb"`
	Store          string   `koanf:"store"` // memory | postgres
	DSN            string   `koanf:"dsn"`
	MaxOpenConns   int      `koanf:"max_open_conns"`
	MaxIdleConns   int      `koanf:"max_idle_conns"`
	AutoMigrate    bool     `koanf:"auto_migrate"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// SessionLength is the idle period after which a session expires.
func (c TelemetryConfig) SessionLength() time.Duration {
	return time.Duration(c.SessionLengthSeconds) * time.Second
}

// Validate checks the ranges of every section. Identity requirements that
// only apply to the client are checked by ValidateClient.
func (c *Config) Validate() error {
	t := c.Telemetry
	if t.SessionSampleRate < 0 || t.SessionSampleRate > 1 {
		return fmt.Errorf("invalid telemetry.session_sample_rate %v (must be 0-1)", t.SessionSampleRate)
	}
	if t.SessionLengthSeconds <= 0 {
		return fmt.Errorf("telemetry.session_length_seconds must be > 0")
	}
	if t.SessionEventLimit < 0 {
		return fmt.Errorf("telemetry.session_event_limit must be >= 0")
	}
	if t.EventCacheSize <= 0 {
		return fmt.Errorf("telemetry.event_cache_size must be > 0")
	}
	if t.CandidateCacheSize < 0 {
		return fmt.Errorf("telemetry.candidate_cache_size must be >= 0")
	}
	if t.DispatchInterval < 0 {
		return fmt.Errorf("telemetry.dispatch_interval must be >= 0")
	}
	if t.Retries < 0 {
		return fmt.Errorf("telemetry.retries must be >= 0")
	}
	if t.RetryBaseDelay <= 0 {
		return fmt.Errorf("telemetry.retry_base_delay must be > 0")
	}
	if t.RequestTimeout <= 0 {
		return fmt.Errorf("telemetry.request_timeout must be > 0")
	}
	if t.Compression.ThresholdBytes < 0 {
		return fmt.Errorf("telemetry.compression.threshold_bytes must be >= 0")
	}
	if t.Signing && strings.TrimSpace(c.Application.Region) == "" {
		return fmt.Errorf("application.region is required when telemetry.signing is enabled")
	}

	s := c.Collector
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid collector.port %d (must be 1-65535)", s.Port)
	}
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("collector.host is required")
	}
	if s.MaxBodySizeMB <= 0 {
		return fmt.Errorf("collector.max_body_size_mb must be > 0")
	}
	if s.Mode != "debug" && s.Mode != "release" {
		return fmt.Errorf("invalid collector.mode %q (must be debug or release)", s.Mode)
	}
	switch s.Store {
	case "memory":
	case "postgres":
		if strings.TrimSpace(s.DSN) == "" {
			return fmt.Errorf("collector.dsn is required for the postgres store")
		}
		if s.MaxOpenConns <= 0 {
			return fmt.Errorf("collector.max_open_conns must be > 0")
		}
		if s.MaxIdleConns <= 0 {
			return fmt.Errorf("collector.max_idle_conns must be > 0")
		}
	default:
		return fmt.Errorf("unsupported collector.store %q", s.Store)
	}

	return nil
}

// ValidateClient checks what the telemetry client needs on top of Validate.
func (c *Config) ValidateClient() error {
	if strings.TrimSpace(c.Application.ID) == "" {
		return fmt.Errorf("application.id is required")
	}
	u, err := url.Parse(c.Telemetry.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid telemetry.endpoint %q", c.Telemetry.Endpoint)
	}
	return nil
}

// Defaults returns the default value of every key.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"application.id":      "",
		"application.version": "1.0.0",
		"application.region":  "us-east-1",

		"telemetry.allow_cookies":               true,
		"telemetry.session_sample_rate":         1.0,
		"telemetry.session_length_seconds":      1800,
		"telemetry.session_event_limit":         200,
		"telemetry.event_cache_size":            1000,
		"telemetry.candidate_cache_size":        50,
		"telemetry.user_id_retention_days":      30,
		"telemetry.dispatch_interval":           "5s",
		"telemetry.retries":                     2,
		"telemetry.retry_base_delay":            "2s",
		"telemetry.request_timeout":             "5s",
		"telemetry.use_beacon":                  true,
		"telemetry.signing":                     false,
		"telemetry.endpoint":                    "http://localhost:8080",
		"telemetry.compression.enabled":         false,
		"telemetry.compression.threshold_bytes": 2048,
		"telemetry.cookie_domain":               "",
		"telemetry.user_agent":                  "",
		"telemetry.language":                    "",

		"collector.host":             "0.0.0.0",
		"collector.port":             8080,
		"collector.mode":             "release",
		"collector.max_body_size_mb": 1,
		"collector.store":            "memory",
		"collector.dsn":              "",
		"collector.max_open_conns":   25,
		"collector.max_idle_conns":   25,
		"collector.auto_migrate":     true,
		"collector.allowed_origins":  []string{"*"},
	}
}

// Load parses config from defaults, an optional YAML file and the
// environment, in that order, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
