package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aevon-rum.yaml")
	requireNoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	requireNoError(t, err)

	if cfg.Telemetry.SessionLength() != 30*time.Minute {
		t.Fatalf("expected 30m session length, got %s", cfg.Telemetry.SessionLength())
	}
	if cfg.Telemetry.DispatchInterval != 5*time.Second {
		t.Fatalf("expected 5s dispatch interval, got %s", cfg.Telemetry.DispatchInterval)
	}
	if cfg.Telemetry.Compression.ThresholdBytes != 2048 {
		t.Fatalf("expected 2048 byte threshold, got %d", cfg.Telemetry.Compression.ThresholdBytes)
	}
	if cfg.Collector.Store != "memory" {
		t.Fatalf("expected memory store, got %q", cfg.Collector.Store)
	}
	if len(cfg.Collector.AllowedOrigins) != 1 || cfg.Collector.AllowedOrigins[0] != "*" {
		t.Fatalf("expected wildcard origin, got %v", cfg.Collector.AllowedOrigins)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
application:
  id: "shop-frontend"
  version: "2.3.0"
telemetry:
  session_sample_rate: 0.25
  session_event_limit: 0
  dispatch_interval: "750ms"
  retries: 5
  compression:
    enabled: true
    threshold_bytes: 4096
  credentials:
    access_key_id: "AKID"
    secret_access_key: "secret"
collector:
  port: 9090
  allowed_origins: ["https://shop.example.com"]
`)

	cfg, err := Load(path)
	requireNoError(t, err)
	requireNoError(t, cfg.ValidateClient())

	if cfg.Application.ID != "shop-frontend" || cfg.Application.Version != "2.3.0" {
		t.Fatalf("unexpected application %+v", cfg.Application)
	}
	if cfg.Telemetry.SessionSampleRate != 0.25 {
		t.Fatalf("expected sample rate 0.25, got %v", cfg.Telemetry.SessionSampleRate)
	}
	if cfg.Telemetry.SessionEventLimit != 0 {
		t.Fatalf("expected unlimited events, got %d", cfg.Telemetry.SessionEventLimit)
	}
	if cfg.Telemetry.DispatchInterval != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", cfg.Telemetry.DispatchInterval)
	}
	if !cfg.Telemetry.Compression.Enabled || cfg.Telemetry.Compression.ThresholdBytes != 4096 {
		t.Fatalf("unexpected compression %+v", cfg.Telemetry.Compression)
	}
	if cfg.Telemetry.Credentials.AccessKeyID != "AKID" {
		t.Fatalf("expected credentials from file, got %+v", cfg.Telemetry.Credentials)
	}
	if cfg.Collector.Port != 9090 || cfg.Collector.AllowedOrigins[0] != "https://shop.example.com" {
		t.Fatalf("unexpected collector %+v", cfg.Collector)
	}
	// untouched keys keep their defaults
	if cfg.Telemetry.UserIDRetentionDays != 30 {
		t.Fatalf("expected default retention, got %d", cfg.Telemetry.UserIDRetentionDays)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
application:
  id: "from-file"
telemetry:
  retries: 1
`)
	t.Setenv("AEVON_RUM_APPLICATION__ID", "from-env")
	t.Setenv("AEVON_RUM_TELEMETRY__RETRIES", "7")
	t.Setenv("AEVON_RUM_TELEMETRY__USE_BEACON", "false")
	t.Setenv("AEVON_RUM_TELEMETRY__REQUEST_TIMEOUT", "12s")

	cfg, err := Load(path)
	requireNoError(t, err)

	if cfg.Application.ID != "from-env" {
		t.Fatalf("expected env to win, got %q", cfg.Application.ID)
	}
	if cfg.Telemetry.Retries != 7 {
		t.Fatalf("expected 7 retries, got %d", cfg.Telemetry.Retries)
	}
	if cfg.Telemetry.UseBeacon {
		t.Fatal("expected use_beacon=false from env")
	}
	if cfg.Telemetry.RequestTimeout != 12*time.Second {
		t.Fatalf("expected 12s timeout, got %s", cfg.Telemetry.RequestTimeout)
	}
}

func TestLoad_InvalidValuesFailStartup(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "sample rate above one",
			body:    "telemetry:\n  session_sample_rate: 1.5\n",
			wantErr: "invalid telemetry.session_sample_rate",
		},
		{
			name:    "negative event limit",
			body:    "telemetry:\n  session_event_limit: -1\n",
			wantErr: "telemetry.session_event_limit must be >= 0",
		},
		{
			name:    "zero cache size",
			body:    "telemetry:\n  event_cache_size: 0\n",
			wantErr: "telemetry.event_cache_size must be > 0",
		},
		{
			name:    "signing without region",
			body:    "application:\n  region: \"\"\ntelemetry:\n  signing: true\n",
			wantErr: "application.region is required",
		},
		{
			name:    "bad collector port",
			body:    "collector:\n  port: -1\n",
			wantErr: "invalid collector.port",
		},
		{
			name:    "postgres without dsn",
			body:    "collector:\n  store: postgres\n",
			wantErr: "collector.dsn is required",
		},
		{
			name:    "unknown store",
			body:    "collector:\n  store: redis\n",
			wantErr: "unsupported collector.store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateClient(t *testing.T) {
	cfg, err := Load("")
	requireNoError(t, err)

	if err := cfg.ValidateClient(); err == nil || !strings.Contains(err.Error(), "application.id is required") {
		t.Fatalf("expected missing id error, got %v", err)
	}

	cfg.Application.ID = "app"
	cfg.Telemetry.Endpoint = "localhost:8080"
	if err := cfg.ValidateClient(); err == nil || !strings.Contains(err.Error(), "invalid telemetry.endpoint") {
		t.Fatalf("expected endpoint error, got %v", err)
	}

	cfg.Telemetry.Endpoint = "https://collector.example.com"
	requireNoError(t, cfg.ValidateClient())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to load config file") {
		t.Fatalf("expected file error, got %v", err)
	}
}

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
