package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Store.MaxEntries != 500 {
		t.Fatalf("expected default retention 500, got %d", cfg.Store.MaxEntries)
	}
	if cfg.Generator.Interval != 30*time.Second || cfg.Generator.Probability != 0.3 {
		t.Fatalf("unexpected generator defaults: %+v", cfg.Generator)
	}
	if !cfg.Generator.Seed || !cfg.Generator.Enabled {
		t.Fatalf("expected generator to seed and run by default: %+v", cfg.Generator)
	}
	if cfg.Alerts.Publisher != "memory" || cfg.Export.Backend != "memory" {
		t.Fatalf("expected in-memory alert and export backends by default")
	}
	if cfg.Archive.Enabled() {
		t.Fatal("expected archive to be disabled without a dsn")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout: 10s
auth:
  enabled: true
  api_key: secret
store:
  max_entries: 0
generator:
  interval: 5s
  probability: 1
  seed: false
  random_seed: 42
alerts:
  publisher: pubsub
  topic: fleet-alerts-prod
pubsub:
  project_id: fleet-prod
archive:
  dsn: postgres://fleet@localhost/fleet
  table: audit
export:
  backend: gcs
  gcs_bucket: fleet-exports
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.RequestTimeout != 10*time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Store.MaxEntries != 0 {
		t.Fatalf("expected unbounded store, got %d", cfg.Store.MaxEntries)
	}
	if cfg.Generator.Interval != 5*time.Second || cfg.Generator.Seed || cfg.Generator.RandomSeed != 42 {
		t.Fatalf("expected generator overrides, got %+v", cfg.Generator)
	}
	if cfg.Alerts.Publisher != "pubsub" || cfg.PubSub.ProjectID != "fleet-prod" {
		t.Fatalf("expected pubsub alerts, got %+v / %+v", cfg.Alerts, cfg.PubSub)
	}
	if !cfg.Archive.Enabled() || cfg.Archive.Table != "audit" {
		t.Fatalf("expected archive overrides, got %+v", cfg.Archive)
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FLEETWATCH_SERVER_PORT", "7070")
	t.Setenv("FLEETWATCH_STORE_MAX_ENTRIES", "25")
	t.Setenv("FLEETWATCH_GENERATOR_INTERVAL", "1m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Store.MaxEntries != 25 {
		t.Fatalf("expected env retention 25, got %d", cfg.Store.MaxEntries)
	}
	if cfg.Generator.Interval != time.Minute {
		t.Fatalf("expected env interval 1m, got %v", cfg.Generator.Interval)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"negative retention", func(c *Config) { c.Store.MaxEntries = -1 }, "store.max_entries"},
		{"negative api rate limit", func(c *Config) { c.Server.RateLimit = -1 }, "server.rate_limit"},
		{"zero interval", func(c *Config) { c.Generator.Interval = 0 }, "generator.interval"},
		{"probability above one", func(c *Config) { c.Generator.Probability = 1.5 }, "generator.probability"},
		{"unknown publisher", func(c *Config) { c.Alerts.Publisher = "kafka" }, "alerts.publisher"},
		{"pubsub without project", func(c *Config) { c.Alerts.Publisher = "pubsub" }, "pubsub.project_id"},
		{"local without dir", func(c *Config) { c.Export.Backend = "local" }, "export.local_dir"},
		{"gcs without bucket", func(c *Config) { c.Export.Backend = "gcs" }, "export.gcs_bucket"},
		{"unknown export backend", func(c *Config) { c.Export.Backend = "s3" }, "export.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("defaults must validate, got %v", err)
	}
}
