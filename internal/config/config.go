// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Events    EventsConfig    `mapstructure:"events"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Export    ExportConfig    `mapstructure:"export"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// StreamPing is the websocket keepalive interval.
	StreamPing time.Duration `mapstructure:"stream_ping"`
	// RateLimit is requests per second per client on /v1; 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig bounds the in-memory notification feed.
type StoreConfig struct {
	// MaxEntries caps retained notifications; 0 keeps everything.
	MaxEntries       int `mapstructure:"max_entries"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// GeneratorConfig drives the simulated event source.
type GeneratorConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	Probability float64       `mapstructure:"probability"`
	Seed        bool          `mapstructure:"seed"`
	// RandomSeed fixes the PRNG; 0 seeds from the clock.
	RandomSeed uint64 `mapstructure:"random_seed"`
}

// EventsConfig tunes the hub that fans store events out to sinks.
type EventsConfig struct {
	BufferSize  int           `mapstructure:"buffer_size"`
	BatchSize   int           `mapstructure:"batch_size"`
	BatchWait   time.Duration `mapstructure:"batch_wait"`
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
	LogEvents   bool          `mapstructure:"log_events"`
}

// AlertsConfig controls delivery of the ephemeral new-notification alert.
type AlertsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Publisher is "memory" or "pubsub".
	Publisher string  `mapstructure:"publisher"`
	Topic     string  `mapstructure:"topic"`
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// PubSubConfig holds the Google Cloud Pub/Sub project used for alerts.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// ArchiveConfig enables the Postgres audit trail when DSN is set.
type ArchiveConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// Enabled reports whether the archive is configured.
func (a ArchiveConfig) Enabled() bool { return a.DSN != "" }

// ExportConfig selects the blob backend for feed exports.
type ExportConfig struct {
	// Backend is "memory", "local" or "gcs"; empty disables exports.
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLEETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.stream_ping", 30*time.Second)
	v.SetDefault("server.rate_limit", 0.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("store.max_entries", 500)
	v.SetDefault("store.subscriber_buffer", 64)
	v.SetDefault("generator.enabled", true)
	v.SetDefault("generator.interval", 30*time.Second)
	v.SetDefault("generator.probability", 0.3)
	v.SetDefault("generator.seed", true)
	v.SetDefault("generator.random_seed", 0)
	v.SetDefault("events.buffer_size", 1024)
	v.SetDefault("events.batch_size", 100)
	v.SetDefault("events.batch_wait", 250*time.Millisecond)
	v.SetDefault("events.sink_timeout", 5*time.Second)
	v.SetDefault("events.log_events", true)
	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.publisher", "memory")
	v.SetDefault("alerts.topic", "fleet-alerts")
	v.SetDefault("alerts.rate_limit", 5.0)
	v.SetDefault("alerts.burst", 10)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("archive.dsn", "")
	v.SetDefault("archive.table", "notification_archive")
	v.SetDefault("archive.max_conns", 4)
	v.SetDefault("archive.min_conns", 0)
	v.SetDefault("archive.max_conn_lifetime", time.Hour)
	v.SetDefault("archive.ensure_schema", true)
	v.SetDefault("export.backend", "memory")
	v.SetDefault("export.prefix", "exports")
	v.SetDefault("export.local_dir", "")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("metrics.enabled", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be > 0"))
	}
	if c.Server.StreamPing <= 0 {
		errs = append(errs, errors.New("server.stream_ping must be > 0"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must be >= 0"))
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		errs = append(errs, errors.New("auth.api_key must be set when auth is enabled"))
	}
	if c.Store.MaxEntries < 0 {
		errs = append(errs, errors.New("store.max_entries must be >= 0"))
	}
	if c.Generator.Enabled {
		if c.Generator.Interval <= 0 {
			errs = append(errs, errors.New("generator.interval must be > 0"))
		}
		if c.Generator.Probability < 0 || c.Generator.Probability > 1 {
			errs = append(errs, errors.New("generator.probability must be within [0, 1]"))
		}
	}
	if c.Events.BufferSize <= 0 || c.Events.BatchSize <= 0 {
		errs = append(errs, errors.New("events.buffer_size and events.batch_size must be > 0"))
	}
	if c.Alerts.Enabled {
		switch c.Alerts.Publisher {
		case "memory":
		case "pubsub":
			if c.PubSub.ProjectID == "" {
				errs = append(errs, errors.New("pubsub.project_id is required for the pubsub alert publisher"))
			}
		default:
			errs = append(errs, fmt.Errorf("alerts.publisher %q is not supported", c.Alerts.Publisher))
		}
		if c.Alerts.Topic == "" {
			errs = append(errs, errors.New("alerts.topic is required when alerts are enabled"))
		}
		if c.Alerts.RateLimit < 0 {
			errs = append(errs, errors.New("alerts.rate_limit must be >= 0"))
		}
	}
	switch c.Export.Backend {
	case "", "memory":
	case "local":
		if c.Export.LocalDir == "" {
			errs = append(errs, errors.New("export.local_dir is required for the local backend"))
		}
	case "gcs":
		if c.Export.GCSBucket == "" {
			errs = append(errs, errors.New("export.gcs_bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("export.backend %q is not supported", c.Export.Backend))
	}
	return errors.Join(errs...)
}
