// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// CROSSWORD_SERVER_PORT.
const EnvPrefix = "CROSSWORD"

// Storage backends for grid debug artifacts.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Source    SourceConfig    `mapstructure:"source" yaml:"source"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Headless  HeadlessConfig  `mapstructure:"headless" yaml:"headless"`
	Grid      GridConfig      `mapstructure:"grid" yaml:"grid"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub" yaml:"pubsub"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port               int      `mapstructure:"port" yaml:"port"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development" yaml:"development"`
}

// HTTPConfig configures the primary fetcher.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent" yaml:"user_agent"`
}

// SourceConfig names the puzzle feed and the base URL for dated pages.
type SourceConfig struct {
	FeedURL string `mapstructure:"feed_url" yaml:"feed_url"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// TransportConfig configures decode strategies and the command escalation.
type TransportConfig struct {
	CommandEnabled        bool   `mapstructure:"command_enabled" yaml:"command_enabled"`
	CommandPath           string `mapstructure:"command_path" yaml:"command_path"`
	CommandTimeoutSeconds int    `mapstructure:"command_timeout_seconds" yaml:"command_timeout_seconds"`
	BrotliEnabled         bool   `mapstructure:"brotli_enabled" yaml:"brotli_enabled"`
	// RequestsPerSecond paces requests per host; zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// HeadlessConfig configures the headless browser escalation.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel" yaml:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds" yaml:"nav_timeout_seconds"`
}

// GridConfig configures grid reconstruction.
type GridConfig struct {
	DebugEnabled bool `mapstructure:"debug_enabled" yaml:"debug_enabled"`
}

// StorageConfig selects where grid debug artifacts are written.
type StorageConfig struct {
	Backend string             `mapstructure:"backend" yaml:"backend"`
	Bucket  string             `mapstructure:"bucket" yaml:"bucket"`
	Prefix  string             `mapstructure:"prefix" yaml:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local" yaml:"local"`
}

// LocalStorageConfig configures the filesystem backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// DatabaseConfig controls the retrieval audit log. An empty DSN disables it.
type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn" yaml:"dsn"`
	Table                  string `mapstructure:"table" yaml:"table"`
	MaxConns               int32  `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes" yaml:"max_conn_lifetime_minutes"`
	EnsureSchema           bool   `mapstructure:"ensure_schema" yaml:"ensure_schema"`
}

// PubSubConfig holds metadata for puzzle notifications. An empty project
// selects the in-memory publisher.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	TopicName string `mapstructure:"topic_name" yaml:"topic_name"`
}

// Trace exporters. Auto picks Cloud Trace when a project is known.
const (
	TraceExporterAuto   = "auto"
	TraceExporterGCP    = "gcp"
	TraceExporterStdout = "stdout"
)

// TracingConfig toggles the OpenTelemetry SDK and selects its exporter. An
// empty project falls back to pubsub.project_id.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	Exporter    string `mapstructure:"exporter" yaml:"exporter"`
	ProjectID   string `mapstructure:"project_id" yaml:"project_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("logging.development", false)
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("source.feed_url", "https://nyxcrossword.com/feed")
	v.SetDefault("source.base_url", "https://nyxcrossword.com")
	v.SetDefault("transport.command_enabled", true)
	v.SetDefault("transport.command_path", "curl")
	v.SetDefault("transport.command_timeout_seconds", 15)
	v.SetDefault("transport.brotli_enabled", true)
	v.SetDefault("transport.requests_per_second", 2.0)
	v.SetDefault("transport.burst", 4)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("grid.debug_enabled", false)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.local.base_dir", "./artifacts")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "puzzle_retrievals")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime_minutes", 30)
	v.SetDefault("database.ensure_schema", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "crossword-puzzles")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "crossword-scraper")
	v.SetDefault("tracing.exporter", TraceExporterAuto)
	v.SetDefault("tracing.project_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Source.FeedURL == "" || c.Source.BaseURL == "" {
		return fmt.Errorf("source.feed_url and source.base_url must be set")
	}
	if c.Transport.CommandEnabled {
		if c.Transport.CommandPath == "" {
			return fmt.Errorf("transport.command_path must be set when the command fetcher is enabled")
		}
		if c.Transport.CommandTimeoutSeconds <= 0 {
			return fmt.Errorf("transport.command_timeout_seconds must be > 0")
		}
	}
	if c.Transport.RequestsPerSecond < 0 {
		return fmt.Errorf("transport.requests_per_second must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs (got %q)", c.Storage.Backend)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "", TraceExporterAuto, TraceExporterStdout:
		case TraceExporterGCP:
			if c.TraceProjectID() == "" {
				return fmt.Errorf("tracing.project_id or pubsub.project_id must be set for the gcp exporter")
			}
		default:
			return fmt.Errorf("tracing.exporter must be one of auto, gcp, stdout (got %q)", c.Tracing.Exporter)
		}
	}
	return nil
}

// TraceProjectID is the Cloud Trace project.
func (c Config) TraceProjectID() string {
	if c.Tracing.ProjectID != "" {
		return c.Tracing.ProjectID
	}
	return c.PubSub.ProjectID
}

// TraceExporter resolves auto to gcp or stdout.
func (c Config) TraceExporter() string {
	switch c.Tracing.Exporter {
	case TraceExporterGCP, TraceExporterStdout:
		return c.Tracing.Exporter
	}
	if c.TraceProjectID() != "" {
		return TraceExporterGCP
	}
	return TraceExporterStdout
}

// FetchTimeout is the per-call budget of the primary fetcher.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CommandTimeout is the per-call budget of the command fetcher.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.Transport.CommandTimeoutSeconds) * time.Second
}

// NavTimeout is the headless navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
