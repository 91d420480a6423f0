// Package config loads and validates the ProcureFlow configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the PF_ prefix (e.g., PF_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Anomaly   AnomalyConfig   `mapstructure:"anomaly"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetAddress returns the host:port listen address for the HTTP server.
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// AuthConfig holds token verification configuration. ProcureFlow does not
// issue tokens — the identity service does. This section only configures how
// incoming bearer tokens are verified.
type AuthConfig struct {
	// JWTSecret is the shared HS256 secret used to verify bearer tokens.
	JWTSecret string `mapstructure:"jwt_secret"`
	// Issuer, when non-empty, must match the token's iss claim.
	Issuer string `mapstructure:"issuer"`
}

// LoggingConfig holds log output configuration
type LoggingConfig struct {
	// Format is "json" or "text"
	Format string `mapstructure:"format"`
	// Level is "debug", "info", "warn", or "error"
	Level string `mapstructure:"level"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig controls the Prometheus side-channel endpoint
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig controls the pprof side-channel endpoint
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AnomalyConfig holds configuration for the audit-log anomaly pipeline: the
// remote classifier endpoint and the queue/processor tuning knobs.
type AnomalyConfig struct {
	// Enabled controls whether the background processor is started. The audit
	// writer works regardless; with the processor disabled records simply stay
	// unscored.
	Enabled bool `mapstructure:"enabled"`
	// ServiceURL is the base URL of the anomaly detection service,
	// e.g. http://localhost:8000
	ServiceURL string `mapstructure:"service_url"`
	// ProcessInterval is how often the background processor drains the queue.
	ProcessInterval time.Duration `mapstructure:"process_interval"`
	// BatchSize is the maximum number of queue items handled per drain cycle.
	BatchSize int `mapstructure:"batch_size"`
	// MaxRetries is how many times a failed classification is re-queued before
	// the item is dropped.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the fixed delay before a re-queued item becomes eligible
	// for another attempt.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// QueueCapacity bounds the in-memory queue; enqueues beyond it are dropped
	// (and logged) rather than growing without limit.
	QueueCapacity int `mapstructure:"queue_capacity"`
	// HealthTimeout bounds the classifier health-check call.
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
	// ClassifyTimeout bounds a single classify call. The remote model may be
	// slow, so this is deliberately much longer than the health check.
	ClassifyTimeout time.Duration `mapstructure:"classify_timeout"`
}

// bindEnvVars explicitly binds every config key to its PF_-prefixed environment
// variable. This is necessary because AutomaticEnv() doesn't work well with
// nested structs during Unmarshal: viper only resolves environment variables
// for keys it has already seen, and keys absent from both the defaults and the
// YAML file would otherwise be invisible.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",
		"auth.jwt_secret",
		"auth.issuer",
		"logging.format",
		"logging.level",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",
		"anomaly.enabled",
		"anomaly.service_url",
		"anomaly.process_interval",
		"anomaly.batch_size",
		"anomaly.max_retries",
		"anomaly.retry_delay",
		"anomaly.queue_capacity",
		"anomaly.health_timeout",
		"anomaly.classify_timeout",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var for %s: %w", key, err)
		}
	}
	return nil
}

// Load reads configuration from the given path (or the working directory when
// empty), applies environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine — defaults plus env vars are a complete
		// configuration. Anything else (e.g. malformed YAML) is an error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Anomaly.Enabled && c.Anomaly.ServiceURL == "" {
		return fmt.Errorf("anomaly.service_url is required when anomaly.enabled=true")
	}
	if c.Anomaly.BatchSize <= 0 {
		return fmt.Errorf("anomaly.batch_size must be positive, got %d", c.Anomaly.BatchSize)
	}
	if c.Anomaly.MaxRetries < 0 {
		return fmt.Errorf("anomaly.max_retries must not be negative, got %d", c.Anomaly.MaxRetries)
	}
	if c.Anomaly.ProcessInterval <= 0 {
		return fmt.Errorf("anomaly.process_interval must be positive, got %v", c.Anomaly.ProcessInterval)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "procureflow")
	v.SetDefault("database.user", "procureflow")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	// Logging defaults
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.level", "info")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)

	// Anomaly pipeline defaults. A 10s drain cadence keeps verdict lag low
	// without hammering a slow model; three retries with a 30s delay ride out
	// classifier restarts.
	v.SetDefault("anomaly.enabled", true)
	v.SetDefault("anomaly.service_url", "http://localhost:8000")
	v.SetDefault("anomaly.process_interval", "10s")
	v.SetDefault("anomaly.batch_size", 10)
	v.SetDefault("anomaly.max_retries", 3)
	v.SetDefault("anomaly.retry_delay", "30s")
	v.SetDefault("anomaly.queue_capacity", 10000)
	v.SetDefault("anomaly.health_timeout", "2s")
	v.SetDefault("anomaly.classify_timeout", "30s")
}
