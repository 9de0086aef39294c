// Package config provides configuration management for aqsync.
//
// This package has no I/O dependencies; loading from files, environment
// variables, and CLI flags happens in internal/ioconfig.
//
// Precedence (highest to lowest): CLI flags > env vars > aqsync.yaml > defaults.
//
// Environment variables use the AQSYNC_ prefix with underscores for
// nesting (database.host → AQSYNC_DATABASE_HOST).
package config

import "fmt"

// Config represents the complete aqsync configuration.
type Config struct {
	// Database contains PostgreSQL/TimescaleDB connection settings.
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Source contains settings for the remote Parquet distribution API.
	Source SourceConfig `mapstructure:"source" yaml:"source"`

	// Sync contains scope and concurrency settings for sync runs.
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Store contains partition/compression/rollup policy parameters.
	// Applied once at provisioning time, never on the runtime path.
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Server contains HTTP trigger surface settings.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`

	// SSLMode is one of "disable", "require", "verify-ca", "verify-full".
	SSLMode string `mapstructure:"ssl_mode" yaml:"ssl_mode"`

	// BatchSize is the number of records written per upsert batch.
	// Measurements carry 11 bind parameters per row, so values above
	// 5000 would exceed PostgreSQL's 65535-parameter limit.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// MaxConnections sizes the pgx pool. Must comfortably exceed the
	// sync worker count or workers starve each other on checkouts.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections"`
	MinConnections int `mapstructure:"min_connections" yaml:"min_connections"`
}

// SourceConfig describes the remote distribution API.
type SourceConfig struct {
	// BaseURL of the download service.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Dataset variant: 1 = up-to-date, 2 = verified, 3 = historical.
	Dataset int `mapstructure:"dataset" yaml:"dataset"`

	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`

	// RequestTimeoutSec bounds a single HTTP request.
	RequestTimeoutSec int `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// SyncConfig contains scope and concurrency settings for sync runs.
type SyncConfig struct {
	// Countries and Pollutants define the default sync scope; both can
	// be overridden per request.
	Countries  []string `mapstructure:"countries" yaml:"countries"`
	Pollutants []string `mapstructure:"pollutants" yaml:"pollutants"`

	// Workers is the bounded worker-pool size for concurrent work units.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// LookbackDays is the window for full syncs and the fallback for
	// incremental syncs with no prior completed run.
	LookbackDays int `mapstructure:"lookback_days" yaml:"lookback_days"`

	// HourlyLookbackHours is the window for hourly syncs.
	HourlyLookbackHours int `mapstructure:"hourly_lookback_hours" yaml:"hourly_lookback_hours"`

	// OverlapHours is subtracted from the incremental watermark so
	// boundary observations are never missed between runs.
	OverlapHours int `mapstructure:"overlap_hours" yaml:"overlap_hours"`

	// UnitTimeoutMin bounds one work unit end to end (fetch, normalize,
	// upsert). A unit exceeding it is a failed unit, not a hung run.
	UnitTimeoutMin int `mapstructure:"unit_timeout_min" yaml:"unit_timeout_min"`
}

// StoreConfig holds the time-series store policy parameters.
type StoreConfig struct {
	// ChunkIntervalHours is the hypertable partition interval.
	ChunkIntervalHours int `mapstructure:"chunk_interval_hours" yaml:"chunk_interval_hours"`

	// CompressAfterDays: partitions strictly older than this are
	// compressed by the store's background policy.
	CompressAfterDays int `mapstructure:"compress_after_days" yaml:"compress_after_days"`

	// RollupRefreshMinutes is the schedule interval of the continuous
	// aggregate refresh policies.
	RollupRefreshMinutes int `mapstructure:"rollup_refresh_minutes" yaml:"rollup_refresh_minutes"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	// ShutdownTimeoutSec bounds graceful shutdown.
	ShutdownTimeoutSec int `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
}

// LogConfig provides typical settings for application logs.
type LogConfig struct {
	// Format can be 'json' or 'text'.
	Format string `mapstructure:"format" yaml:"format"`
	// Level of logging: 'error', 'warn', 'info', 'debug'.
	Level string `mapstructure:"level" yaml:"level"`
}

// New creates a Config with sensible default values.
// The returned config is always valid and ready to use.
func New() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Password:       "postgres",
			Database:       "airquality",
			SSLMode:        "disable",
			BatchSize:      5000,
			MaxConnections: 16,
			MinConnections: 2,
		},
		Source: SourceConfig{
			BaseURL:           "https://eeadmz1-downloads-api-appservice.azurewebsites.net",
			Dataset:           1,
			UserAgent:         "aqsync/1.0",
			RequestTimeoutSec: 300,
			MaxRetries:        3,
		},
		Sync: SyncConfig{
			Countries:           []string{"IT", "FR", "ES", "DE", "NL", "BE", "AT", "PL"},
			Pollutants:          []string{"NO2", "PM10", "PM2.5", "O3", "SO2", "CO"},
			Workers:             8,
			LookbackDays:        7,
			HourlyLookbackHours: 2,
			OverlapHours:        1,
			UnitTimeoutMin:      15,
		},
		Store: StoreConfig{
			ChunkIntervalHours:   24,
			CompressAfterDays:    7,
			RollupRefreshMinutes: 60,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ShutdownTimeoutSec: 10,
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// Addr returns the host:port listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
