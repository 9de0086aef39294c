package config

import (
	"github.com/ecodata/aqsync/pkg/errcode"
)

// Validate checks cross-field constraints that Option functions cannot
// enforce in isolation. A default config always passes.
func (c *Config) Validate() error {
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return errcode.Newf(errcode.ConfigError,
			"database port %d out of range", c.Database.Port)
	}
	if c.Database.BatchSize <= 0 || c.Database.BatchSize > 5000 {
		return errcode.Newf(errcode.ConfigError,
			"batch size %d must be in 1..5000", c.Database.BatchSize)
	}
	switch c.Database.SSLMode {
	case "disable", "require", "verify-ca", "verify-full":
	default:
		return errcode.Newf(errcode.ConfigError,
			"invalid ssl_mode %q", c.Database.SSLMode)
	}
	if c.Source.Dataset < 1 || c.Source.Dataset > 3 {
		return errcode.Newf(errcode.ConfigError,
			"dataset %d must be 1, 2 or 3", c.Source.Dataset)
	}
	if c.Sync.Workers <= 0 {
		return errcode.Newf(errcode.ConfigError,
			"workers must be positive, got %d", c.Sync.Workers)
	}
	// The pool is the only cross-worker shared resource; undersizing it
	// relative to the worker pool causes self-induced starvation.
	if c.Database.MaxConnections < c.Sync.Workers {
		return errcode.Newf(errcode.ConfigError,
			"max_connections (%d) must be at least the worker count (%d)",
			c.Database.MaxConnections, c.Sync.Workers)
	}
	if c.Sync.LookbackDays <= 0 || c.Sync.HourlyLookbackHours <= 0 {
		return errcode.Newf(errcode.ConfigError, "lookback windows must be positive")
	}
	if c.Sync.OverlapHours < 0 {
		return errcode.Newf(errcode.ConfigError, "overlap_hours must not be negative")
	}
	if c.Store.ChunkIntervalHours <= 0 ||
		c.Store.CompressAfterDays <= 0 ||
		c.Store.RollupRefreshMinutes <= 0 {
		return errcode.Newf(errcode.ConfigError, "store policy intervals must be positive")
	}
	return nil
}
