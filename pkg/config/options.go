package config

import "strings"

// Option is a function that modifies a Config.
// Options ignore empty or out-of-range inputs so a partially
// specified override never leaves the config invalid.
type Option func(*Config)

// OptDatabaseHost sets the PostgreSQL server hostname or IP address.
func OptDatabaseHost(s string) Option {
	s = strings.TrimSpace(s)
	return func(c *Config) {
		if s != "" {
			c.Database.Host = s
		}
	}
}

// OptDatabasePort sets the PostgreSQL server port number.
func OptDatabasePort(i int) Option {
	return func(c *Config) {
		if i > 0 && i <= 65535 {
			c.Database.Port = i
		}
	}
}

// OptDatabaseUser sets the PostgreSQL database username.
func OptDatabaseUser(s string) Option {
	s = strings.TrimSpace(s)
	return func(c *Config) {
		if s != "" {
			c.Database.User = s
		}
	}
}

// OptDatabasePassword sets the PostgreSQL database password.
func OptDatabasePassword(s string) Option {
	return func(c *Config) {
		if s != "" {
			c.Database.Password = s
		}
	}
}

// OptDatabaseName sets the PostgreSQL database name to connect to.
func OptDatabaseName(s string) Option {
	s = strings.TrimSpace(s)
	return func(c *Config) {
		if s != "" {
			c.Database.Database = s
		}
	}
}

// OptDatabaseBatchSize sets the number of records written per upsert batch.
func OptDatabaseBatchSize(i int) Option {
	return func(c *Config) {
		if i > 0 && i <= 5000 {
			c.Database.BatchSize = i
		}
	}
}

// OptSourceBaseURL sets the distribution API base URL.
func OptSourceBaseURL(s string) Option {
	s = strings.TrimRight(strings.TrimSpace(s), "/")
	return func(c *Config) {
		if s != "" {
			c.Source.BaseURL = s
		}
	}
}

// OptSourceDataset sets the dataset variant (1=UTD, 2=verified, 3=historical).
func OptSourceDataset(i int) Option {
	return func(c *Config) {
		if i >= 1 && i <= 3 {
			c.Source.Dataset = i
		}
	}
}

// OptSyncCountries sets the default country scope.
func OptSyncCountries(cc []string) Option {
	return func(c *Config) {
		if len(cc) > 0 {
			c.Sync.Countries = cc
		}
	}
}

// OptSyncPollutants sets the default pollutant scope.
func OptSyncPollutants(pp []string) Option {
	return func(c *Config) {
		if len(pp) > 0 {
			c.Sync.Pollutants = pp
		}
	}
}

// OptSyncWorkers sets the bounded worker-pool size.
func OptSyncWorkers(i int) Option {
	return func(c *Config) {
		if i > 0 {
			c.Sync.Workers = i
		}
	}
}

// OptSyncLookbackDays sets the full-sync lookback window.
func OptSyncLookbackDays(i int) Option {
	return func(c *Config) {
		if i > 0 {
			c.Sync.LookbackDays = i
		}
	}
}

// OptLogLevel sets the logging level.
// Valid values: "debug", "info", "warn", "error".
func OptLogLevel(s string) Option {
	s = strings.ToLower(strings.TrimSpace(s))
	return func(c *Config) {
		switch s {
		case "debug", "info", "warn", "error":
			c.Log.Level = s
		}
	}
}

// OptLogFormat sets the log output format, "json" or "text".
func OptLogFormat(s string) Option {
	s = strings.ToLower(strings.TrimSpace(s))
	return func(c *Config) {
		switch s {
		case "json", "text":
			c.Log.Format = s
		}
	}
}

// OptServerPort sets the HTTP trigger surface port.
func OptServerPort(i int) Option {
	return func(c *Config) {
		if i > 0 && i <= 65535 {
			c.Server.Port = i
		}
	}
}

// Update applies options to a config in order.
func (c *Config) Update(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
