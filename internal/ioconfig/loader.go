// Package ioconfig provides I/O operations for loading configuration from
// files, environment and flags. This is an impure package that handles file
// system and flag operations.
package ioconfig

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ecodata/aqsync/pkg/config"
	"github.com/ecodata/aqsync/pkg/errcode"
)

// EnvPrefix is the prefix of all environment overrides, so
// database.password becomes AQSYNC_DATABASE_PASSWORD.
const EnvPrefix = "AQSYNC"

// Load reads configuration from a YAML file and returns a validated Config.
// If configPath is empty, it searches default locations:
//   - ./aqsync.yaml
//   - ~/.config/aqsync/aqsync.yaml
//
// Environment variables with the AQSYNC_ prefix override file values.
// Returns error if the file is malformed or validation fails.
func Load(configPath string) (*config.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("aqsync")
		v.AddConfigPath(".")

		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "aqsync"))
		}
	}

	cfg := config.New()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			applyEnv(v, cfg)
			return cfg, cfg.Validate()
		}
		// An explicit config path must exist.
		if configPath != "" {
			return nil, errcode.Wrap(errcode.ConfigError, "cannot read config file", err)
		}
		applyEnv(v, cfg)
		return cfg, cfg.Validate()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errcode.Wrap(errcode.ConfigError, "cannot unmarshal config", err)
	}
	applyEnv(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv patches config fields whose environment override is set.
// AutomaticEnv does not merge into Unmarshal for keys absent from the
// file, so the sensitive and deployment-specific ones are read directly.
func applyEnv(v *viper.Viper, cfg *config.Config) {
	if s := v.GetString("database.host"); s != "" {
		cfg.Database.Host = s
	}
	if p := v.GetInt("database.port"); p != 0 {
		cfg.Database.Port = p
	}
	if s := v.GetString("database.user"); s != "" {
		cfg.Database.User = s
	}
	if s := v.GetString("database.password"); s != "" {
		cfg.Database.Password = s
	}
	if s := v.GetString("database.database"); s != "" {
		cfg.Database.Database = s
	}
	if s := v.GetString("source.base_url"); s != "" {
		cfg.Source.BaseURL = strings.TrimRight(s, "/")
	}
	if s := v.GetString("log.level"); s != "" {
		cfg.Log.Level = s
	}
}

// BindFlags binds cobra command flags to viper and returns updated config.
// CLI flags take precedence over config file and environment values.
func BindFlags(cmd *cobra.Command, cfg *config.Config) (*config.Config, error) {
	v := viper.New()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, errcode.Wrap(errcode.ConfigError, "cannot bind flags", err)
	}

	if v.IsSet("host") {
		cfg.Database.Host = v.GetString("host")
	}
	if v.IsSet("port") {
		cfg.Database.Port = v.GetInt("port")
	}
	if v.IsSet("user") {
		cfg.Database.User = v.GetString("user")
	}
	if v.IsSet("password") {
		cfg.Database.Password = v.GetString("password")
	}
	if v.IsSet("database") {
		cfg.Database.Database = v.GetString("database")
	}
	if v.IsSet("ssl-mode") {
		cfg.Database.SSLMode = v.GetString("ssl-mode")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
