package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecodata/aqsync/internal/ioconfig"
	pkgconfig "github.com/ecodata/aqsync/pkg/config"
	"github.com/ecodata/aqsync/pkg/logger"
	"github.com/ecodata/aqsync/pkg/targets"
)

var (
	cfgFile     string
	targetsFile string

	cfg     *pkgconfig.Config
	catalog *targets.Catalog
	log     *slog.Logger
)

func getRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aqsync",
		Short: "aqsync synchronizes an air quality time-series store",
		Long: `aqsync keeps a TimescaleDB store in step with the European air
quality distribution service: it fetches columnar measurement files,
normalizes them into stations, sampling points and measurements, and
upserts them idempotently.

The tool provides four main phases:
  - provision: create the schema, hypertable and rollup policies
  - sync: run one synchronization (full, incremental, hourly, range, urls)
  - serve: expose the REST trigger and status API
  - status: inspect recent sync operations

Configuration precedence (highest to lowest):
  1. CLI flags (--host, --port, etc.)
  2. Environment variables (AQSYNC_*)
  3. Config file (aqsync.yaml)
  4. Built-in defaults

Environment Variables:
  Nested fields use underscores (database.host → AQSYNC_DATABASE_HOST).

  Examples:
    AQSYNC_DATABASE_HOST        PostgreSQL host
    AQSYNC_DATABASE_PASSWORD    PostgreSQL password
    AQSYNC_SOURCE_BASE_URL      Distribution API base URL
    AQSYNC_LOG_LEVEL            Log level (debug/info/warn/error)`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = ioconfig.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg, err = ioconfig.BindFlags(cmd, cfg); err != nil {
				return err
			}

			log = logger.New(&cfg.Log, os.Stderr)

			if targetsFile != "" {
				catalog, err = targets.Load(targetsFile)
				if err != nil {
					return fmt.Errorf("failed to load targets: %w", err)
				}
			} else {
				catalog = targets.Default()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./aqsync.yaml or ~/.config/aqsync/aqsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&targetsFile, "targets", "",
		"targets catalog file overriding the built-in countries and pollutants")
	rootCmd.PersistentFlags().String("host", "", "PostgreSQL host")
	rootCmd.PersistentFlags().Int("port", 0, "PostgreSQL port")
	rootCmd.PersistentFlags().String("user", "", "PostgreSQL user")
	rootCmd.PersistentFlags().String("password", "", "PostgreSQL password")
	rootCmd.PersistentFlags().String("database", "", "database name")
	rootCmd.PersistentFlags().String("ssl-mode", "", "PostgreSQL sslmode")

	rootCmd.AddCommand(getProvisionCmd())
	rootCmd.AddCommand(getSyncCmd())
	rootCmd.AddCommand(getServeCmd())
	rootCmd.AddCommand(getStatusCmd())

	return rootCmd
}

// getConfig returns the loaded configuration (for use in subcommands).
func getConfig() *pkgconfig.Config {
	return cfg
}
