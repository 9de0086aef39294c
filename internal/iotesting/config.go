// Package iotesting provides shared test utilities for integration tests.
// This is an internal package for test infrastructure only.
package iotesting

import (
	"github.com/ecodata/aqsync/internal/ioconfig"
	pkgconfig "github.com/ecodata/aqsync/pkg/config"
)

// TestDatabaseName is the database name used for all integration tests.
// This ensures tests never accidentally run against production databases.
const TestDatabaseName = "airquality_test"

// GetTestConfig returns a configuration suitable for integration tests.
// It loads the standard config (from file, environment or defaults) and
// overrides the database name to TestDatabaseName for safety.
func GetTestConfig() *pkgconfig.Config {
	cfg, err := ioconfig.Load("")
	if err != nil {
		cfg = pkgconfig.New()
	}

	cfg.Database.Database = TestDatabaseName
	return cfg
}

// GetTestDatabaseConfig returns only the database configuration for tests.
func GetTestDatabaseConfig() *pkgconfig.DatabaseConfig {
	cfg := GetTestConfig()
	return &cfg.Database
}
