package ioconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "aqsync.yaml")
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)
	return configPath
}

const baseConfig = `
database:
  host: config-file-host
  port: 5432
  user: postgres
  password: postgres
  database: airquality
  ssl_mode: disable
  batch_size: 4000
  max_connections: 16
  min_connections: 2
source:
  base_url: https://eeadmz1-downloads-api-appservice.azurewebsites.net
  dataset: 1
sync:
  workers: 8
  lookback_days: 7
log:
  level: info
  format: json
`

func TestLoad_ConfigFile(t *testing.T) {
	configPath := writeConfig(t, baseConfig)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "config-file-host", cfg.Database.Host)
	assert.Equal(t, 4000, cfg.Database.BatchSize)
	assert.Equal(t, 8, cfg.Sync.Workers)
}

func TestLoad_EnvVarOverride(t *testing.T) {
	configPath := writeConfig(t, baseConfig)

	t.Setenv("AQSYNC_DATABASE_HOST", "env-override-host")
	t.Setenv("AQSYNC_DATABASE_PASSWORD", "secret123")
	t.Setenv("AQSYNC_LOG_LEVEL", "debug")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "env-override-host", cfg.Database.Host)
	assert.Equal(t, "secret123", cfg.Database.Password)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Values without env overrides remain from the file.
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
}

func TestLoad_NoConfigFile_Defaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("AQSYNC_DATABASE_HOST", "env-only-host")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-only-host", cfg.Database.Host)
	// Defaults fill the rest.
	assert.Equal(t, 5000, cfg.Database.BatchSize)
	assert.Equal(t, 1, cfg.Source.Dataset)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  host: localhost
  port: 5432
  user: postgres
  password: postgres
  database: airquality
  ssl_mode: bogus
`)

	_, err := Load(configPath)
	assert.Error(t, err)
}
