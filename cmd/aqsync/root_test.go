package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRootCommand_HasSubcommands verifies root command structure
func TestRootCommand_HasSubcommands(t *testing.T) {
	cmd := getRootCmd()
	require.NotNil(t, cmd, "Root command should exist")

	found := map[string]bool{}
	for _, c := range cmd.Commands() {
		found[c.Name()] = true
	}
	for _, name := range []string{"provision", "sync", "serve", "status"} {
		assert.True(t, found[name], "%s subcommand should exist", name)
	}
}

// TestRootCommand_ConfigFlag verifies --config flag exists
func TestRootCommand_ConfigFlag(t *testing.T) {
	cmd := getRootCmd()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "--config flag should exist")
	assert.Equal(t, "string", configFlag.Value.Type())

	targetsFlag := cmd.PersistentFlags().Lookup("targets")
	require.NotNil(t, targetsFlag, "--targets flag should exist")
}

// TestRootCommand_Help verifies help text includes usage
func TestRootCommand_Help(t *testing.T) {
	cmd := getRootCmd()

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})
	err := cmd.Execute()
	require.NoError(t, err)

	helpText := buf.String()
	assert.Contains(t, helpText, "aqsync")
	assert.Contains(t, helpText, "Available Commands")
	assert.Contains(t, helpText, "provision")
	assert.Contains(t, helpText, "sync")
}

// TestSyncCommand_Flags verifies the sync command flag set
func TestSyncCommand_Flags(t *testing.T) {
	cmd := getSyncCmd()

	for _, name := range []string{
		"mode", "countries", "pollutants", "date-start", "date-end",
		"url", "urls-file", "dataset", "workers", "no-progress",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "--%s flag should exist", name)
	}

	mode := cmd.Flags().Lookup("mode")
	require.NotNil(t, mode)
	assert.Equal(t, "incremental", mode.DefValue)
}
