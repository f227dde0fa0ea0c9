package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersCommands(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// Then: every top-level command is reachable
	for _, name := range []string{"serve", "stop", "search", "ingest", "status", "snapshot", "compact", "config", "mcp", "logs", "doctor", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{"config-dir", "debug", "profile-cpu", "profile-mem", "profile-trace"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	setupCLIEnv(t)

	_, err := runCLI(t, "", "search")

	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	tm, err := parseDate("after", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2024, tm.Year())

	tm, err = parseDate("after", "2024-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, tm.Hour())

	tm, err = parseDate("after", "")
	require.NoError(t, err)
	assert.True(t, tm.IsZero())

	_, err = parseDate("after", "March")
	assert.ErrorContains(t, err, "--after")
}
