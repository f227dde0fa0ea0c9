package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogsCmd_ShowsFilteredEntries(t *testing.T) {
	// Given: a log file with a warning and an info entry
	setupCLIEnv(t)
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"index_opened"}`+"\n"+
			`{"time":"2026-01-02T10:00:01Z","level":"WARN","msg":"query_degraded","error_code":"ERR_303"}`+"\n"), 0o644))

	// When: showing warnings and above
	out, err := runCLI(t, "", "logs", "--file", path, "--level", "warn", "--no-color")

	// Then: only the warning is printed
	require.NoError(t, err)
	assert.Contains(t, out, "WARN  query_degraded error_code=ERR_303")
	assert.NotContains(t, out, "index_opened")
}

func TestLogsCmd_InvalidFilter(t *testing.T) {
	setupCLIEnv(t)

	_, err := runCLI(t, "", "logs", "--file", "/dev/null", "--filter", "([")

	assert.ErrorContains(t, err, "--filter")
}
