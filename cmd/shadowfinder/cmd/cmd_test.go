package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// cliEnv isolates a test from the user's config, data and log files.
type cliEnv struct {
	dataDir string
	home    string
	socket  string
}

func setupCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	home := t.TempDir()
	env := cliEnv{
		dataDir: filepath.Join(t.TempDir(), "data"),
		home:    home,
		socket:  filepath.Join(os.TempDir(), fmt.Sprintf("sf-cli-%d.sock", time.Now().UnixNano())),
	}
	t.Cleanup(func() { _ = os.Remove(env.socket) })

	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("SHADOWFINDER_DATA_DIR", env.dataDir)
	t.Setenv("SHADOWFINDER_LOG_FILE", filepath.Join(home, "logs", "shadowfinder.log"))
	t.Setenv("SHADOWFINDER_SOCKET", env.socket)
	t.Setenv("SHADOWFINDER_INGEST_RATE", "100000")
	t.Setenv("SHADOWFINDER_SNAPSHOT_INTERVAL", "0s")
	return env
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	// Execute cleans up on error; tests call the command directly.
	_ = stopProfilingAndLogging(cmd, nil)
	return out.String(), err
}

func writeEvents(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

var sampleEvents = []string{
	`{"channel_id":"-100","item_id":1,"caption":"Solo Leveling ch 1","file_id":"F1","media_kind":"file","size_bytes":2048,"timestamp":1700000000}`,
	`{"channel_id":"-100","item_id":2,"caption":"Solo Leveling ch 2","file_id":"F2","media_kind":"file","size_bytes":4096,"timestamp":1700000100}`,
	`{"channel_id":"-200","item_id":9,"caption":"mirror","file_id":"F1","media_kind":"file","timestamp":1700000200}`,
	`{"channel_id":"-100","item_id":3,"caption":"Naruto ep 1","file_id":"V1","media_kind":"video","timestamp":1700000300}`,
	`{broken`,
}
