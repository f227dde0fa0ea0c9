// Package daemon runs shadowfinder as a long-lived server: it owns the
// index, restores and saves snapshots, watches the inbox, compacts in the
// background and answers JSON-RPC requests on a Unix socket.
package daemon

import (
	"fmt"
	"time"
)

// Config holds the socket-level settings shared by server and client.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	PIDPath string

	// Timeout bounds one request, on both sides.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod bounds the final snapshot on shutdown.
	// Default: 10s
	ShutdownGracePeriod time.Duration
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// WithDefaults fills zero durations.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ShutdownGracePeriod <= 0 {
		c.ShutdownGracePeriod = 10 * time.Second
	}
	return c
}
