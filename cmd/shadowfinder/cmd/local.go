package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/config"
	"github.com/anupammaurya6767/shadowfinder/internal/daemon"
)

// runningServer returns a client when a server answers on the socket.
func runningServer(cfg *config.Config) (*daemon.Client, bool) {
	client := daemon.NewClient(daemon.SocketConfig(cfg))
	return client, client.IsRunning()
}

// openLocal opens the index in this process. A read-only open takes no
// lock and never writes the snapshot back.
func openLocal(ctx context.Context, cfg *config.Config, readOnly bool, opts ...daemon.Option) (*daemon.Daemon, error) {
	d, err := daemon.NewDaemon(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if readOnly {
		err = d.OpenReadOnly(ctx)
	} else {
		err = d.Open(ctx)
	}
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// parseDate accepts an RFC 3339 time or a YYYY-MM-DD date (UTC midnight).
func parseDate(flag, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("--%s: expected YYYY-MM-DD or RFC 3339 time, got %q", flag, v)
}
