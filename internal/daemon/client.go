package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
	"github.com/anupammaurya6767/shadowfinder/internal/search"
)

// Client talks to a running server over its Unix socket. Each call uses
// a fresh connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a daemon client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{socketPath: cfg.SocketPath, timeout: timeout}
}

// Connect establishes a connection to the daemon. A missing or refusing
// socket yields a retryable DaemonOffline error.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, sferrors.New(sferrors.ErrCodeDaemonOffline, "server is not running", err).
			WithDetail("socket", c.socketPath).
			WithSuggestion("start it with 'shadowfinder serve' or use --offline")
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// call sends one request and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	req := Request{JSONRPC: "2.0", Method: method, ID: uuid.NewString()}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		req.Params = raw
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("receive response: %w", err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w", method, resp.Error.FinderError())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	if err := c.call(ctx, MethodPing, nil, &res); err != nil {
		return err
	}
	if !res.Pong {
		return errors.New("ping: unexpected response")
	}
	return nil
}

// Search runs a query on the server.
func (c *Client) Search(ctx context.Context, params SearchParams) (*search.Result, error) {
	var res search.Result
	if err := c.call(ctx, MethodSearch, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ingest sends events or file paths to the server and waits for the run.
func (c *Client) Ingest(ctx context.Context, params IngestParams) (*ingest.Stats, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var res ingest.Stats
	if err := c.call(ctx, MethodIngest, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var res StatusResult
	if err := c.call(ctx, MethodStatus, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Snapshot asks the server to write its recovery snapshot now.
func (c *Client) Snapshot(ctx context.Context) (*SnapshotResult, error) {
	var res SnapshotResult
	if err := c.call(ctx, MethodSnapshot, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Compact asks the server to drop tombstoned postings now.
func (c *Client) Compact(ctx context.Context) (*CompactResult, error) {
	var res CompactResult
	if err := c.call(ctx, MethodCompact, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
