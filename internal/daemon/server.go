package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
	"github.com/anupammaurya6767/shadowfinder/internal/search"
)

// Handler serves RPC requests. *Daemon implements it.
type Handler interface {
	Search(ctx context.Context, params SearchParams) (*search.Result, error)
	Ingest(ctx context.Context, params IngestParams) (ingest.Stats, error)
	Snapshot(ctx context.Context) (SnapshotResult, error)
	Compact(ctx context.Context) (CompactResult, error)
	Status() StatusResult
}

// Server listens on a Unix socket and handles newline-delimited JSON-RPC
// requests. A connection may carry several requests in sequence.
type Server struct {
	socketPath string
	handler    Handler
	timeout    time.Duration

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for socketPath. timeout bounds each request
// and the idle time between requests on one connection.
func NewServer(socketPath string, handler Handler, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{socketPath: socketPath, handler: handler, timeout: timeout}
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	// A stale socket from a crashed server; the data dir lock guarantees
	// no live server owns it.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("restrict socket permissions: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()
	slog.Info("server_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isShutdown() {
				break
			}
			slog.Error("accept_failed", slog.String("error", err.Error()))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
			return
		}
		var req Request
		if err := decoder.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !isTimeout(err) && !s.isShutdown() {
				_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
			}
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp := s.handleRequest(reqCtx, req)
		cancel()
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// handleRequest dispatches a request to the handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "invalid JSON-RPC 2.0 request")
	}
	start := time.Now()
	defer func() {
		slog.Debug("rpc_handled",
			slog.String("method", req.Method),
			slog.String("id", req.ID),
			slog.Duration("elapsed", time.Since(start)))
	}()

	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		return NewSuccessResponse(req.ID, s.handler.Status())

	case MethodSearch:
		var params SearchParams
		if err := decodeParams(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		res, err := s.handler.Search(ctx, params)
		if err != nil {
			return errorResponse(req.ID, ErrCodeSearchFailed, err)
		}
		return NewSuccessResponse(req.ID, res)

	case MethodIngest:
		var params IngestParams
		if err := decodeParams(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		if err := params.Validate(); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		stats, err := s.handler.Ingest(ctx, params)
		if err != nil {
			return errorResponse(req.ID, ErrCodeIngestFailed, err)
		}
		return NewSuccessResponse(req.ID, stats)

	case MethodSnapshot:
		res, err := s.handler.Snapshot(ctx)
		if err != nil {
			return errorResponse(req.ID, ErrCodeSnapshotFailed, err)
		}
		return NewSuccessResponse(req.ID, res)

	case MethodCompact:
		res, err := s.handler.Compact(ctx)
		if err != nil {
			return errorResponse(req.ID, ErrCodeInternalError, err)
		}
		return NewSuccessResponse(req.ID, res)

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
