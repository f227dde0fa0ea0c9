package mcp

import (
	"context"
	"errors"
	"fmt"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
)

// MCP error codes. The -32000 range is reserved for implementation errors.
const (
	// ErrCodeIndexUnavailable means the index cannot be reached or is damaged.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeTimeout means the request ran out of time or was canceled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is an error reported to MCP clients.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an internal error to an MCPError. Finder errors keep
// their message and suggestion; anything else becomes a generic internal
// error so details do not leak to clients.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var me *MCPError
	if errors.As(err, &me) {
		return me
	}
	var fe *sferrors.FinderError
	if errors.As(err, &fe) {
		return mapFinderError(fe)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError returns an invalid-params error with msg.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError reports an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

func mapFinderError(fe *sferrors.FinderError) *MCPError {
	message := fe.Message
	if fe.Suggestion != "" {
		message = fmt.Sprintf("%s %s", fe.Message, fe.Suggestion)
	}

	switch fe.Category {
	case sferrors.CategoryQuery:
		if fe.Code == sferrors.ErrCodeQueryTimeout {
			return &MCPError{Code: ErrCodeTimeout, Message: message}
		}
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case sferrors.CategoryIngest:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case sferrors.CategoryStore:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	default:
		if fe.Code == sferrors.ErrCodeDaemonOffline {
			return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
