package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// FinderError is the structured error type for shadowfinder.
// It carries a stable code so callers can branch with errors.Is.
type FinderError struct {
	// Code is the unique error code (e.g., "ERR_301_INVALID_CURSOR").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Ingest, Store, Query, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinels for errors.Is matching. Only the code is compared.
var (
	ErrMalformedInput  = New(ErrCodeMalformedInput, "malformed input", nil)
	ErrTransientStore  = New(ErrCodeTransientStore, "store temporarily unavailable", nil)
	ErrIndexCorruption = New(ErrCodeIndexCorruption, "index corruption detected", nil)
	ErrInvalidCursor   = New(ErrCodeInvalidCursor, "invalid cursor", nil)
	ErrQueryTooBroad   = New(ErrCodeQueryTooBroad, "query too broad", nil)
	ErrQueryTimeout    = New(ErrCodeQueryTimeout, "query deadline exceeded", nil)
	ErrInvalidQuery    = New(ErrCodeInvalidQuery, "invalid query", nil)
)

// Error implements the error interface.
func (e *FinderError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *FinderError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *FinderError) Is(target error) bool {
	if t, ok := target.(*FinderError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *FinderError) WithDetail(key, value string) *FinderError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *FinderError) WithSuggestion(suggestion string) *FinderError {
	e.Suggestion = suggestion
	return e
}

// New creates a new FinderError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *FinderError {
	return &FinderError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code string, format string, args ...any) *FinderError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a FinderError from an existing error.
func Wrap(code string, err error) *FinderError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// MalformedInput reports an inbound event that cannot be indexed.
func MalformedInput(reason string) *FinderError {
	return New(ErrCodeMalformedInput, reason, nil)
}

// TransientStore reports a write path that is temporarily unavailable.
func TransientStore(reason string, cause error) *FinderError {
	return New(ErrCodeTransientStore, reason, cause)
}

// IndexCorruption reports a violated index invariant.
func IndexCorruption(reason string) *FinderError {
	return New(ErrCodeIndexCorruption, reason, nil).
		WithSuggestion("restart the server or run 'shadowfinder snapshot' to rebuild from the last snapshot")
}

// InvalidCursor reports a cursor that was not produced for this query.
func InvalidCursor(reason string, cause error) *FinderError {
	return New(ErrCodeInvalidCursor, reason, cause).
		WithSuggestion("restart pagination without a cursor")
}

// QueryTooBroad reports a query with no terms and no filters.
func QueryTooBroad() *FinderError {
	return New(ErrCodeQueryTooBroad, "query has no search terms and no filters", nil).
		WithSuggestion("add a search term or a filter such as channel:<id> or type:video")
}

// asFinder extracts a *FinderError anywhere in the chain.
func asFinder(err error) (*FinderError, bool) {
	var fe *FinderError
	if stderrors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if fe, ok := asFinder(err); ok {
		return fe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if fe, ok := asFinder(err); ok {
		return fe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a FinderError.
// Returns empty string if there is none in the chain.
func GetCode(err error) string {
	if fe, ok := asFinder(err); ok {
		return fe.Code
	}
	return ""
}

// GetCategory extracts the category from a FinderError.
func GetCategory(err error) Category {
	if fe, ok := asFinder(err); ok {
		return fe.Category
	}
	return ""
}

// FormatForCLI formats an error for CLI output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	fe, ok := asFinder(err)
	if !ok {
		fe = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", fe.Message))
	if fe.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", fe.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", fe.Code))
	return sb.String()
}

// LogAttrs returns key-value pairs suitable for slog.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}
	fe, ok := asFinder(err)
	if !ok {
		return []any{"error", err.Error()}
	}
	attrs := []any{
		"error_code", fe.Code,
		"error", fe.Message,
		"retryable", fe.Retryable,
	}
	if fe.Cause != nil {
		attrs = append(attrs, "cause", fe.Cause.Error())
	}
	return attrs
}
