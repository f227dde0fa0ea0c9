// Package errors provides structured error handling for shadowfinder.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Ingestion errors (bad events)
//   - 2XX: Store errors (index, snapshot)
//   - 3XX: Query errors
//   - 4XX: Configuration errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryIngest indicates a rejected inbound event.
	CategoryIngest Category = "INGEST"
	// CategoryStore indicates index or snapshot storage errors.
	CategoryStore Category = "STORE"
	// CategoryQuery indicates errors surfaced to search callers.
	CategoryQuery Category = "QUERY"
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Ingest errors (100-199)
	ErrCodeMalformedInput = "ERR_101_MALFORMED_INPUT"
	ErrCodeEventDecode    = "ERR_102_EVENT_DECODE"

	// Store errors (200-299)
	ErrCodeTransientStore  = "ERR_201_TRANSIENT_STORE"
	ErrCodeIndexCorruption = "ERR_202_INDEX_CORRUPTION"
	ErrCodeSnapshotFailed  = "ERR_203_SNAPSHOT_FAILED"
	ErrCodeSnapshotVersion = "ERR_204_SNAPSHOT_VERSION"
	ErrCodeDocNotFound     = "ERR_205_DOC_NOT_FOUND"
	ErrCodeDataDirLocked   = "ERR_206_DATA_DIR_LOCKED"

	// Query errors (300-399)
	ErrCodeInvalidCursor   = "ERR_301_INVALID_CURSOR"
	ErrCodeQueryTooBroad   = "ERR_302_QUERY_TOO_BROAD"
	ErrCodeQueryTimeout    = "ERR_303_QUERY_TIMEOUT"
	ErrCodeInvalidQuery    = "ERR_304_INVALID_QUERY"
	ErrCodeInvalidPageSize = "ERR_305_INVALID_PAGE_SIZE"

	// Config errors (400-499)
	ErrCodeConfigNotFound = "ERR_401_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_402_CONFIG_INVALID"

	// Internal errors (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeDaemonOffline = "ERR_502_DAEMON_OFFLINE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "1" from "ERR_101_MALFORMED_INPUT"
	switch code[4] {
	case '1':
		return CategoryIngest
	case '2':
		return CategoryStore
	case '3':
		return CategoryQuery
	case '4':
		return CategoryConfig
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexCorruption, ErrCodeSnapshotVersion:
		return SeverityFatal
	case ErrCodeQueryTimeout:
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTransientStore, ErrCodeDaemonOffline:
		return true
	default:
		return false
	}
}
