// Package errors provides structured error handling for semidx.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Discovery and file I/O errors
//   - 3XX: Embedding provider errors
//   - 4XX: Query validation errors
//   - 5XX: Internal and store errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryDiscovery indicates file discovery and I/O errors.
	CategoryDiscovery Category = "DISCOVERY"
	// CategoryEmbedding indicates embedding provider errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryQuery indicates query validation errors.
	CategoryQuery Category = "QUERY"
	// CategoryInternal indicates store and unexpected internal errors.
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
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Discovery errors (200-299)
	ErrCodeDiscoveryFailed = "ERR_201_DISCOVERY_FAILED"
	ErrCodeFilePermission  = "ERR_202_FILE_PERMISSION"
	ErrCodeFileTooLarge    = "ERR_203_FILE_TOO_LARGE"
	ErrCodeCorruptIndex    = "ERR_204_CORRUPT_INDEX"

	// Embedding errors (300-399)
	ErrCodeEmbedFailed      = "ERR_301_EMBED_FAILED"
	ErrCodeEmbedUnavailable = "ERR_302_EMBED_UNAVAILABLE"
	ErrCodeDimensionChanged = "ERR_303_DIMENSION_CHANGED"

	// Query errors (400-499)
	ErrCodeInvalidQuery    = "ERR_401_INVALID_QUERY"
	ErrCodeQueryEmpty      = "ERR_402_QUERY_EMPTY"
	ErrCodeUnsupportedMode = "ERR_403_UNSUPPORTED_MODE"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeChunkFailed      = "ERR_502_CHUNK_FAILED"
	ErrCodeStoreWriteFailed = "ERR_503_STORE_WRITE_FAILED"
	ErrCodeSearchFailed     = "ERR_504_SEARCH_FAILED"
	ErrCodeIndexLocked      = "ERR_505_INDEX_LOCKED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryDiscovery
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryQuery
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDimensionChanged:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedFailed, ErrCodeEmbedUnavailable:
		return true
	default:
		return false
	}
}
