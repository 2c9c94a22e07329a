package errors

import (
	"fmt"
)

// EngineError is the structured error type for semidx.
// It provides context for error handling, logging, and user presentation.
type EngineError struct {
	// Code is the unique error code (e.g., "ERR_401_INVALID_QUERY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Discovery, etc.).
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

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with EngineError.
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *EngineError) WithDetail(key, value string) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EngineError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an EngineError from an existing error.
// The error's message becomes the EngineError message.
func Wrap(code string, err error) *EngineError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *EngineError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// DiscoveryError creates a file discovery or I/O error.
// Discovery errors skip the affected file and never abort a run.
func DiscoveryError(message string, cause error) *EngineError {
	return New(ErrCodeDiscoveryFailed, message, cause)
}

// ChunkError creates a chunk extraction error.
func ChunkError(message string, cause error) *EngineError {
	return New(ErrCodeChunkFailed, message, cause)
}

// EmbedError creates an embedding provider error.
// Embedding errors are retryable up to the configured backoff bound.
func EmbedError(message string, cause error) *EngineError {
	return New(ErrCodeEmbedFailed, message, cause)
}

// StoreWriteError creates a store write error.
func StoreWriteError(message string, cause error) *EngineError {
	return New(ErrCodeStoreWriteFailed, message, cause)
}

// InvalidQuery creates a query validation error.
func InvalidQuery(message string) *EngineError {
	return New(ErrCodeInvalidQuery, message, nil)
}

// UnsupportedMode creates an error for an unknown search mode.
func UnsupportedMode(mode string) *EngineError {
	return New(ErrCodeUnsupportedMode, fmt.Sprintf("unsupported search mode: %q", mode), nil).
		WithSuggestion("use one of: vector, keyword, hybrid")
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *EngineError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an EngineError with the Retryable flag set.
func IsRetryable(err error) bool {
	if e, ok := err.(*EngineError); ok {
		return e.Retryable
	}
	return false
}

// GetCode extracts the error code from an error.
// Returns empty string if the error is not an EngineError.
func GetCode(err error) string {
	if e, ok := err.(*EngineError); ok {
		return e.Code
	}
	return ""
}
