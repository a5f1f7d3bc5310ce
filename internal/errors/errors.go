package errors

import (
	stderrors "errors"
	"fmt"
)

// SearchError is the structured error type for forumsearch.
// It carries enough context for logging, retry decisions and user presentation.
type SearchError struct {
	// Code is the unique error code (e.g., "ERR_205_CORRUPT_INDEX").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Index, Storage, etc.).
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

// Sentinels for errors.Is checks. Matching is by code, so any SearchError
// carrying the same code matches regardless of message or cause.
var (
	ErrIndexUnavailable = &SearchError{Code: ErrCodeIndexUnavailable}
	ErrIndexCorrupt     = &SearchError{Code: ErrCodeCorruptIndex}
	ErrIndexWrite       = &SearchError{Code: ErrCodeIndexWrite}
	ErrIndexLocked      = &SearchError{Code: ErrCodeIndexLocked}
	ErrStorageFetch     = &SearchError{Code: ErrCodeStorageFetch}
)

// Error implements the error interface.
func (e *SearchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SearchError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *SearchError) Is(target error) bool {
	if t, ok := target.(*SearchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *SearchError) WithDetail(key, value string) *SearchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *SearchError) WithSuggestion(suggestion string) *SearchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SearchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SearchError {
	return &SearchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SearchError from an existing error.
// The error's message becomes the SearchError message.
func Wrap(code string, err error) *SearchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IndexUnavailable reports a missing or unreadable index directory.
func IndexUnavailable(path string, cause error) *SearchError {
	return New(ErrCodeIndexUnavailable, fmt.Sprintf("index at %s is unavailable", path), cause).
		WithDetail("path", path)
}

// IndexCorrupt reports an index directory that exists but cannot be used.
func IndexCorrupt(path string, cause error) *SearchError {
	return New(ErrCodeCorruptIndex, fmt.Sprintf("index at %s is corrupt or incompatible", path), cause).
		WithDetail("path", path).
		WithSuggestion("The index will be rebuilt from the database on next start")
}

// IndexWriteFailure reports a failed commit.
func IndexWriteFailure(op string, cause error) *SearchError {
	return New(ErrCodeIndexWrite, fmt.Sprintf("index %s failed", op), cause).
		WithDetail("op", op).
		WithSuggestion("Please try again")
}

// StorageFetchFailure reports a failed read from the relational store.
func StorageFetchFailure(message string, cause error) *SearchError {
	return New(ErrCodeStorageFetch, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SearchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *SearchError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SearchError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var se *SearchError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var se *SearchError
	if stderrors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a SearchError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var se *SearchError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SearchError.
func GetCategory(err error) Category {
	var se *SearchError
	if stderrors.As(err, &se) {
		return se.Category
	}
	return ""
}
