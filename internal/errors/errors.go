package errors

import (
	"fmt"
)

// MatchError is the structured error type for citematch.
// It provides rich context for error handling, logging, and user presentation.
type MatchError struct {
	// Code is the unique error code (e.g., "ERR_201_INDEX_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Index, Network, etc.).
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
func (e *MatchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MatchError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with MatchError.
func (e *MatchError) Is(target error) bool {
	if t, ok := target.(*MatchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *MatchError) WithDetail(key, value string) *MatchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *MatchError) WithSuggestion(suggestion string) *MatchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new MatchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *MatchError {
	return &MatchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a MatchError from an existing error.
// The error's message becomes the MatchError message.
func Wrap(code string, err error) *MatchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *MatchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IndexError creates a vector-index/storage error.
func IndexError(message string, cause error) *MatchError {
	return New(ErrCodeIndexUnavailable, message, cause)
}

// OracleError creates an oracle-service error.
func OracleError(message string, cause error) *MatchError {
	return New(ErrCodeOracleUnreachable, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *MatchError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an unexpected internal error.
func InternalError(message string, cause error) *MatchError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err (anywhere in its chain) is a retryable
// MatchError.
func IsRetryable(err error) bool {
	for err != nil {
		if me, ok := err.(*MatchError); ok {
			return me.Retryable
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf returns the code of the first MatchError in the chain, or "".
func CodeOf(err error) string {
	for err != nil {
		if me, ok := err.(*MatchError); ok {
			return me.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
