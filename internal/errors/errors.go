// Package errors provides structured error types for the converter.
// Every error carries a category and a code so per-event skips can be
// counted and logged by reason, and fatal stream errors told apart from them.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the component that raised them.
type ErrorCategory string

const (
	ErrCategoryBank    ErrorCategory = "BANK"
	ErrCategoryStream  ErrorCategory = "STREAM"
	ErrCategoryTable   ErrorCategory = "TABLE"
	ErrCategoryConfig  ErrorCategory = "CONFIG"
	ErrCategoryArchive ErrorCategory = "ARCHIVE"
)

// Error codes for each category.
const (
	// Bank codes, all handled per event
	CodeMissingBank      = "MISSING_BANK"
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeMalformedBank    = "MALFORMED_BANK"

	// Stream codes
	CodeStreamReadFailure = "STREAM_READ_FAILURE"

	// Table codes
	CodeSchemaViolation = "SCHEMA_VIOLATION"
	CodeTableFinalized  = "TABLE_FINALIZED"
	CodeSinkFailure     = "SINK_FAILURE"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Archive codes
	CodeUploadFailed = "UPLOAD_FAILED"
)

// ConvError is the structured error type used throughout the converter.
type ConvError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *ConvError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ConvError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *ConvError) Is(target error) bool {
	var t *ConvError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new ConvError.
func New(category ErrorCategory, code, message string) *ConvError {
	return &ConvError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new ConvError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *ConvError {
	return &ConvError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *ConvError) WithDetails(details map[string]interface{}) *ConvError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ce *ConvError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a ConvError.
func GetCategory(err error) ErrorCategory {
	var ce *ConvError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a ConvError.
func GetCode(err error) string {
	var ce *ConvError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsSkip reports whether err is a per-event condition that skips the event
// without ending the run.
func IsSkip(err error) bool {
	return GetCategory(err) == ErrCategoryBank
}

func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryArchive && code == CodeUploadFailed
}

// Sentinels for errors.Is matching on category and code.
var (
	ErrMissingBank       = New(ErrCategoryBank, CodeMissingBank, "bank not found")
	ErrCapacityExceeded  = New(ErrCategoryBank, CodeCapacityExceeded, "bank exceeds channel capacity")
	ErrMalformedBank     = New(ErrCategoryBank, CodeMalformedBank, "malformed bank")
	ErrStreamReadFailure = New(ErrCategoryStream, CodeStreamReadFailure, "stream read failure")
	ErrSchemaViolation   = New(ErrCategoryTable, CodeSchemaViolation, "row violates schema")
	ErrTableFinalized    = New(ErrCategoryTable, CodeTableFinalized, "table already finalized")
)

// Convenience constructors for common errors.

func NewBankError(code, message string) *ConvError {
	return New(ErrCategoryBank, code, message)
}

func NewStreamError(message string, cause error) *ConvError {
	return Wrap(ErrCategoryStream, CodeStreamReadFailure, message, cause)
}

func NewTableError(code, message string, cause error) *ConvError {
	return Wrap(ErrCategoryTable, code, message, cause)
}

func NewConfigError(message string) *ConvError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewArchiveError(message string, cause error) *ConvError {
	return Wrap(ErrCategoryArchive, CodeUploadFailed, message, cause)
}
