// Package errors provides structured error types for entitydb.
// All errors include a category, code, message, and retryable flag so callers
// can decide on their own retry policy; nothing in entitydb retries for them.
package errors

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrorCategory classifies errors by the stage that produced them.
type ErrorCategory string

const (
	ErrCategoryInit       ErrorCategory = "INIT"
	ErrCategoryMarshal    ErrorCategory = "MARSHAL"
	ErrCategoryStore      ErrorCategory = "STORE"
	ErrCategoryMigration  ErrorCategory = "MIGRATION"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Init codes
	CodeHandleClosed     = "HANDLE_CLOSED"
	CodeDescriptorFailed = "DESCRIPTOR_FAILED"
	CodeNotInitialized   = "NOT_INITIALIZED"
	CodeBindingConflict  = "BINDING_CONFLICT"
	CodeNoShardKey       = "NO_SHARD_KEY"

	// Marshal codes
	CodeAssignFailed = "ASSIGN_FAILED"

	// Store codes
	CodeStatementRejected = "STATEMENT_REJECTED"
	CodeConstraint        = "CONSTRAINT"
	CodeBusy              = "BUSY"
	CodeEmptyValues       = "EMPTY_VALUES"

	// Migration codes
	CodeShardMissing      = "SHARD_MISSING"
	CodeStepFailed        = "STEP_FAILED"
	CodeNoMatchingStep    = "NO_MATCHING_STEP"
	CodeDescriptorInvalid = "DESCRIPTOR_INVALID"
	CodeSnapshotFailed    = "SNAPSHOT_FAILED"

	// Validation codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// EntityError is the structured error type used throughout entitydb.
type EntityError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *EntityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *EntityError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *EntityError) Is(target error) bool {
	var t *EntityError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new EntityError.
func New(category ErrorCategory, code, message string) *EntityError {
	return &EntityError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new EntityError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *EntityError {
	return &EntityError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *EntityError) WithDetails(details map[string]interface{}) *EntityError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ee *EntityError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an EntityError.
func GetCategory(err error) ErrorCategory {
	var ee *EntityError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an EntityError.
func GetCode(err error) string {
	var ee *EntityError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// isRetryable reports whether a caller may reasonably retry the operation.
// Only transient SQLite lock contention qualifies.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryStore && code == CodeBusy
}

// Convenience constructors for common errors.

func NewInitError(code, message string, cause error) *EntityError {
	return Wrap(ErrCategoryInit, code, message, cause)
}

func NewMarshalError(code, message string, cause error) *EntityError {
	return Wrap(ErrCategoryMarshal, code, message, cause)
}

func NewMigrationError(code, message string, cause error) *EntityError {
	return Wrap(ErrCategoryMigration, code, message, cause)
}

func NewValidationError(code, message string) *EntityError {
	return New(ErrCategoryValidation, code, message)
}

func NewInternalError(message string, cause error) *EntityError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// NewStoreError wraps an error returned by the SQLite driver, classifying
// constraint violations and lock contention by their sqlite3 result codes.
func NewStoreError(message string, cause error) *EntityError {
	code := CodeStatementRejected
	var se sqlite3.Error
	if errors.As(cause, &se) {
		switch se.Code {
		case sqlite3.ErrConstraint:
			code = CodeConstraint
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			code = CodeBusy
		}
	}
	return Wrap(ErrCategoryStore, code, message, cause)
}
