// Package errors provides structured error types for the Pitlake query
// layer. All errors include a category, code, message, and retryable flag
// for consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryManifest   ErrorCategory = "MANIFEST"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryResolve    ErrorCategory = "RESOLVE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidColumns = "INVALID_COLUMNS"
	CodeInvalidRange   = "INVALID_RANGE"
	CodeUnknownDataset = "UNKNOWN_DATASET"

	// Manifest codes
	CodeManifestVersionChanged = "MANIFEST_VERSION_CHANGED"

	// Query and resolve codes
	CodeDataNotFound = "DATA_NOT_FOUND"
	CodeAmbiguousKey = "AMBIGUOUS_KEY"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PitlakeError is the structured error type used throughout the system.
type PitlakeError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PitlakeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PitlakeError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PitlakeError) Is(target error) bool {
	var t *PitlakeError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PitlakeError.
func New(category ErrorCategory, code, message string) *PitlakeError {
	return &PitlakeError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new PitlakeError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PitlakeError {
	return &PitlakeError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PitlakeError) WithDetails(details map[string]interface{}) *PitlakeError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
// Only MANIFEST_VERSION_CHANGED qualifies: the caller should re-invoke
// the whole operation, since every intermediate input may now be stale.
func IsRetryable(err error) bool {
	var pe *PitlakeError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PitlakeError.
func GetCategory(err error) ErrorCategory {
	var pe *PitlakeError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PitlakeError.
func GetCode(err error) string {
	var pe *PitlakeError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryManifest && code == CodeManifestVersionChanged
}

// Convenience constructors for common errors.

// NewDataNotFound reports that a dataset, key, or ticker produced no rows.
// Callers should treat it as "no data", not a system failure.
func NewDataNotFound(message string) *PitlakeError {
	return New(ErrCategoryQuery, CodeDataNotFound, message)
}

// NewInvalidColumns reports a projection outside the dataset's valid set.
func NewInvalidColumns(message string, invalid []string) *PitlakeError {
	return New(ErrCategoryValidation, CodeInvalidColumns, message).
		WithDetails(map[string]interface{}{"invalid_columns": invalid})
}

// NewAmbiguousKey reports a ticker resolving to more than one company key
// on the same effective date. The candidates are carried so the caller
// can disambiguate by key; the resolver never picks one.
func NewAmbiguousKey(ticker, asOf string, candidates []string) *PitlakeError {
	return New(ErrCategoryResolve, CodeAmbiguousKey,
		fmt.Sprintf("ticker %q resolves to %d company keys as of %s", ticker, len(candidates), asOf)).
		WithDetails(map[string]interface{}{
			"ticker":         ticker,
			"as_of_date":     asOf,
			"candidate_keys": candidates,
		})
}

// NewManifestVersionChanged reports a snapshot-consistency violation by a
// concurrent sync. This is the only retryable kind.
func NewManifestVersionChanged(dataset string, pinned, observed uint64) *PitlakeError {
	return New(ErrCategoryManifest, CodeManifestVersionChanged,
		fmt.Sprintf("manifest for %q changed during query: pinned v%d, observed v%d", dataset, pinned, observed)).
		WithDetails(map[string]interface{}{
			"dataset":          dataset,
			"pinned_version":   pinned,
			"observed_version": observed,
		})
}

// NewValidationError creates a caller-input validation error.
func NewValidationError(code, message string) *PitlakeError {
	return New(ErrCategoryValidation, code, message)
}

// NewInternalError creates an internal error wrapping a cause.
func NewInternalError(message string, cause error) *PitlakeError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// AmbiguousCandidates extracts the candidate keys from an AMBIGUOUS_KEY
// error. Returns nil when the error is not one.
func AmbiguousCandidates(err error) []string {
	var pe *PitlakeError
	if !errors.As(err, &pe) || pe.Code != CodeAmbiguousKey {
		return nil
	}
	keys, _ := pe.Details["candidate_keys"].([]string)
	return keys
}
