// Package errors defines the error taxonomy shared by the fetch and
// resolution pipeline. Transient provider errors are retried close to the
// HTTP layer; operational errors abort the run.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrWindowWaitExceeded reports that the rolling-window gate never
	// opened within the bounded wait loop. Operational, fatal.
	ErrWindowWaitExceeded = errors.New("rolling window gate wait exhausted")

	// ErrBudgetLockTimeout reports that the budget lock could not be
	// acquired within its timeout. Operational, fatal.
	ErrBudgetLockTimeout = errors.New("budget lock acquisition timed out")

	// ErrPostcodeTooShort reports a postcode too short to look up.
	ErrPostcodeTooShort = errors.New("postcode too short for lookup")
)

// Category groups errors by the subsystem that produced them
type Category string

const (
	CategoryProvider   Category = "provider"
	CategoryDatabase   Category = "database"
	CategoryCache      Category = "cache"
	CategoryResolution Category = "resolution"
	CategoryValidation Category = "validation"
	CategoryOperations Category = "operations"
)

// Error is a categorized error carrying the failing operation
type Error struct {
	Category  Category
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewProviderError wraps a failure from the external lookup API
func NewProviderError(operation string, cause error) *Error {
	return &Error{
		Category:  CategoryProvider,
		Operation: operation,
		Message:   "lookup provider request failed",
		Cause:     cause,
	}
}

// NewDatabaseError wraps a reference store failure
func NewDatabaseError(operation string, cause error) *Error {
	return &Error{
		Category:  CategoryDatabase,
		Operation: operation,
		Message:   "reference store operation failed",
		Cause:     cause,
	}
}

// NewCacheError wraps a Redis cache failure
func NewCacheError(operation string, cause error) *Error {
	return &Error{
		Category:  CategoryCache,
		Operation: operation,
		Message:   "response cache operation failed",
		Cause:     cause,
	}
}

// NewResolutionError wraps a failure while resolving one district batch
func NewResolutionError(district string, cause error) *Error {
	return &Error{
		Category:  CategoryResolution,
		Operation: "resolve district " + district,
		Message:   "batch resolution failed",
		Cause:     cause,
	}
}

// NewValidationError reports rejected input
func NewValidationError(operation, message string) *Error {
	return &Error{
		Category:  CategoryValidation,
		Operation: operation,
		Message:   message,
	}
}

// IsFatal reports whether the error must abort the run rather than skip the
// current postcode.
func IsFatal(err error) bool {
	return errors.Is(err, ErrWindowWaitExceeded) || errors.Is(err, ErrBudgetLockTimeout)
}

// HTTPStatus maps an error to a status code for the status API
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		switch e.Category {
		case CategoryValidation:
			return http.StatusBadRequest
		case CategoryProvider:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}
