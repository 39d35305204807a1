// Package nexuserrors defines the typed error taxonomy shared by every
// Nexus Store component. Each kind carries the fields callers need to
// react programmatically (retry hints, lifecycle state, per-field
// validation errors) rather than forcing string matching.
package nexuserrors

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports input-shape violations, including SQL unique or
// foreign-key failures surfaced by a backend and remapped by sqlmap.go.
type ValidationError struct {
	Message string
	Errors  []string
	Cause   error
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Errors)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// NewValidationError constructs a ValidationError with no field-level detail.
func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}

// StateError reports lifecycle misuse, e.g. an operation attempted before
// Initialize or against a table the backend has not created.
type StateError struct {
	CurrentState  string
	ExpectedState string
	Cause         error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state: current=%q expected=%q", e.CurrentState, e.ExpectedState)
}

func (e *StateError) Unwrap() error { return e.Cause }

// NewStateError constructs a StateError.
func NewStateError(current, expected string) *StateError {
	return &StateError{CurrentState: current, ExpectedState: expected}
}

// TransactionError reports contention (lock timeouts, busy database) and is
// always retryable by the caller.
type TransactionError struct {
	Message string
	Cause   error
}

func (e *TransactionError) Error() string { return e.Message }
func (e *TransactionError) Unwrap() error { return e.Cause }
func (e *TransactionError) Retryable() bool { return true }

// NewTransactionError constructs a TransactionError.
func NewTransactionError(message string, cause error) *TransactionError {
	return &TransactionError{Message: message, Cause: cause}
}

// NetworkError reports remote backend reachability failures.
type NetworkError struct {
	Message string
	Cause   error
}

func (e *NetworkError) Error() string { return e.Message }
func (e *NetworkError) Unwrap() error { return e.Cause }

// NewNetworkError constructs a NetworkError.
func NewNetworkError(message string, cause error) *NetworkError {
	return &NetworkError{Message: message, Cause: cause}
}

// SyncError reports an unclassified backend or replication failure — the
// catch-all kind for SQL errors that don't match a more specific pattern.
type SyncError struct {
	Message string
	Cause   error
}

func (e *SyncError) Error() string { return e.Message }
func (e *SyncError) Unwrap() error { return e.Cause }

// NewSyncError constructs a SyncError.
func NewSyncError(message string, cause error) *SyncError {
	return &SyncError{Message: message, Cause: cause}
}

// CircuitBreakerOpen is raised when a circuit breaker rejects a call
// outright. RetryAfter is the remaining cooldown before a half-open probe
// would be allowed.
type CircuitBreakerOpen struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitBreakerOpen) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry after %s", e.Name, e.RetryAfter)
}

func (e *CircuitBreakerOpen) Retryable() bool { return true }

// ValidationException is the error carried by an interceptor chain's
// Error(...) result when a ValidationInterceptor rejects a request.
type ValidationException struct {
	Message string
	Errors  []string
}

func (e *ValidationException) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Errors)
}

// NewValidationException constructs a ValidationException.
func NewValidationException(message string, errs []string) *ValidationException {
	return &ValidationException{Message: message, Errors: errs}
}

// RateLimited is returned by RateLimitInterceptor when its token bucket is
// exhausted.
type RateLimited struct {
	Operation string
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("operation %q rate limited", e.Operation)
}

// AsValidation reports whether err (or any error it wraps) is a *ValidationError.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// AsState reports whether err (or any error it wraps) is a *StateError.
func AsState(err error) (*StateError, bool) {
	var s *StateError
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// IsRetryable reports whether err carries a Retryable() bool method
// returning true — both TransactionError and CircuitBreakerOpen qualify.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
