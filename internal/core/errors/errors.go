// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Unexported errors (err*): Use for internal package errors
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Circuit breaker errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Lookup errors.
var (
	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")

	// ErrArtistNotFound indicates no artist matched the lookup term.
	ErrArtistNotFound = errors.New("artist not found")

	// ErrEntityNotFound indicates no entity matched the lookup term.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrReportNotFound indicates no report row exists for the requested week.
	ErrReportNotFound = errors.New("report not found")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidID indicates an invalid identifier.
	ErrInvalidID = errors.New("invalid id")

	// ErrInvalidWeek indicates a week marker that could not be parsed as a date.
	ErrInvalidWeek = errors.New("invalid week marker")

	// ErrNoPlatforms indicates a metrics subscription without any platform.
	ErrNoPlatforms = errors.New("no platforms requested")
)

// Lifecycle errors.
var (
	// ErrCoordinatorStopped indicates an operation on a coordinator after teardown.
	ErrCoordinatorStopped = errors.New("coordinator stopped")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("already started")

	// ErrSubscriptionClosed indicates the change feed is no longer delivering events.
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// Response and parsing errors.
var (
	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")

	// ErrUnexpectedType indicates an unexpected type was encountered.
	ErrUnexpectedType = errors.New("unexpected type")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
