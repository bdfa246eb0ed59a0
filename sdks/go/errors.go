package wardengate

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrUnauthorized is returned when the gateway rejects the credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the key's role does not permit the call.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited is returned when the gateway's rate limiter refuses
	// the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServerUnreachable is returned when the gateway cannot be contacted.
	ErrServerUnreachable = errors.New("server unreachable")
)

// APIError is returned for any non-2xx gateway response that does not map
// to a more specific error type.
type APIError struct {
	// StatusCode is the HTTP status returned by the gateway.
	StatusCode int
	// Code is the machine-readable error code from the response body.
	Code string
	// Message is the human-readable message from the response body.
	Message string
}

// Error returns a human-readable description of the gateway error.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("wardengate [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("wardengate: server returned %d", e.StatusCode)
}

// Is reports whether this error matches the target sentinel. Status 401
// matches ErrUnauthorized, 403 matches ErrForbidden, and 429 matches
// ErrRateLimited.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == 401
	case ErrForbidden:
		return e.StatusCode == 403
	case ErrRateLimited:
		return e.StatusCode == 429
	}
	return false
}

// RateLimitedError is returned when the gateway refuses a request because
// the caller's token bucket is drained.
type RateLimitedError struct {
	// RetryAfter is the server's suggested wait before retrying.
	RetryAfter time.Duration
}

// Error returns a human-readable description of the rate limit refusal.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Is reports whether this error matches the target error. It supports
// errors.Is(err, ErrRateLimited).
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// ServerUnreachableError is returned when the gateway cannot be contacted.
type ServerUnreachableError struct {
	// Cause is the underlying transport error.
	Cause error
}

// Error returns a human-readable description of the transport failure.
func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target error. It supports
// errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
