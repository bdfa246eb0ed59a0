// Package ratelimit provides per-identity token bucket rate limiting
// with persisted tenant overrides.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// BucketConfig defines one identity's token bucket parameters.
type BucketConfig struct {
	// Capacity is the maximum number of tokens the bucket holds.
	Capacity float64
	// RefillRate is the number of tokens added per second.
	RefillRate float64
}

// bucketState is the live state of one identity's bucket. Held in process
// memory only; it resets on restart. Tokens are always within [0, capacity].
type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

// TenantLimitStore provides persisted per-tenant bucket overrides.
// Implementations: SQLite (prod), in-memory (dev/tests).
type TenantLimitStore interface {
	// GetTenantLimit returns the override for tenantID, or (nil, nil)
	// when no override exists.
	GetTenantLimit(ctx context.Context, tenantID string) (*BucketConfig, error)
}

// LimitExceededError is returned when a request is rejected.
// RetryAfter is advisory: the request is terminal but the client is
// expected to retry after the given duration.
type LimitExceededError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Code returns the stable machine-readable error code.
func (e *LimitExceededError) Code() string { return "rate_limited" }

// Status returns the HTTP-equivalent status.
func (e *LimitExceededError) Status() int { return http.StatusTooManyRequests }
