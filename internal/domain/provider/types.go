// Package provider guards outbound language-model calls with per-provider
// circuit breakers, retry with backoff, failover, and a local fallback.
package provider

import (
	"context"
	"errors"
)

// Provider names used in configuration and metrics.
const (
	NameOpenRouter     = "openrouter"
	NameLocalInference = "local-inference"
)

// ErrNotConfigured is returned by a provider whose endpoint or
// credentials are missing; treated like any other attempt failure.
var ErrNotConfigured = errors.New("provider not configured")

// Provider is one interchangeable LLM backend.
type Provider interface {
	// Name returns the stable provider name.
	Name() string
	// Generate produces completion text for prompt. Implementations
	// enforce their own per-attempt timeout.
	Generate(ctx context.Context, prompt string) (string, error)
}
