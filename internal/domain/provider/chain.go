package provider

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// NoContextMarker is the fragment the prompt builder inserts when
// retrieval produced no candidates. The chain's local fallback keys off
// its presence.
const NoContextMarker = "Relevant data:\n—"

// Deterministic local fallback answers, returned when every provider is
// exhausted. The chain never raises to its caller; it always returns text.
const (
	fallbackNoData     = "No relevant data is available to answer this question."
	fallbackCandidates = "Based on the available data, these options look suitable. Please narrow your request for a more precise answer."
)

// Chain tries an ordered list of providers, each guarded by its own
// circuit breaker, retrying each with capped linear backoff before
// failing over to the next.
type Chain struct {
	providers []Provider
	breakers  map[string]*Breaker
	retries   int
	logger    *slog.Logger

	// onFailure fires per failed attempt with the provider name;
	// onSuccess fires once per answered prompt with the call latency.
	onFailure func(name string)
	onSuccess func(latency time.Duration)

	sleep func(d time.Duration)
}

// ChainOption is a functional option for configuring a Chain.
type ChainOption func(*Chain)

// WithRetries sets the per-provider retry count; each provider is
// attempted retries+1 times.
func WithRetries(n int) ChainOption {
	return func(c *Chain) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithChainLogger sets the logger.
func WithChainLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = logger }
}

// WithFailureHook sets a per-attempt failure callback.
func WithFailureHook(fn func(name string)) ChainOption {
	return func(c *Chain) { c.onFailure = fn }
}

// WithSuccessHook sets a per-answer success callback.
func WithSuccessHook(fn func(latency time.Duration)) ChainOption {
	return func(c *Chain) { c.onSuccess = fn }
}

// NewChain builds a chain over providers in failover order. Each provider
// gets one breaker, shared across requests for the life of the chain.
func NewChain(providers []Provider, breakers map[string]*Breaker, opts ...ChainOption) *Chain {
	c := &Chain{
		providers: providers,
		breakers:  breakers,
		retries:   2,
		logger:    slog.Default(),
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ask runs the failover loop and always returns non-empty text.
//
// A provider whose breaker denies is skipped entirely: no attempt is
// made and nothing counts against it. Otherwise each provider gets
// retries+1 attempts with capped linear backoff between them. The first
// success returns immediately and resets that provider's breaker; every
// failure increments both the failure hook and the breaker.
func (c *Chain) Ask(ctx context.Context, prompt string) string {
	var lastErr error

	for _, p := range c.providers {
		breaker := c.breakers[p.Name()]
		if breaker != nil && !breaker.Allow() {
			c.logger.Warn("circuit open, skipping provider", "provider", p.Name())
			continue
		}

		for attempt := 1; attempt <= c.retries+1; attempt++ {
			start := time.Now()
			text, err := p.Generate(ctx, prompt)
			if err == nil && text != "" {
				latency := time.Since(start)
				if breaker != nil {
					breaker.RecordSuccess()
				}
				if c.onSuccess != nil {
					c.onSuccess(latency)
				}
				c.logger.Info("llm call succeeded",
					"provider", p.Name(),
					"llm_ms", latency.Milliseconds())
				return text
			}
			if err == nil {
				err = ErrNotConfigured
			}
			lastErr = err
			if c.onFailure != nil {
				c.onFailure(p.Name())
			}
			if breaker != nil {
				breaker.RecordFailure()
			}
			c.logger.Warn("llm call failed",
				"provider", p.Name(),
				"attempt", attempt,
				"error", err.Error())
			if attempt <= c.retries {
				c.sleep(backoff(attempt))
			}
		}
	}

	reason := "no_provider"
	if lastErr != nil {
		reason = lastErr.Error()
		if len(reason) > 120 {
			reason = reason[:120]
		}
	}
	c.logger.Error("all providers exhausted, using local fallback", "reason", reason)
	return Fallback(prompt)
}

// backoff returns the delay before the next attempt:
// min(1s, 600ms × attemptNumber).
func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * 600 * time.Millisecond
	if d > time.Second {
		d = time.Second
	}
	return d
}

// Fallback picks the deterministic local answer by checking whether the
// prompt carried retrieval candidates.
func Fallback(prompt string) string {
	if strings.Contains(prompt, NoContextMarker) {
		return fallbackNoData
	}
	return fallbackCandidates
}
