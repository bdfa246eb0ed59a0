package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// tenantCacheTTL bounds read load on the tenant override table; the same
// staleness tradeoff as the credential cache.
const tenantCacheTTL = 60 * time.Second

type tenantCacheEntry struct {
	config   BucketConfig
	loadedAt time.Time
}

// Limiter is a per-identity token bucket limiter. Buckets are created
// lazily, full, on first sight of an identity. Safe for concurrent use;
// bucket math runs under a single mutex with short critical sections, and
// store reads never happen while that mutex is held.
type Limiter struct {
	defaults BucketConfig
	store    TenantLimitStore
	logger   *slog.Logger

	mu      sync.Mutex
	buckets map[string]*bucketState

	cacheMu     sync.RWMutex
	tenantCache map[string]tenantCacheEntry

	// onBlock is invoked once per rejection (metrics hook).
	onBlock func()

	now func() time.Time
}

// Option is a functional option for configuring a Limiter.
type Option func(*Limiter)

// WithTenantStore sets the persisted tenant override store.
func WithTenantStore(store TenantLimitStore) Option {
	return func(l *Limiter) { l.store = store }
}

// WithBlockHook sets a callback invoked on every rejection.
func WithBlockHook(fn func()) Option {
	return func(l *Limiter) { l.onBlock = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// NewLimiter creates a Limiter with the given global defaults.
func NewLimiter(defaults BucketConfig, opts ...Option) *Limiter {
	l := &Limiter{
		defaults:    defaults,
		logger:      slog.Default(),
		buckets:     make(map[string]*bucketState),
		tenantCache: make(map[string]tenantCacheEntry),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow runs one rate-limit check for identity. On rejection it returns a
// *LimitExceededError with a positive advisory RetryAfter and consumes
// nothing; on success it consumes exactly one token.
func (l *Limiter) Allow(ctx context.Context, identity string) error {
	config := l.resolveConfig(ctx, identity)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, ok := l.buckets[identity]
	if !ok {
		state = &bucketState{tokens: config.Capacity, lastRefill: now}
		l.buckets[identity] = state
	}

	elapsed := now.Sub(state.lastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	state.tokens = math.Min(config.Capacity, state.tokens+elapsed*config.RefillRate)
	state.lastRefill = now

	if state.tokens < 1.0 {
		if l.onBlock != nil {
			l.onBlock()
		}
		return &LimitExceededError{RetryAfter: retryAfter(state.tokens, config.RefillRate)}
	}

	state.tokens -= 1.0
	return nil
}

// Tokens reports the current token count for identity, refill not applied.
// Intended for tests and introspection.
func (l *Limiter) Tokens(identity string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.buckets[identity]
	if !ok {
		return 0, false
	}
	return state.tokens, true
}

// resolveConfig returns the tenant override for identity when one exists,
// else the global defaults. Overrides are cached with a 60s TTL. A store
// failure falls back to the defaults rather than blocking traffic.
func (l *Limiter) resolveConfig(ctx context.Context, identity string) BucketConfig {
	if l.store == nil {
		return l.defaults
	}

	now := l.now()
	l.cacheMu.RLock()
	entry, ok := l.tenantCache[identity]
	l.cacheMu.RUnlock()
	if ok && now.Sub(entry.loadedAt) < tenantCacheTTL {
		return entry.config
	}

	config := l.defaults
	override, err := l.store.GetTenantLimit(ctx, identity)
	switch {
	case err != nil:
		l.logger.Warn("tenant limit lookup failed, using defaults", "error", err)
		return config
	case override != nil:
		config = *override
	}

	l.cacheMu.Lock()
	l.tenantCache[identity] = tenantCacheEntry{config: config, loadedAt: now}
	l.cacheMu.Unlock()
	return config
}

// retryAfter computes the advisory delay until one whole token exists:
// (1 - tokens) / refillRate, rounded up, minimum one second.
func retryAfter(tokens, refillRate float64) time.Duration {
	if refillRate <= 0 {
		return time.Second
	}
	seconds := math.Ceil((1.0 - tokens) / refillRate)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
