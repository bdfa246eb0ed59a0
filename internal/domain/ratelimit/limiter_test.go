package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockTenantStore implements TenantLimitStore for testing.
type mockTenantStore struct {
	overrides map[string]BucketConfig
	err       error
	calls     int
}

func (m *mockTenantStore) GetTenantLimit(ctx context.Context, tenantID string) (*BucketConfig, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if cfg, ok := m.overrides[tenantID]; ok {
		return &cfg, nil
	}
	return nil, nil
}

// Compile-time check that mockTenantStore implements TenantLimitStore.
var _ TenantLimitStore = (*mockTenantStore)(nil)

func TestLimiter_ExactCapacityThenBlock(t *testing.T) {
	// Capacity C with zero refill: exactly C requests succeed and the
	// (C+1)-th fails with a positive Retry-After.
	const capacity = 5
	l := NewLimiter(BucketConfig{Capacity: capacity, RefillRate: 0})
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < capacity; i++ {
		if err := l.Allow(ctx, "key:1"); err != nil {
			t.Fatalf("request %d: Allow() error = %v, want nil", i+1, err)
		}
	}

	err := l.Allow(ctx, "key:1")
	var exceeded *LimitExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("request %d: Allow() error = %v, want LimitExceededError", capacity+1, err)
	}
	if exceeded.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", exceeded.RetryAfter)
	}
	if exceeded.Code() != "rate_limited" {
		t.Errorf("Code() = %q, want rate_limited", exceeded.Code())
	}
}

func TestLimiter_RejectionConsumesNothing(t *testing.T) {
	l := NewLimiter(BucketConfig{Capacity: 1, RefillRate: 0})
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_ = l.Allow(ctx, "id")
	_ = l.Allow(ctx, "id") // rejected

	tokens, ok := l.Tokens("id")
	if !ok {
		t.Fatal("bucket missing")
	}
	if tokens < 0 {
		t.Errorf("tokens = %v, want >= 0 (rejection must not consume)", tokens)
	}
}

func TestLimiter_RefillCappedAtCapacity(t *testing.T) {
	l := NewLimiter(BucketConfig{Capacity: 2, RefillRate: 1})
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	// Drain the bucket.
	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, "id"); err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
	}
	if err := l.Allow(ctx, "id"); err == nil {
		t.Fatal("Allow() on empty bucket = nil, want rejection")
	}

	// A long idle period refills to capacity, not beyond: after 100s
	// only 2 requests are admitted.
	now = now.Add(100 * time.Second)
	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, "id"); err != nil {
			t.Fatalf("post-refill %d: Allow() error = %v", i, err)
		}
	}
	if err := l.Allow(ctx, "id"); err == nil {
		t.Error("Allow() after refill-to-capacity = nil, want rejection")
	}
}

func TestLimiter_PartialRefill(t *testing.T) {
	l := NewLimiter(BucketConfig{Capacity: 1, RefillRate: 0.5})
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	if err := l.Allow(ctx, "id"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	// One second refills 0.5 tokens: still under 1.0, rejected with
	// Retry-After = ceil((1-0.5)/0.5) = 1s.
	now = now.Add(time.Second)
	err := l.Allow(ctx, "id")
	var exceeded *LimitExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("Allow() error = %v, want LimitExceededError", err)
	}
	if exceeded.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %v, want 1s", exceeded.RetryAfter)
	}

	// Another second crosses 1.0.
	now = now.Add(time.Second)
	if err := l.Allow(ctx, "id"); err != nil {
		t.Errorf("Allow() after refill error = %v", err)
	}
}

func TestLimiter_IndependentIdentities(t *testing.T) {
	l := NewLimiter(BucketConfig{Capacity: 1, RefillRate: 0})
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	if err := l.Allow(ctx, "key:1"); err != nil {
		t.Fatalf("key:1 Allow() error = %v", err)
	}
	if err := l.Allow(ctx, "key:1"); err == nil {
		t.Error("key:1 second Allow() = nil, want rejection")
	}
	// A different identity gets its own full bucket.
	if err := l.Allow(ctx, "key:2"); err != nil {
		t.Errorf("key:2 Allow() error = %v", err)
	}
}

func TestLimiter_TenantOverride(t *testing.T) {
	store := &mockTenantStore{overrides: map[string]BucketConfig{
		"key:vip": {Capacity: 3, RefillRate: 0},
	}}
	l := NewLimiter(BucketConfig{Capacity: 1, RefillRate: 0}, WithTenantStore(store))
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	// Override grants 3 tokens instead of the default 1.
	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "key:vip"); err != nil {
			t.Fatalf("vip request %d: Allow() error = %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "key:vip"); err == nil {
		t.Error("vip 4th Allow() = nil, want rejection")
	}

	// Non-override identity uses defaults.
	if err := l.Allow(ctx, "key:other"); err != nil {
		t.Fatalf("other Allow() error = %v", err)
	}
	if err := l.Allow(ctx, "key:other"); err == nil {
		t.Error("other 2nd Allow() = nil, want rejection")
	}
}

func TestLimiter_TenantCacheTTL(t *testing.T) {
	store := &mockTenantStore{}
	l := NewLimiter(BucketConfig{Capacity: 100, RefillRate: 100}, WithTenantStore(store))
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_ = l.Allow(ctx, "id")
	_ = l.Allow(ctx, "id")
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1 (cached)", store.calls)
	}

	now = now.Add(61 * time.Second)
	_ = l.Allow(ctx, "id")
	if store.calls != 2 {
		t.Errorf("store calls = %d, want 2 (TTL expired)", store.calls)
	}
}

func TestLimiter_StoreFailureUsesDefaults(t *testing.T) {
	store := &mockTenantStore{err: errors.New("db gone")}
	l := NewLimiter(BucketConfig{Capacity: 2, RefillRate: 0}, WithTenantStore(store))
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, "id"); err != nil {
			t.Fatalf("Allow() error = %v, want defaults to apply", err)
		}
	}
	if err := l.Allow(ctx, "id"); err == nil {
		t.Error("3rd Allow() = nil, want rejection at default capacity")
	}
}

func TestLimiter_BlockHook(t *testing.T) {
	var blocks int
	l := NewLimiter(BucketConfig{Capacity: 1, RefillRate: 0}, WithBlockHook(func() { blocks++ }))
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_ = l.Allow(ctx, "id")
	_ = l.Allow(ctx, "id")
	_ = l.Allow(ctx, "id")
	if blocks != 2 {
		t.Errorf("block hook fired %d times, want 2", blocks)
	}
}

func TestLimiter_ConcurrentNeverExceedsCapacity(t *testing.T) {
	const capacity = 10
	l := NewLimiter(BucketConfig{Capacity: capacity, RefillRate: 0})
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Allow(context.Background(), "burst"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != capacity {
		t.Errorf("admitted = %d, want exactly %d", admitted, capacity)
	}
}
