package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrKeyNotFound is returned when an API key row does not exist.
var ErrKeyNotFound = errors.New("api key not found")

// CredentialStore provides durable API key metadata.
// Implementations: SQLite (prod), in-memory (dev/tests).
type CredentialStore interface {
	// ListAPIKeys returns all key records, enabled and disabled.
	ListAPIKeys(ctx context.Context) ([]APIKeyRecord, error)

	// GetAPIKey retrieves one record by id.
	// Returns ErrKeyNotFound if the row does not exist.
	GetAPIKey(ctx context.Context, id int64) (*APIKeyRecord, error)

	// CreateAPIKey inserts a new enabled key and returns the stored record.
	CreateAPIKey(ctx context.Context, name string, role Role, keyHash string) (*APIKeyRecord, error)

	// SetAPIKeyEnabled toggles the enabled flag.
	// Returns ErrKeyNotFound if the row does not exist.
	SetAPIKeyEnabled(ctx context.Context, id int64, enabled bool) error

	// UpdateAPIKeyHash replaces the stored hash after a transparent upgrade.
	UpdateAPIKeyHash(ctx context.Context, id int64, keyHash string) error

	// TouchAPIKey updates the last-used timestamp.
	TouchAPIKey(ctx context.Context, id int64) error
}

// GenerateSecret produces a new high-entropy API key secret:
// 32 random bytes (256 bits), URL-safe base64 without padding.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// defaultCacheTTL bounds read load on the backing store. A newly disabled
// key may remain usable for up to this long; that staleness is documented
// behavior, not a bug.
const defaultCacheTTL = 60 * time.Second

// CachedCredentialStore decorates a CredentialStore with a short-TTL
// wholesale read cache for ListAPIKeys. Mutating operations pass through
// and invalidate the cache. Safe for concurrent use.
type CachedCredentialStore struct {
	store CredentialStore
	ttl   time.Duration

	mu       sync.RWMutex
	records  []APIKeyRecord
	loadedAt time.Time

	now func() time.Time
}

// NewCachedCredentialStore wraps store with a 60s read cache.
func NewCachedCredentialStore(store CredentialStore) *CachedCredentialStore {
	return &CachedCredentialStore{
		store: store,
		ttl:   defaultCacheTTL,
		now:   time.Now,
	}
}

// ListAPIKeys returns cached records younger than the TTL, else reloads.
func (c *CachedCredentialStore) ListAPIKeys(ctx context.Context) ([]APIKeyRecord, error) {
	c.mu.RLock()
	if c.records != nil && c.now().Sub(c.loadedAt) < c.ttl {
		records := c.records
		c.mu.RUnlock()
		return records, nil
	}
	c.mu.RUnlock()

	// Load outside the lock; concurrent reloads are harmless, the last
	// writer wins with an equally fresh snapshot.
	records, err := c.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.records = records
	c.loadedAt = c.now()
	c.mu.Unlock()
	return records, nil
}

// Invalidate drops the cached snapshot so the next read reloads.
func (c *CachedCredentialStore) Invalidate() {
	c.mu.Lock()
	c.records = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

// GetAPIKey passes through to the backing store.
func (c *CachedCredentialStore) GetAPIKey(ctx context.Context, id int64) (*APIKeyRecord, error) {
	return c.store.GetAPIKey(ctx, id)
}

// CreateAPIKey passes through and invalidates the cache.
func (c *CachedCredentialStore) CreateAPIKey(ctx context.Context, name string, role Role, keyHash string) (*APIKeyRecord, error) {
	record, err := c.store.CreateAPIKey(ctx, name, role, keyHash)
	if err != nil {
		return nil, err
	}
	c.Invalidate()
	return record, nil
}

// SetAPIKeyEnabled passes through and invalidates the cache.
func (c *CachedCredentialStore) SetAPIKeyEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := c.store.SetAPIKeyEnabled(ctx, id, enabled); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// UpdateAPIKeyHash passes through and invalidates the cache.
func (c *CachedCredentialStore) UpdateAPIKeyHash(ctx context.Context, id int64, keyHash string) error {
	if err := c.store.UpdateAPIKeyHash(ctx, id, keyHash); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// TouchAPIKey passes through without invalidating; last-used freshness
// is not worth a cache miss on the hot path.
func (c *CachedCredentialStore) TouchAPIKey(ctx context.Context, id int64) error {
	return c.store.TouchAPIKey(ctx, id)
}

// Compile-time interface verification.
var _ CredentialStore = (*CachedCredentialStore)(nil)
