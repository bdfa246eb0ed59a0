package memory

import (
	"context"
	"sync"

	"github.com/warden-gate/wardengate/internal/domain/ratelimit"
)

// TenantLimitStore implements ratelimit.TenantLimitStore with a map.
type TenantLimitStore struct {
	mu     sync.RWMutex
	limits map[string]ratelimit.BucketConfig
}

// NewTenantLimitStore creates an empty in-memory tenant limit store.
func NewTenantLimitStore() *TenantLimitStore {
	return &TenantLimitStore{limits: make(map[string]ratelimit.BucketConfig)}
}

// GetTenantLimit returns the override for tenantID, or (nil, nil) when
// no override exists.
func (s *TenantLimitStore) GetTenantLimit(ctx context.Context, tenantID string) (*ratelimit.BucketConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.limits[tenantID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

// SetTenantLimit creates or replaces the override for tenantID.
func (s *TenantLimitStore) SetTenantLimit(tenantID string, cfg ratelimit.BucketConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[tenantID] = cfg
}

var _ ratelimit.TenantLimitStore = (*TenantLimitStore)(nil)
