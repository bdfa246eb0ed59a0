// Package memory provides in-memory implementations of outbound ports.
// Thread-safe. For development and testing only.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/warden-gate/wardengate/internal/domain/auth"
)

// CredentialStore implements auth.CredentialStore with an in-memory map.
type CredentialStore struct {
	mu     sync.RWMutex
	keys   map[int64]*auth.APIKeyRecord
	nextID int64

	now func() time.Time
}

// NewCredentialStore creates an empty in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		keys:   make(map[int64]*auth.APIKeyRecord),
		nextID: 1,
		now:    time.Now,
	}
}

// ListAPIKeys returns all key records ordered by id.
func (s *CredentialStore) ListAPIKeys(ctx context.Context) ([]auth.APIKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]auth.APIKeyRecord, 0, len(s.keys))
	for id := int64(1); id < s.nextID; id++ {
		if rec, ok := s.keys[id]; ok {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// GetAPIKey retrieves one record by id.
func (s *CredentialStore) GetAPIKey(ctx context.Context, id int64) (*auth.APIKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.keys[id]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	recCopy := *rec
	return &recCopy, nil
}

// CreateAPIKey inserts a new enabled key and returns the stored record.
func (s *CredentialStore) CreateAPIKey(ctx context.Context, name string, role auth.Role, keyHash string) (*auth.APIKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &auth.APIKeyRecord{
		ID:        s.nextID,
		Name:      name,
		KeyHash:   keyHash,
		Role:      role,
		Enabled:   true,
		CreatedAt: s.now().UTC(),
	}
	s.keys[rec.ID] = rec
	s.nextID++

	recCopy := *rec
	return &recCopy, nil
}

// SetAPIKeyEnabled toggles the enabled flag.
func (s *CredentialStore) SetAPIKeyEnabled(ctx context.Context, id int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[id]
	if !ok {
		return auth.ErrKeyNotFound
	}
	rec.Enabled = enabled
	return nil
}

// UpdateAPIKeyHash replaces the stored secret hash.
func (s *CredentialStore) UpdateAPIKeyHash(ctx context.Context, id int64, keyHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[id]
	if !ok {
		return auth.ErrKeyNotFound
	}
	rec.KeyHash = keyHash
	return nil
}

// TouchAPIKey updates the last-used timestamp.
func (s *CredentialStore) TouchAPIKey(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[id]
	if !ok {
		return auth.ErrKeyNotFound
	}
	t := s.now().UTC()
	rec.LastUsedAt = &t
	return nil
}

var _ auth.CredentialStore = (*CredentialStore)(nil)
