package memory

import (
	"context"
	"sync"
	"time"

	"github.com/warden-gate/wardengate/internal/domain/audit"
)

// AuditStore implements audit.Store with an in-memory slice.
type AuditStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
	nextID  int64

	now func() time.Time
}

// NewAuditStore creates an empty in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1, now: time.Now}
}

// Append writes one entry, assigning its id and timestamp.
func (s *AuditStore) Append(ctx context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID
	entry.Timestamp = s.now().UTC()
	s.nextID++
	s.entries = append(s.entries, entry)
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]audit.Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

var _ audit.Store = (*AuditStore)(nil)
