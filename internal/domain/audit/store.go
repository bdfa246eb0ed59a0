package audit

import (
	"context"
	"log/slog"
)

// Store persists audit entries. Implementations: SQLite (prod),
// in-memory (dev/tests).
type Store interface {
	// Append writes one entry. The Timestamp and ID fields of the input
	// are ignored; the store assigns them.
	Append(ctx context.Context, entry Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Recorder writes audit entries and never propagates a write failure:
// availability of the request path must not depend on audit durability,
// so failures are logged and swallowed.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder. A nil store disables auditing.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record appends one audit row. Errors are logged, never returned.
func (r *Recorder) Record(ctx context.Context, actor, action, path, status, note string) {
	if r == nil || r.store == nil {
		return
	}
	entry := Entry{Actor: actor, Action: action, Path: path, Status: status, Note: note}
	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.Error("failed to write audit entry",
			"action", action,
			"path", path,
			"error", err)
	}
}

// Recent returns up to limit entries, newest first. With auditing
// disabled it returns an empty slice.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if r == nil || r.store == nil {
		return nil, nil
	}
	return r.store.Recent(ctx, limit)
}
