package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/warden-gate/wardengate/internal/domain/audit"
	"github.com/warden-gate/wardengate/internal/domain/auth"
)

// KeyAdminService manages the API key lifecycle for the admin HTTP
// surface and the CLI. Mutations invalidate the resolver's read cache
// through the cached store and are audited.
type KeyAdminService struct {
	store    *auth.CachedCredentialStore
	hasher   auth.SecretHasher
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewKeyAdminService creates the key administration service.
func NewKeyAdminService(store *auth.CachedCredentialStore, hasher auth.SecretHasher, recorder *audit.Recorder, logger *slog.Logger) *KeyAdminService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &KeyAdminService{
		store:    store,
		hasher:   hasher,
		recorder: recorder,
		logger:   logger,
	}
}

// CreateKey generates a fresh secret, stores only its hash, and returns
// the plaintext exactly once alongside the stored record. The plaintext
// is never logged and never persisted.
func (s *KeyAdminService) CreateKey(ctx context.Context, actor, name string, role auth.Role) (string, *auth.APIKeyRecord, error) {
	if name == "" {
		return "", nil, fmt.Errorf("key name cannot be empty")
	}
	if !role.IsValid() {
		return "", nil, fmt.Errorf("unknown role %q", role)
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash secret: %w", err)
	}

	record, err := s.store.CreateAPIKey(ctx, name, role, hash)
	if err != nil {
		return "", nil, fmt.Errorf("failed to store key: %w", err)
	}

	s.recorder.Record(ctx, actor, audit.ActionKeyCreate, "", audit.StatusSuccess,
		"id="+strconv.FormatInt(record.ID, 10)+" role="+string(role))
	s.logger.Info("api key created",
		"key_id", record.ID,
		"name", name,
		"role", role,
	)
	return secret, record, nil
}

// ListKeys returns key metadata. Hashes are blanked: the listing
// surface never exposes secret material of any form.
func (s *KeyAdminService) ListKeys(ctx context.Context, includeDisabled bool) ([]auth.APIKeyRecord, error) {
	records, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	out := make([]auth.APIKeyRecord, 0, len(records))
	for _, rec := range records {
		if !includeDisabled && !rec.Enabled {
			continue
		}
		rec.KeyHash = ""
		out = append(out, rec)
	}
	return out, nil
}

// EnableKey re-enables a disabled key.
func (s *KeyAdminService) EnableKey(ctx context.Context, actor string, id int64) error {
	return s.setEnabled(ctx, actor, id, true)
}

// DisableKey disables a key. The read cache means the key may keep
// working for up to the cache TTL; that staleness is bounded and
// accepted.
func (s *KeyAdminService) DisableKey(ctx context.Context, actor string, id int64) error {
	return s.setEnabled(ctx, actor, id, false)
}

func (s *KeyAdminService) setEnabled(ctx context.Context, actor string, id int64, enabled bool) error {
	if err := s.store.SetAPIKeyEnabled(ctx, id, enabled); err != nil {
		return err
	}

	action := audit.ActionKeyDisable
	if enabled {
		action = audit.ActionKeyEnable
	}
	s.recorder.Record(ctx, actor, action, "", audit.StatusSuccess,
		"id="+strconv.FormatInt(id, 10))
	s.logger.Info("api key state changed", "key_id", id, "enabled", enabled)
	return nil
}

// RecentAudit returns up to limit recent audit entries, newest first.
func (s *KeyAdminService) RecentAudit(ctx context.Context, limit int) ([]audit.Entry, error) {
	return s.recorder.Recent(ctx, limit)
}
