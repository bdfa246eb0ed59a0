package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"strconv"
)

// Credentials are the raw credential headers extracted by the transport.
type Credentials struct {
	// APIKey is the X-API-Key header value, if present.
	APIKey string
	// BearerToken is the token from an "Authorization: Bearer" header, if present.
	BearerToken string
}

// Present reports whether any credential was supplied.
func (c Credentials) Present() bool {
	return c.APIKey != "" || c.BearerToken != ""
}

// IdentityResolver verifies API keys or JWTs and builds SecurityContexts.
//
// Resolution precedence: an API key is tried before a bearer token, and a
// present-but-invalid credential fails hard rather than falling through
// to anonymous.
//
// SECURITY: raw key material is never logged. Failures log only the
// credential kind and an irreversible digest where an identity is needed.
type IdentityResolver struct {
	store  CredentialStore
	hasher SecretHasher
	jwt    *JWTVerifier

	// staticSecret is an optional operational bootstrap key granting
	// RoleAdmin, compared in constant time. Empty disables the fallback.
	staticSecret string

	logger *slog.Logger
}

// NewIdentityResolver builds a resolver. jwt may be nil (JWT auth disabled),
// staticSecret may be empty (no bootstrap fallback).
func NewIdentityResolver(store CredentialStore, hasher SecretHasher, jwt *JWTVerifier, staticSecret string, logger *slog.Logger) *IdentityResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityResolver{
		store:        store,
		hasher:       hasher,
		jwt:          jwt,
		staticSecret: staticSecret,
		logger:       logger,
	}
}

// Resolve authenticates the supplied credentials.
// Returns ErrNoCredentials when nothing was supplied, an *AuthError for any
// present-but-invalid credential, and a SecurityContext on success.
func (r *IdentityResolver) Resolve(ctx context.Context, creds Credentials) (*SecurityContext, error) {
	if creds.APIKey != "" {
		return r.resolveAPIKey(ctx, creds.APIKey)
	}
	if creds.BearerToken != "" {
		if r.jwt == nil {
			return nil, Unauthorized(CodeInvalidToken, "JWT authentication is not configured")
		}
		return r.jwt.Verify(creds.BearerToken)
	}
	return nil, ErrNoCredentials
}

// resolveAPIKey verifies the secret against every enabled stored record,
// then against the static bootstrap secret. Store failures fail closed.
func (r *IdentityResolver) resolveAPIKey(ctx context.Context, rawKey string) (*SecurityContext, error) {
	records, err := r.store.ListAPIKeys(ctx)
	if err != nil {
		// Fail closed: an unreachable credential store must never admit.
		r.logger.Error("credential store unavailable during authentication", "error", err)
		return nil, Unauthorized(CodeInvalidCredentials, "Invalid authentication credentials")
	}

	for i := range records {
		record := &records[i]
		if !record.Enabled {
			continue
		}
		match, verifyErr := r.hasher.Verify(record.KeyHash, rawKey)
		if verifyErr != nil || !match {
			continue
		}
		r.maybeUpgradeHash(ctx, record, rawKey)
		if touchErr := r.store.TouchAPIKey(ctx, record.ID); touchErr != nil {
			r.logger.Warn("failed to update key last-used timestamp", "key_id", record.ID, "error", touchErr)
		}
		return &SecurityContext{
			Kind:       KindAPIKey,
			Subject:    SubjectForKey(record.ID),
			Roles:      []Role{record.Role},
			APIKeyID:   record.ID,
			APIKeyName: record.Name,
			rawSecret:  rawKey,
		}, nil
	}

	if r.staticSecret != "" &&
		subtle.ConstantTimeCompare([]byte(r.staticSecret), []byte(rawKey)) == 1 {
		return &SecurityContext{
			Kind:       KindAPIKey,
			Subject:    "key:static",
			Roles:      []Role{RoleAdmin},
			APIKeyName: "static_env_key",
			rawSecret:  rawKey,
		}, nil
	}

	return nil, Unauthorized(CodeInvalidCredentials, "Invalid authentication credentials")
}

// maybeUpgradeHash transparently re-hashes and persists a stronger hash
// when the stored one is below the configured target parameters.
func (r *IdentityResolver) maybeUpgradeHash(ctx context.Context, record *APIKeyRecord, rawKey string) {
	if !r.hasher.NeedsUpgrade(record.KeyHash) {
		return
	}
	newHash, err := r.hasher.Hash(rawKey)
	if err != nil {
		r.logger.Warn("failed to compute upgraded key hash", "key_id", record.ID, "error", err)
		return
	}
	if err := r.store.UpdateAPIKeyHash(ctx, record.ID, newHash); err != nil {
		r.logger.Warn("failed to persist upgraded key hash", "key_id", record.ID, "error", err)
		return
	}
	r.logger.Info("upgraded stored key hash", "key_id", record.ID)
}

// SubjectForKey formats the principal subject for a stored API key.
func SubjectForKey(id int64) string {
	return "key:" + strconv.FormatInt(id, 10)
}

// SecretDigest returns a short irreversible digest of a raw secret,
// usable in nonce cache keys and log lines for the static bootstrap key.
func SecretDigest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])[:16]
}
