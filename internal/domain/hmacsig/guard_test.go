package hmacsig

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/warden-gate/wardengate/internal/domain/auth"
)

const testSecret = "shared-hmac-secret"

// apiKeyContext builds an API-key context the way the resolver would,
// going through the resolver so the unexported raw secret is populated.
func apiKeyContext(t *testing.T, keyID int64) *auth.SecurityContext {
	t.Helper()
	hasher := auth.NewPBKDF2Hasher()
	hash, err := hasher.Hash(testSecret)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	store := &staticStore{record: auth.APIKeyRecord{
		ID: keyID, Name: "test", KeyHash: hash, Role: auth.RoleClient, Enabled: true,
	}}
	r := auth.NewIdentityResolver(store, hasher, nil, "", nil)
	sc, err := r.Resolve(t.Context(), auth.Credentials{APIKey: testSecret})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return sc
}

type staticStore struct {
	record auth.APIKeyRecord
}

func (s *staticStore) ListAPIKeys(ctx context.Context) ([]auth.APIKeyRecord, error) {
	return []auth.APIKeyRecord{s.record}, nil
}
func (s *staticStore) GetAPIKey(ctx context.Context, id int64) (*auth.APIKeyRecord, error) {
	return &s.record, nil
}
func (s *staticStore) CreateAPIKey(ctx context.Context, name string, role auth.Role, keyHash string) (*auth.APIKeyRecord, error) {
	return &s.record, nil
}
func (s *staticStore) SetAPIKeyEnabled(ctx context.Context, id int64, enabled bool) error { return nil }
func (s *staticStore) UpdateAPIKeyHash(ctx context.Context, id int64, keyHash string) error {
	s.record.KeyHash = keyHash
	return nil
}
func (s *staticStore) TouchAPIKey(ctx context.Context, id int64) error { return nil }

// Compile-time check that staticStore implements CredentialStore.
var _ auth.CredentialStore = (*staticStore)(nil)

func signedRequest(ts int64, nonce string, body []byte) SignedRequest {
	return SignedRequest{
		Method:    "POST",
		Path:      "/v1/chat",
		Body:      body,
		Signature: Sign(testSecret, ts, nonce, "POST", "/v1/chat", body),
		Timestamp: strconv.FormatInt(ts, 10),
		Nonce:     nonce,
	}
}

func guardCode(t *testing.T, err error) string {
	t.Helper()
	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *AuthError", err)
	}
	return authErr.Code
}

func TestGuard_AcceptsFreshSignatureExactlyOnce(t *testing.T) {
	g := NewGuard(0)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	sc := apiKeyContext(t, 1)
	body := []byte(`{"q":"hello"}`)
	req := signedRequest(now.Unix(), "nonce-1", body)

	if err := g.Verify(req, sc); err != nil {
		t.Fatalf("first Verify() error = %v", err)
	}

	// Identical (timestamp, nonce, body) again: replay.
	err := g.Verify(req, sc)
	if err == nil {
		t.Fatal("second Verify() error = nil, want hmac_replay")
	}
	if got := guardCode(t, err); got != auth.CodeHMACReplay {
		t.Errorf("code = %q, want %q", got, auth.CodeHMACReplay)
	}
}

func TestGuard_WindowViolationBeforeSignatureCheck(t *testing.T) {
	g := NewGuard(300 * time.Second)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }
	sc := apiKeyContext(t, 1)

	tests := []struct {
		name string
		ts   int64
	}{
		{"too old", now.Add(-301 * time.Second).Unix()},
		{"too far in the future", now.Add(301 * time.Second).Unix()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Valid signature, invalid window: window wins.
			req := signedRequest(tt.ts, "n", nil)
			err := g.Verify(req, sc)
			if got := guardCode(t, err); got != auth.CodeHMACWindowViolation {
				t.Errorf("code = %q, want %q", got, auth.CodeHMACWindowViolation)
			}

			// Garbage signature, same window violation: same code, so a
			// client can distinguish clock skew from tampering.
			req.Signature = "deadbeef"
			err = g.Verify(req, sc)
			if got := guardCode(t, err); got != auth.CodeHMACWindowViolation {
				t.Errorf("garbage sig: code = %q, want %q", got, auth.CodeHMACWindowViolation)
			}
		})
	}
}

func TestGuard_Failures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sc := apiKeyContext(t, 1)

	tests := []struct {
		name     string
		mutate   func(*SignedRequest)
		wantCode string
	}{
		{
			name:     "missing signature header",
			mutate:   func(r *SignedRequest) { r.Signature = "" },
			wantCode: auth.CodeHMACMissingHeaders,
		},
		{
			name:     "missing timestamp header",
			mutate:   func(r *SignedRequest) { r.Timestamp = "" },
			wantCode: auth.CodeHMACMissingHeaders,
		},
		{
			name:     "missing nonce header",
			mutate:   func(r *SignedRequest) { r.Nonce = "" },
			wantCode: auth.CodeHMACMissingHeaders,
		},
		{
			name:     "non-numeric timestamp",
			mutate:   func(r *SignedRequest) { r.Timestamp = "yesterday" },
			wantCode: auth.CodeHMACBadTimestamp,
		},
		{
			name:     "tampered body",
			mutate:   func(r *SignedRequest) { r.Body = []byte("tampered") },
			wantCode: auth.CodeHMACMismatch,
		},
		{
			name:     "tampered path",
			mutate:   func(r *SignedRequest) { r.Path = "/admin/keys" },
			wantCode: auth.CodeHMACMismatch,
		},
		{
			name:     "wrong signature",
			mutate:   func(r *SignedRequest) { r.Signature = "deadbeef" },
			wantCode: auth.CodeHMACMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(0)
			g.now = func() time.Time { return now }

			req := signedRequest(now.Unix(), "nonce", []byte("body"))
			tt.mutate(&req)
			err := g.Verify(req, sc)
			if err == nil {
				t.Fatal("Verify() error = nil, want AuthError")
			}
			if got := guardCode(t, err); got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestGuard_UppercaseSignatureAccepted(t *testing.T) {
	g := NewGuard(0)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }
	sc := apiKeyContext(t, 1)

	req := signedRequest(now.Unix(), "nonce-up", nil)
	req.Signature = strings.ToUpper(req.Signature)
	if err := g.Verify(req, sc); err != nil {
		t.Errorf("Verify(uppercase signature) error = %v", err)
	}
}

func TestGuard_JWTContextExempt(t *testing.T) {
	g := NewGuard(0)
	sc := &auth.SecurityContext{
		Kind:    auth.KindJWT,
		Subject: "user:alice",
		Roles:   []auth.Role{auth.RoleClient},
	}
	// No signature headers at all; JWT contexts skip the guard.
	if err := g.Verify(SignedRequest{Method: "POST", Path: "/v1/chat"}, sc); err != nil {
		t.Errorf("Verify(jwt context) error = %v, want nil", err)
	}
}

func TestGuard_NonceExpiryAllowsReuseAfterWindow(t *testing.T) {
	g := NewGuard(300 * time.Second)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }
	sc := apiKeyContext(t, 1)

	if err := g.Verify(signedRequest(now.Unix(), "n1", nil), sc); err != nil {
		t.Fatalf("first Verify() error = %v", err)
	}

	// After the window the old nonce is pruned; a fresh signature with
	// the same nonce value is accepted again.
	now = now.Add(301 * time.Second)
	if err := g.Verify(signedRequest(now.Unix(), "n1", nil), sc); err != nil {
		t.Errorf("Verify(after window) error = %v, want nil", err)
	}
}

func TestGuard_NonceCapacityEvictsOldest(t *testing.T) {
	g := NewGuard(time.Hour)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }
	sc := apiKeyContext(t, 1)

	for i := 0; i <= maxNoncesPerIdentity; i++ {
		now = now.Add(time.Millisecond)
		nonce := fmt.Sprintf("n-%d", i)
		if err := g.Verify(signedRequest(now.Unix(), nonce, nil), sc); err != nil {
			t.Fatalf("Verify(%s) error = %v", nonce, err)
		}
	}

	// The first nonce was evicted by capacity, so reusing it is accepted
	// (fresh insert), while a recent one still replays.
	now = now.Add(time.Millisecond)
	if err := g.Verify(signedRequest(now.Unix(), "n-0", nil), sc); err != nil {
		t.Errorf("Verify(evicted nonce) error = %v, want nil", err)
	}
	err := g.Verify(signedRequest(now.Unix(), fmt.Sprintf("n-%d", maxNoncesPerIdentity), nil), sc)
	if err == nil {
		t.Error("Verify(recent nonce) error = nil, want hmac_replay")
	}
}
