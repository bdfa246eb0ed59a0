// Package auth contains the domain types and logic for authentication.
package auth

import (
	"time"
)

// Role represents a caller role for authorization purposes.
type Role string

const (
	// RoleAdmin has full access including key management and audit reads.
	RoleAdmin Role = "ADMIN"
	// RoleAnalyst has read access to audit and operational data.
	RoleAnalyst Role = "ANALYST"
	// RoleClient has access to the chat endpoints only.
	RoleClient Role = "CLIENT"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleAnalyst, RoleClient:
		return true
	default:
		return false
	}
}

// ParseRole converts a raw claim or config string to a Role.
// Unknown role strings return false rather than an error so callers
// can drop them without failing the whole credential.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.IsValid()
}

// AuthKind identifies the credential type that produced a SecurityContext.
type AuthKind string

const (
	// KindAPIKey marks contexts produced from an X-API-Key header.
	KindAPIKey AuthKind = "api_key"
	// KindJWT marks contexts produced from a bearer token.
	KindJWT AuthKind = "jwt"
)

// APIKeyRecord is the persisted metadata for one API key.
// The plaintext secret is generated once at creation time and never stored;
// KeyHash is the only durable representation.
type APIKeyRecord struct {
	ID         int64
	Name       string
	KeyHash    string
	Role       Role
	Enabled    bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// SecurityContext is the authenticated principal for a single request.
// It is created once by the IdentityResolver, is immutable afterwards,
// and is discarded when the request completes.
//
// A SecurityContext always carries at least one role; the resolver never
// constructs one with an empty role set.
type SecurityContext struct {
	// Kind is the credential type: api_key or jwt.
	Kind AuthKind
	// Subject identifies the principal: "key:<id>", "key:static", or "user:<sub>".
	Subject string
	// Roles is the non-empty set of roles granted to the principal.
	Roles []Role
	// Scopes are optional fine-grained permissions from the JWT scope claim.
	Scopes []string

	// APIKeyID is the key row id for api_key contexts (0 for the static key).
	APIKeyID int64
	// APIKeyName is the display name of the matched key.
	APIKeyName string

	// JWTID is the jti claim for jwt contexts, if present.
	JWTID string
	// ExpiresAt is the token expiry for jwt contexts, if present.
	ExpiresAt *time.Time
	// Claims holds the verified JWT claims for jwt contexts.
	Claims map[string]any

	// rawSecret is the plaintext API key, retained only so the replay guard
	// can compute HMAC expectations. It is unexported so it cannot leak
	// through struct printing or JSON encoding, and it MUST never be logged.
	rawSecret string
}

// RawSecret returns the plaintext API key for api_key contexts.
// Empty for jwt contexts.
func (c *SecurityContext) RawSecret() string {
	return c.rawSecret
}

// HasRole returns true if the context carries the given role.
func (c *SecurityContext) HasRole(role Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole returns true if the context carries any of the given roles.
func (c *SecurityContext) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if c.HasRole(role) {
			return true
		}
	}
	return false
}

// HasScope returns true if the context carries the given scope.
func (c *SecurityContext) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
