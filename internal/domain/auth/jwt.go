package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtLeeway is the bounded clock-skew tolerance for exp/nbf validation.
const jwtLeeway = 120 * time.Second

// errUnknownKID is surfaced from the keyfunc when a token names a key id
// that is not in the registry. Mapped to CodeUnknownKID at the boundary.
var errUnknownKID = errors.New("jwt key id not recognized")

// jwtKey is one entry in the verification key registry.
// Exactly one of rsaKey or secret is set, chosen by key material shape:
// PEM-encoded material verifies RS256, anything else is an HS256 secret.
type jwtKey struct {
	alg    string
	rsaKey *rsa.PublicKey
	secret []byte
}

// JWTVerifier validates bearer tokens against a small static registry of
// verification keys, one per configured key id.
type JWTVerifier struct {
	keys       map[string]jwtKey
	defaultKID string
	issuer     string
	audience   string
	parser     *jwt.Parser
}

// JWTKeyConfig is one registry entry from configuration.
type JWTKeyConfig struct {
	KID string
	// Material is either a PEM-encoded RSA public key or a shared HMAC secret.
	Material string
}

// NewJWTVerifier builds a verifier from the configured key registry.
// Returns nil when the registry is empty (JWT auth disabled).
func NewJWTVerifier(keys []JWTKeyConfig, issuer, audience string) (*JWTVerifier, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	v := &JWTVerifier{
		keys:     make(map[string]jwtKey, len(keys)),
		issuer:   issuer,
		audience: audience,
	}
	for _, kc := range keys {
		if kc.KID == "" {
			return nil, errors.New("jwt key registry entry missing kid")
		}
		if strings.Contains(kc.Material, "-----BEGIN") {
			pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(kc.Material))
			if err != nil {
				return nil, fmt.Errorf("parse public key for kid %q: %w", kc.KID, err)
			}
			v.keys[kc.KID] = jwtKey{alg: "RS256", rsaKey: pub}
		} else {
			v.keys[kc.KID] = jwtKey{alg: "HS256", secret: []byte(kc.Material)}
		}
		if v.defaultKID == "" {
			v.defaultKID = kc.KID
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(jwtLeeway),
		jwt.WithValidMethods([]string{"HS256", "RS256"}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

// Verify validates the token and builds a SecurityContext from its claims.
// Every failure is terminal and carries a distinct stable error code.
func (v *JWTVerifier) Verify(tokenString string) (*SecurityContext, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, v.keyfunc)
	if err != nil {
		return nil, mapJWTError(err)
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return nil, Unauthorized(CodeInvalidToken, "JWT missing subject")
	}

	roles := rolesFromClaim(claims["roles"])
	if len(roles) == 0 {
		return nil, Forbidden(CodeInsufficientRole, "JWT lacks required role claims")
	}

	scopes := scopesFromClaim(claims)

	sc := &SecurityContext{
		Kind:    KindJWT,
		Subject: "user:" + subject,
		Roles:   roles,
		Scopes:  scopes,
		Claims:  claims,
	}
	if jti, ok := claims["jti"].(string); ok {
		sc.JWTID = jti
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time.UTC()
		sc.ExpiresAt = &t
	}
	return sc, nil
}

// keyfunc resolves the verification key from the token header and pins the
// algorithm to the key's shape: RSA material never verifies HS256 and an
// HMAC secret never verifies RS256.
func (v *JWTVerifier) keyfunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		kid = v.defaultKID
	}
	key, ok := v.keys[kid]
	if !ok {
		return nil, errUnknownKID
	}
	if token.Method.Alg() != key.alg {
		return nil, fmt.Errorf("unexpected signing method %s for kid %q", token.Method.Alg(), kid)
	}
	if key.rsaKey != nil {
		return key.rsaKey, nil
	}
	return key.secret, nil
}

// mapJWTError converts golang-jwt validation errors to the stable taxonomy.
func mapJWTError(err error) *AuthError {
	switch {
	case errors.Is(err, errUnknownKID):
		return Unauthorized(CodeUnknownKID, "JWT key id not recognized")
	case errors.Is(err, jwt.ErrTokenExpired):
		return Unauthorized(CodeTokenExpired, "JWT token expired")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return Unauthorized(CodeInvalidAudience, "JWT audience mismatch")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return Unauthorized(CodeInvalidIssuer, "JWT issuer mismatch")
	default:
		return Unauthorized(CodeInvalidToken, "JWT validation failed")
	}
}

// rolesFromClaim accepts a string or list role claim. Unrecognized role
// strings are dropped, not fatal; the caller rejects an empty result.
func rolesFromClaim(raw any) []Role {
	var values []string
	switch v := raw.(type) {
	case string:
		values = []string{v}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
	case []string:
		values = v
	}
	var roles []Role
	for _, s := range values {
		if role, ok := ParseRole(s); ok && !containsRole(roles, role) {
			roles = append(roles, role)
		}
	}
	return roles
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// scopesFromClaim reads "scope" (space-delimited string) or "scopes" (list).
func scopesFromClaim(claims jwt.MapClaims) []string {
	raw, ok := claims["scope"]
	if !ok {
		raw = claims["scopes"]
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []any:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				scopes = append(scopes, s)
			}
		}
		return scopes
	case []string:
		return v
	default:
		return nil
	}
}
