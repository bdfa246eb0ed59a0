package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testKID      = "primary"
	testSecret   = "jwt-shared-secret"
	testIssuer   = "https://issuer.example"
	testAudience = "wardengate"
)

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(
		[]JWTKeyConfig{{KID: testKID, Material: testSecret}},
		testIssuer, testAudience,
	)
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	return v
}

func signToken(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "alice",
		"iss":   testIssuer,
		"aud":   testAudience,
		"exp":   time.Now().Add(10 * time.Minute).Unix(),
		"roles": []string{"CLIENT"},
	}
}

func TestJWTVerifier_Valid(t *testing.T) {
	v := newTestVerifier(t)

	claims := baseClaims()
	claims["jti"] = "token-1"
	claims["roles"] = []string{"CLIENT", "ANALYST", "bogus-role"}
	claims["scope"] = "chat:read chat:write"

	sc, err := v.Verify(signToken(t, testKID, claims))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if sc.Kind != KindJWT {
		t.Errorf("Kind = %q, want %q", sc.Kind, KindJWT)
	}
	if sc.Subject != "user:alice" {
		t.Errorf("Subject = %q, want user:alice", sc.Subject)
	}
	// Unrecognized role strings are dropped, not fatal.
	if len(sc.Roles) != 2 || !sc.HasRole(RoleClient) || !sc.HasRole(RoleAnalyst) {
		t.Errorf("Roles = %v, want [CLIENT ANALYST]", sc.Roles)
	}
	if !sc.HasScope("chat:write") {
		t.Errorf("Scopes = %v, want to contain chat:write", sc.Scopes)
	}
	if sc.JWTID != "token-1" {
		t.Errorf("JWTID = %q, want token-1", sc.JWTID)
	}
	if sc.ExpiresAt == nil {
		t.Error("ExpiresAt = nil, want set")
	}
	if sc.RawSecret() != "" {
		t.Error("jwt context must not carry a raw secret")
	}
}

func TestJWTVerifier_ScopesList(t *testing.T) {
	v := newTestVerifier(t)
	claims := baseClaims()
	claims["scopes"] = []string{"a", "b"}

	sc, err := v.Verify(signToken(t, testKID, claims))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !sc.HasScope("a") || !sc.HasScope("b") {
		t.Errorf("Scopes = %v, want [a b]", sc.Scopes)
	}
}

func TestJWTVerifier_Failures(t *testing.T) {
	v := newTestVerifier(t)

	tests := []struct {
		name     string
		token    func(t *testing.T) string
		wantCode string
	}{
		{
			name: "expired token",
			token: func(t *testing.T) string {
				claims := baseClaims()
				// Beyond the 120s leeway.
				claims["exp"] = time.Now().Add(-5 * time.Minute).Unix()
				return signToken(t, testKID, claims)
			},
			wantCode: CodeTokenExpired,
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				claims := baseClaims()
				claims["aud"] = "someone-else"
				return signToken(t, testKID, claims)
			},
			wantCode: CodeInvalidAudience,
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				claims := baseClaims()
				claims["iss"] = "https://evil.example"
				return signToken(t, testKID, claims)
			},
			wantCode: CodeInvalidIssuer,
		},
		{
			name: "unknown kid",
			token: func(t *testing.T) string {
				return signToken(t, "retired-key", baseClaims())
			},
			wantCode: CodeUnknownKID,
		},
		{
			name: "unrecognized roles only",
			token: func(t *testing.T) string {
				claims := baseClaims()
				claims["roles"] = []string{"SUPERUSER"}
				return signToken(t, testKID, claims)
			},
			wantCode: CodeInsufficientRole,
		},
		{
			name: "missing roles claim",
			token: func(t *testing.T) string {
				claims := baseClaims()
				delete(claims, "roles")
				return signToken(t, testKID, claims)
			},
			wantCode: CodeInsufficientRole,
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				claims := baseClaims()
				delete(claims, "sub")
				return signToken(t, testKID, claims)
			},
			wantCode: CodeInvalidToken,
		},
		{
			name: "tampered signature",
			token: func(t *testing.T) string {
				return signToken(t, testKID, baseClaims()) + "x"
			},
			wantCode: CodeInvalidToken,
		},
		{
			name: "garbage token",
			token: func(t *testing.T) string {
				return "not.a.jwt"
			},
			wantCode: CodeInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token(t))
			if err == nil {
				t.Fatal("Verify() error = nil, want AuthError")
			}
			if got := authCode(t, err); got != tt.wantCode {
				t.Errorf("Verify() code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestJWTVerifier_ExpiryWithinLeeway(t *testing.T) {
	v := newTestVerifier(t)
	claims := baseClaims()
	// Just expired, but inside the 120s leeway.
	claims["exp"] = time.Now().Add(-30 * time.Second).Unix()

	if _, err := v.Verify(signToken(t, testKID, claims)); err != nil {
		t.Errorf("Verify() error = %v, want nil inside leeway", err)
	}
}

func TestNewJWTVerifier_EmptyRegistry(t *testing.T) {
	v, err := NewJWTVerifier(nil, testIssuer, testAudience)
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	if v != nil {
		t.Error("NewJWTVerifier(empty) = non-nil, want nil (disabled)")
	}
}
