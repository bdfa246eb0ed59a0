package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine-readable error codes surfaced to clients.
// Each terminal failure maps to exactly one code so clients can
// distinguish, for example, clock skew from tampering.
const (
	CodeCredentialsMissing = "credentials_missing"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidToken       = "invalid_token"
	CodeUnknownKID         = "unknown_kid"
	CodeTokenExpired       = "token_expired"
	CodeInvalidAudience    = "invalid_audience"
	CodeInvalidIssuer      = "invalid_issuer"
	CodeInsufficientRole   = "insufficient_role"

	CodeHMACMissingHeaders  = "hmac_missing_headers"
	CodeHMACBadTimestamp    = "hmac_bad_timestamp"
	CodeHMACWindowViolation = "hmac_window_violation"
	CodeHMACMismatch        = "hmac_mismatch"
	CodeHMACReplay          = "hmac_replay"
)

// ErrNoCredentials signals that a request carried no credentials at all.
// It is distinct from the AuthError taxonomy: callers that allow anonymous
// access treat it as success, callers that require authentication convert
// it to CodeCredentialsMissing.
var ErrNoCredentials = errors.New("no credentials provided")

// AuthError is a terminal authentication or authorization failure.
// It carries a stable code, an HTTP-equivalent status, and a short
// human message. It never contains secrets or internal details.
type AuthError struct {
	Code    string
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unauthorized builds a 401-class AuthError.
func Unauthorized(code, message string) *AuthError {
	return &AuthError{Code: code, Status: http.StatusUnauthorized, Message: message}
}

// Forbidden builds a 403-class AuthError.
func Forbidden(code, message string) *AuthError {
	return &AuthError{Code: code, Status: http.StatusForbidden, Message: message}
}
