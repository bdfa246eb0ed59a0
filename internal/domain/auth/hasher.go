package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/pbkdf2"
)

// ErrUnknownHashFormat is returned when a stored hash has an unrecognized encoding.
var ErrUnknownHashFormat = errors.New("unknown hash format")

// SecretHasher hashes API key secrets and verifies candidates against
// stored encodings. Exactly one implementation is selected at startup;
// nothing switches schemes at call time. Both implementations recognize
// both stored encodings so that keys hashed under the other scheme keep
// verifying and get transparently upgraded via NeedsUpgrade.
type SecretHasher interface {
	// Hash returns the encoded hash of secret under this hasher's scheme.
	Hash(secret string) (string, error)
	// Verify reports whether secret matches the stored encoding.
	// The comparison is constant-time on mismatch.
	Verify(encoded, secret string) (bool, error)
	// NeedsUpgrade reports whether the stored encoding is weaker than
	// this hasher's configured target parameters.
	NeedsUpgrade(encoded string) bool
}

// Argon2idHasher is the primary, memory-hard scheme.
type Argon2idHasher struct {
	params *argon2id.Params
}

// NewArgon2idHasher returns an Argon2idHasher with the production parameters:
// time=2, memory=50 MiB, parallelism=2, 16-byte salt, 32-byte key.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: &argon2id.Params{
		Memory:      51200, // KiB
		Iterations:  2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}}
}

// Hash returns an Argon2id hash in PHC format.
func (h *Argon2idHasher) Hash(secret string) (string, error) {
	return argon2id.CreateHash(secret, h.params)
}

// Verify checks secret against an Argon2id or PBKDF2 encoded hash.
func (h *Argon2idHasher) Verify(encoded, secret string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return compareArgon2id(secret, encoded)
	case strings.HasPrefix(encoded, pbkdf2Prefix):
		return pbkdf2Verify(encoded, secret)
	default:
		return false, ErrUnknownHashFormat
	}
}

// NeedsUpgrade reports true for PBKDF2 hashes and for Argon2id hashes
// with parameters below the configured target.
func (h *Argon2idHasher) NeedsUpgrade(encoded string) bool {
	if !strings.HasPrefix(encoded, "$argon2id$") {
		return true
	}
	params, _, _, err := argon2id.DecodeHash(encoded)
	if err != nil {
		return false
	}
	return params.Memory < h.params.Memory ||
		params.Iterations < h.params.Iterations ||
		params.Parallelism < h.params.Parallelism
}

// compareArgon2id wraps argon2id.ComparePasswordAndHash with panic recovery.
// The underlying argon2 implementation panics on malformed hashes with
// degenerate parameters (t=0, p=0); those become errors here so Verify
// never panics on hostile stored data.
func compareArgon2id(secret, encoded string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(secret, encoded)
}

const (
	pbkdf2Prefix     = "pbkdf2$"
	pbkdf2HashName   = "sha256"
	pbkdf2Iterations = 480000
	pbkdf2SaltLen    = 16
	pbkdf2KeyLen     = 32
)

// PBKDF2Hasher is the fallback iterated-hash scheme, selected by
// configuration for environments where the Argon2id memory cost is
// not acceptable.
type PBKDF2Hasher struct {
	iterations int
}

// NewPBKDF2Hasher returns a PBKDF2-SHA256 hasher with 480000 iterations.
func NewPBKDF2Hasher() *PBKDF2Hasher {
	return &PBKDF2Hasher{iterations: pbkdf2Iterations}
}

// Hash returns a "pbkdf2$sha256$<iter>$<b64 salt>$<b64 dk>" encoding.
func (h *PBKDF2Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	dk := pbkdf2.Key([]byte(secret), salt, h.iterations, pbkdf2KeyLen, sha256.New)
	return strings.Join([]string{
		"pbkdf2",
		pbkdf2HashName,
		strconv.Itoa(h.iterations),
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(dk),
	}, "$"), nil
}

// Verify checks secret against a PBKDF2 or Argon2id encoded hash.
func (h *PBKDF2Hasher) Verify(encoded, secret string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, pbkdf2Prefix):
		return pbkdf2Verify(encoded, secret)
	case strings.HasPrefix(encoded, "$argon2id$"):
		return compareArgon2id(secret, encoded)
	default:
		return false, ErrUnknownHashFormat
	}
}

// NeedsUpgrade reports true for encodings of the other scheme and for
// PBKDF2 hashes with fewer iterations than the configured target.
func (h *PBKDF2Hasher) NeedsUpgrade(encoded string) bool {
	if !strings.HasPrefix(encoded, pbkdf2Prefix) {
		return true
	}
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return false
	}
	iter, err := strconv.Atoi(parts[2])
	if err != nil {
		return false
	}
	return iter < h.iterations
}

// pbkdf2Verify checks a candidate secret against a PBKDF2 encoding
// using a constant-time digest comparison.
func pbkdf2Verify(encoded, secret string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "pbkdf2" || parts[1] != pbkdf2HashName {
		return false, ErrUnknownHashFormat
	}
	iter, err := strconv.Atoi(parts[2])
	if err != nil || iter <= 0 {
		return false, ErrUnknownHashFormat
	}
	salt, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return false, ErrUnknownHashFormat
	}
	digest, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrUnknownHashFormat
	}
	candidate := pbkdf2.Key([]byte(secret), salt, iter, len(digest), sha256.New)
	return hmac.Equal(candidate, digest), nil
}

// NewSecretHasher selects the hashing scheme at startup.
// Valid schemes: "argon2id" (default) and "pbkdf2".
func NewSecretHasher(scheme string) (SecretHasher, error) {
	switch scheme {
	case "", "argon2id":
		return NewArgon2idHasher(), nil
	case "pbkdf2":
		return NewPBKDF2Hasher(), nil
	default:
		return nil, fmt.Errorf("unknown hash scheme %q", scheme)
	}
}
