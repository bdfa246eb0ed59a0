// Package hmacsig verifies HMAC request signatures and rejects replayed nonces.
package hmacsig

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/warden-gate/wardengate/internal/domain/auth"
)

const (
	// DefaultWindow is the permitted clock skew between the signed
	// timestamp and server time, in either direction.
	DefaultWindow = 300 * time.Second

	// maxNoncesPerIdentity caps each identity's nonce set; the oldest
	// entry is evicted on overflow.
	maxNoncesPerIdentity = 256
)

// SignedRequest is the signature-relevant view of one inbound request.
type SignedRequest struct {
	Method    string
	Path      string
	Body      []byte
	Signature string
	Timestamp string
	Nonce     string
}

// Guard verifies request signatures for API-key-authenticated contexts.
// JWT contexts are exempt: the token carries its own integrity.
// Safe for concurrent use.
type Guard struct {
	window    time.Duration
	maxNonces int

	mu     sync.Mutex
	nonces map[string]*nonceBucket

	now func() time.Time
}

// NewGuard creates a replay guard with the given timestamp window.
// A zero window selects DefaultWindow.
func NewGuard(window time.Duration) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Guard{
		window:    window,
		maxNonces: maxNoncesPerIdentity,
		nonces:    make(map[string]*nonceBucket),
		now:       time.Now,
	}
}

// Verify checks the signature headers of req against the caller's shared
// secret and records the nonce. Returns nil for JWT contexts.
//
// The timestamp window is checked before any signature computation so an
// out-of-window request costs no hashing, and its failure code is stable
// regardless of signature validity.
func (g *Guard) Verify(req SignedRequest, sc *auth.SecurityContext) error {
	if sc.Kind != auth.KindAPIKey || sc.RawSecret() == "" {
		return nil
	}

	signature := strings.ToLower(strings.TrimSpace(req.Signature))
	nonce := strings.TrimSpace(req.Nonce)
	if signature == "" || req.Timestamp == "" || nonce == "" {
		return auth.Unauthorized(auth.CodeHMACMissingHeaders, "Missing HMAC headers")
	}

	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return auth.Unauthorized(auth.CodeHMACBadTimestamp, "Invalid signature timestamp")
	}

	now := g.now()
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > g.window {
		return auth.Unauthorized(auth.CodeHMACWindowViolation, "Signature timestamp outside permitted window")
	}

	expected := Sign(sc.RawSecret(), ts, nonce, req.Method, req.Path, req.Body)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return auth.Unauthorized(auth.CodeHMACMismatch, "Invalid HMAC signature")
	}

	return g.recordNonce(identityKey(sc), nonce, now)
}

// recordNonce prunes expired entries, rejects a reuse, inserts the nonce,
// and evicts the oldest entry when the bucket exceeds its capacity.
func (g *Guard) recordNonce(key, nonce string, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	bucket, ok := g.nonces[key]
	if !ok {
		bucket = newNonceBucket()
		g.nonces[key] = bucket
	}

	bucket.pruneExpired(now, g.window)
	if bucket.contains(nonce) {
		return auth.Unauthorized(auth.CodeHMACReplay, "Nonce already used")
	}
	bucket.insert(nonce, now)
	for bucket.len() > g.maxNonces {
		bucket.evictOldest()
	}
	return nil
}

// identityKey maps a context to its nonce cache key. Stored keys use the
// row id; the static bootstrap key uses an irreversible secret digest.
func identityKey(sc *auth.SecurityContext) string {
	if sc.APIKeyID != 0 {
		return auth.SubjectForKey(sc.APIKeyID)
	}
	return "keyhash:" + auth.SecretDigest(sc.RawSecret())
}

// CanonicalString builds the message covered by the signature:
// timestamp, nonce, upper-case method, path, and the hex SHA-256 of the
// body, joined by ".".
func CanonicalString(timestamp int64, nonce, method, path string, body []byte) string {
	digest := sha256.Sum256(body)
	return fmt.Sprintf("%d.%s.%s.%s.%s",
		timestamp, nonce, strings.ToUpper(method), path, hex.EncodeToString(digest[:]))
}

// Sign computes the lowercase hex HMAC-SHA256 signature a client must send.
// Exported for client SDK and test use.
func Sign(secret string, timestamp int64, nonce, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(CanonicalString(timestamp, nonce, method, path, body)))
	return hex.EncodeToString(mac.Sum(nil))
}

// nonceBucket is an insertion-ordered nonce set. Insertion times only
// ever increase, so insertion order doubles as timestamp order and the
// pruning pass never disturbs the order of still-valid entries.
type nonceBucket struct {
	order []string
	seen  map[string]time.Time
}

func newNonceBucket() *nonceBucket {
	return &nonceBucket{seen: make(map[string]time.Time)}
}

func (b *nonceBucket) contains(nonce string) bool {
	_, ok := b.seen[nonce]
	return ok
}

func (b *nonceBucket) insert(nonce string, now time.Time) {
	b.order = append(b.order, nonce)
	b.seen[nonce] = now
}

func (b *nonceBucket) len() int {
	return len(b.seen)
}

// pruneExpired drops entries older than the window from the front.
func (b *nonceBucket) pruneExpired(now time.Time, window time.Duration) {
	cut := 0
	for cut < len(b.order) {
		ts, ok := b.seen[b.order[cut]]
		if ok && now.Sub(ts) <= window {
			break
		}
		if ok {
			delete(b.seen, b.order[cut])
		}
		cut++
	}
	b.order = b.order[cut:]
}

func (b *nonceBucket) evictOldest() {
	if len(b.order) == 0 {
		return
	}
	delete(b.seen, b.order[0])
	b.order = b.order[1:]
}
