// Package audit provides the append-only audit trail types and ports.
package audit

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is one immutable audit row. Entries are append-only: nothing in
// this core ever updates or deletes one.
type Entry struct {
	ID        int64
	Timestamp time.Time
	Actor     string
	Action    string
	Path      string
	Status    string
	Note      string
}

// Well-known action names.
const (
	ActionKeyCreate  = "api_key_create"
	ActionKeyEnable  = "api_key_enable"
	ActionKeyDisable = "api_key_disable"
	ActionChat       = "chat_request"
	ActionAuthDenied = "auth_denied"
	ActionRateLimit  = "rate_limited"
)

// Statuses for audit rows.
const (
	StatusSuccess = "success"
	StatusDenied  = "denied"
	StatusError   = "error"
)

// ActorDigest returns a short irreversible digest for identities that are
// not already opaque (raw header values, remote addresses). Subjects like
// "key:7" are logged as-is; anything sensitive goes through this first.
func ActorDigest(identity string) string {
	return "anon:" + strconv.FormatUint(xxhash.Sum64String(identity), 16)
}
