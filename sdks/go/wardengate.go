// Package wardengate provides a Go SDK for the Warden Gate chat gateway.
//
// Warden Gate is a request-security layer in front of a retrieval-augmented
// chat backend. This SDK lets Go programs ask questions through the gateway
// and manage API keys, handling authentication, optional request signing,
// and typed error mapping. It uses only the Go standard library with zero
// external dependencies.
//
// Quick start:
//
//	// Set WARDEN_GATE_SERVER_ADDR and WARDEN_GATE_API_KEY env vars, then:
//	client := wardengate.NewClient()
//
//	resp, err := client.Chat(ctx, "how do I rotate the signing key?")
//	if err != nil {
//	    if errors.Is(err, wardengate.ErrRateLimited) {
//	        // back off and retry
//	    }
//	}
//	fmt.Println(resp.Answer)
package wardengate

// ChatResponse is the gateway's answer to a chat query.
type ChatResponse struct {
	// Answer is the generated answer text. It is always non-empty; when
	// every upstream model is unavailable the gateway substitutes a
	// deterministic local answer instead of failing.
	Answer string `json:"answer"`

	// Candidates is the number of retrieval candidates that informed the
	// answer. Zero means the gateway answered without supporting data.
	Candidates int `json:"candidates"`
}

// APIKey describes a provisioned API key. The secret itself is only
// returned once, at creation time.
type APIKey struct {
	// ID is the key's row identifier, used for enable and disable calls.
	ID int64 `json:"id"`

	// Name is the operator-chosen label for the key.
	Name string `json:"name"`

	// Role is the access level: ADMIN, ANALYST, or CLIENT.
	Role string `json:"role"`

	// Enabled reports whether the key currently authenticates.
	Enabled bool `json:"enabled"`

	// CreatedAt is the ISO 8601 creation timestamp.
	CreatedAt string `json:"created_at"`

	// LastUsed is the ISO 8601 timestamp of the key's last successful
	// authentication, empty if never used.
	LastUsed string `json:"last_used_at,omitempty"`
}

// CreatedKey is the result of provisioning a new API key.
type CreatedKey struct {
	// Key is the provisioned key record.
	Key APIKey `json:"key"`

	// Secret is the plaintext key material. The gateway stores only a
	// hash; this is the single chance to capture it.
	Secret string `json:"secret"`
}

// AuditEntry is one row of the gateway's audit trail. Actors are either
// authenticated subjects ("key:<id>", "user:<sub>") or irreversible
// digests of anonymous callers.
type AuditEntry struct {
	// ID is the entry's row identifier.
	ID int64 `json:"id"`

	// Timestamp is the ISO 8601 time the entry was recorded.
	Timestamp string `json:"timestamp"`

	// Actor identifies who triggered the entry.
	Actor string `json:"actor"`

	// Action is the event kind, for example "chat_request" or "auth_denied".
	Action string `json:"action"`

	// Path is the request path the entry relates to.
	Path string `json:"path"`

	// Status is "ok" or "denied".
	Status string `json:"status"`

	// Note carries event-specific detail, such as a denial code.
	Note string `json:"note,omitempty"`
}
