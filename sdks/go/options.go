package wardengate

import (
	"log/slog"
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithServerAddr sets the Warden Gate server address.
// If not set, defaults to the WARDEN_GATE_SERVER_ADDR environment variable.
func WithServerAddr(addr string) Option {
	return func(c *Client) {
		c.serverAddr = addr
	}
}

// WithAPIKey sets the API key for authenticating with the gateway.
// If not set, defaults to the WARDEN_GATE_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout sets the HTTP request timeout.
// If not set, defaults to 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRequestSigning enables HMAC request signing. Turn this on when the
// gateway runs with signing required; every request then carries the
// X-Signature, X-Timestamp, and X-Nonce headers.
// If not set, defaults to the WARDEN_GATE_SIGN_REQUESTS environment
// variable ("1" or "true" enables it).
func WithRequestSigning(enabled bool) Option {
	return func(c *Client) {
		c.signRequests = enabled
	}
}

// WithTenant sets the tenant identifier sent with every request. Tenants
// can carry their own rate limit configuration on the gateway.
func WithTenant(tenantID string) Option {
	return func(c *Client) {
		c.tenantID = tenantID
	}
}

// WithHTTPClient sets a custom http.Client for making requests.
// This is useful for testing, proxying, or custom transport configurations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for client-side warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}
