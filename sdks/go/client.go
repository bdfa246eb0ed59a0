package wardengate

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client is the Warden Gate SDK client. It talks to the gateway's chat and
// key administration endpoints over HTTP.
type Client struct {
	serverAddr   string
	apiKey       string
	tenantID     string
	signRequests bool
	timeout      time.Duration
	httpClient   *http.Client

	logger *slog.Logger
}

// NewClient creates a new Warden Gate SDK client.
// It reads configuration from WARDEN_GATE_* environment variables by
// default. Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr:   os.Getenv("WARDEN_GATE_SERVER_ADDR"),
		apiKey:       os.Getenv("WARDEN_GATE_API_KEY"),
		tenantID:     os.Getenv("WARDEN_GATE_TENANT_ID"),
		signRequests: parseBoolEnv("WARDEN_GATE_SIGN_REQUESTS"),
		timeout:      parseDurationEnv("WARDEN_GATE_TIMEOUT", 10*time.Second),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Chat sends a question through the gateway and returns the answer. The
// gateway degrades rather than fails: when retrieval or every upstream
// model is down, the response still carries a usable answer.
func (c *Client) Chat(ctx context.Context, query string) (*ChatResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query cannot be empty")
	}
	var resp ChatResponse
	err := c.doRequest(ctx, http.MethodPost, "/v1/chat", nil, map[string]string{"query": query}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateKey provisions a new API key. Requires an ADMIN key. The returned
// secret is shown exactly once; the gateway keeps only a hash.
func (c *Client) CreateKey(ctx context.Context, name, role string) (*CreatedKey, error) {
	var resp CreatedKey
	err := c.doRequest(ctx, http.MethodPost, "/admin/keys", nil,
		map[string]string{"name": name, "role": role}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListKeys returns the provisioned keys, hashes omitted. Disabled keys are
// included only when includeDisabled is true. Requires an ADMIN key.
func (c *Client) ListKeys(ctx context.Context, includeDisabled bool) ([]APIKey, error) {
	query := url.Values{}
	if includeDisabled {
		query.Set("include_disabled", "true")
	}
	var resp struct {
		Keys []APIKey `json:"keys"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/admin/keys", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// EnableKey re-enables a disabled API key. Requires an ADMIN key.
func (c *Client) EnableKey(ctx context.Context, id int64) error {
	return c.setKeyEnabled(ctx, id, "enable")
}

// DisableKey disables an API key. The key stops authenticating on the
// next request. Requires an ADMIN key.
func (c *Client) DisableKey(ctx context.Context, id int64) error {
	return c.setKeyEnabled(ctx, id, "disable")
}

func (c *Client) setKeyEnabled(ctx context.Context, id int64, verb string) error {
	path := fmt.Sprintf("/admin/keys/%d/%s", id, verb)
	return c.doRequest(ctx, http.MethodPost, path, nil, nil, nil)
}

// RecentAudit returns the newest audit entries, most recent first.
// Requires an ADMIN or ANALYST key. A limit of 0 uses the server default.
func (c *Client) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Entries []AuditEntry `json:"entries"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/admin/audit", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Health reports whether the gateway answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// doRequest performs an HTTP request against the gateway and maps error
// responses to typed errors. The signature, when enabled, covers the
// method, the path without the query string, and the body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body, result any) error {
	fullURL := strings.TrimRight(c.serverAddr, "/") + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}
	if c.tenantID != "" {
		httpReq.Header.Set("X-Tenant-ID", c.tenantID)
	}
	if c.signRequests {
		if err := c.signRequest(httpReq, method, path, payload); err != nil {
			return err
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &ServerUnreachableError{Cause: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return c.mapError(httpResp, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// signRequest attaches the HMAC headers: a fresh random nonce, the current
// unix timestamp, and a SHA-256 HMAC over the canonical request string
// keyed with the API key.
func (c *Client) signRequest(req *http.Request, method, path string, payload []byte) error {
	if c.apiKey == "" {
		return errors.New("request signing requires an API key")
	}

	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(nonceBytes)
	ts := time.Now().Unix()

	bodyHash := sha256.Sum256(payload)
	canonical := fmt.Sprintf("%d.%s.%s.%s.%s",
		ts, nonce, strings.ToUpper(method), path, hex.EncodeToString(bodyHash[:]))

	mac := hmac.New(sha256.New, []byte(c.apiKey))
	mac.Write([]byte(canonical))

	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	return nil
}

// mapError converts a non-2xx response into the matching typed error.
func (c *Client) mapError(resp *http.Response, body []byte) error {
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Second
		if raw := resp.Header.Get("Retry-After"); raw != "" {
			if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitedError{RetryAfter: retryAfter}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       parsed.Code,
		Message:    parsed.Message,
	}
}

// Helper functions for env var parsing.

func parseBoolEnv(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true"
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// Try parsing as seconds (integer).
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	// Try parsing as duration string.
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}
