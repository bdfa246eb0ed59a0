package wardengate

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base := []Option{WithServerAddr(srv.URL), WithAPIKey("test-key")}
	return NewClient(append(base, opts...)...)
}

func TestChat(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(ChatResponse{Answer: "use the rotate command", Candidates: 3})
	})

	resp, err := client.Chat(context.Background(), "how do I rotate the key?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Answer != "use the rotate command" {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if resp.Candidates != 3 {
		t.Errorf("Candidates = %d, want 3", resp.Candidates)
	}
	if gotPath != "/v1/chat" {
		t.Errorf("path = %q, want /v1/chat", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("X-API-Key = %q, want test-key", gotKey)
	}
	if gotBody["query"] != "how do I rotate the key?" {
		t.Errorf("query = %q", gotBody["query"])
	}
}

func TestChatEmptyQuery(t *testing.T) {
	client := NewClient(WithServerAddr("http://localhost:1"))
	if _, err := client.Chat(context.Background(), "   "); err == nil {
		t.Fatal("Chat() with blank query returned nil error")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		headers    map[string]string
		wantTarget error
	}{
		{
			name:       "401 maps to ErrUnauthorized",
			status:     http.StatusUnauthorized,
			body:       `{"code":"invalid_credentials","message":"Invalid authentication credentials"}`,
			wantTarget: ErrUnauthorized,
		},
		{
			name:       "403 maps to ErrForbidden",
			status:     http.StatusForbidden,
			body:       `{"code":"insufficient_role","message":"Insufficient permissions"}`,
			wantTarget: ErrForbidden,
		},
		{
			name:       "429 maps to ErrRateLimited",
			status:     http.StatusTooManyRequests,
			body:       `{"code":"rate_limited","message":"Too many requests"}`,
			headers:    map[string]string{"Retry-After": "7"},
			wantTarget: ErrRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.Chat(context.Background(), "q")
			if err == nil {
				t.Fatal("Chat() returned nil error")
			}
			if !errors.Is(err, tt.wantTarget) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantTarget)
			}
		})
	}
}

func TestRateLimitedRetryAfter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"code":"rate_limited","message":"Too many requests"}`)
	})

	_, err := client.Chat(context.Background(), "q")
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("error = %v, want *RateLimitedError", err)
	}
	if limited.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %s, want 7s", limited.RetryAfter)
	}
}

func TestServerUnreachable(t *testing.T) {
	client := NewClient(WithServerAddr("http://127.0.0.1:1"), WithAPIKey("k"),
		WithTimeout(200*time.Millisecond))
	_, err := client.Chat(context.Background(), "q")
	if !errors.Is(err, ErrServerUnreachable) {
		t.Fatalf("error = %v, want ErrServerUnreachable", err)
	}
}

func TestRequestSigning(t *testing.T) {
	const apiKey = "signing-key"
	var verified bool

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ts, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
		if err != nil {
			t.Errorf("bad X-Timestamp: %v", err)
		}
		nonce := r.Header.Get("X-Nonce")
		if nonce == "" {
			t.Error("X-Nonce header missing")
		}
		body, _ := io.ReadAll(r.Body)

		bodyHash := sha256.Sum256(body)
		canonical := fmt.Sprintf("%d.%s.%s.%s.%s",
			ts, nonce, r.Method, r.URL.Path, hex.EncodeToString(bodyHash[:]))
		mac := hmac.New(sha256.New, []byte(apiKey))
		mac.Write([]byte(canonical))
		want := hex.EncodeToString(mac.Sum(nil))

		if got := r.Header.Get("X-Signature"); got != want {
			t.Errorf("X-Signature = %q, want %q", got, want)
		} else {
			verified = true
		}
		_ = json.NewEncoder(w).Encode(ChatResponse{Answer: "ok"})
	}, WithAPIKey(apiKey), WithRequestSigning(true))

	if _, err := client.Chat(context.Background(), "signed"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !verified {
		t.Fatal("server never verified a signature")
	}
}

func TestSigningRequiresAPIKey(t *testing.T) {
	client := NewClient(WithServerAddr("http://localhost:1"), WithRequestSigning(true))
	client.apiKey = ""
	if _, err := client.Chat(context.Background(), "q"); err == nil {
		t.Fatal("signing without an API key returned nil error")
	}
}

func TestCreateKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/admin/keys" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["name"] != "reporting" || req["role"] != "ANALYST" {
			t.Errorf("request body = %v", req)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(CreatedKey{
			Key:    APIKey{ID: 4, Name: "reporting", Role: "ANALYST", Enabled: true},
			Secret: "the-one-time-secret",
		})
	})

	created, err := client.CreateKey(context.Background(), "reporting", "ANALYST")
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}
	if created.Secret != "the-one-time-secret" {
		t.Errorf("Secret = %q", created.Secret)
	}
	if created.Key.ID != 4 {
		t.Errorf("Key.ID = %d, want 4", created.Key.ID)
	}
}

func TestListKeys(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []APIKey{
				{ID: 1, Name: "a", Role: "CLIENT", Enabled: true},
				{ID: 2, Name: "b", Role: "ADMIN", Enabled: false},
			},
		})
	})

	keys, err := client.ListKeys(context.Background(), true)
	if err != nil {
		t.Fatalf("ListKeys() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2", len(keys))
	}
	if !strings.Contains(gotQuery, "include_disabled=true") {
		t.Errorf("query = %q, want include_disabled=true", gotQuery)
	}
}

func TestEnableDisableKey(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 9, "enabled": true})
	})

	if err := client.DisableKey(context.Background(), 9); err != nil {
		t.Fatalf("DisableKey() error = %v", err)
	}
	if err := client.EnableKey(context.Background(), 9); err != nil {
		t.Fatalf("EnableKey() error = %v", err)
	}
	want := []string{"/admin/keys/9/disable", "/admin/keys/9/enable"}
	for i, p := range want {
		if paths[i] != p {
			t.Errorf("path[%d] = %q, want %q", i, paths[i], p)
		}
	}
}

func TestRecentAudit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit = %q, want 10", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"entries": []AuditEntry{
				{ID: 2, Actor: "key:1", Action: "chat_request", Status: "ok"},
				{ID: 1, Actor: "anon:abc", Action: "auth_denied", Status: "denied"},
			},
		})
	})

	entries, err := client.RecentAudit(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentAudit() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != 2 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("WARDEN_GATE_SERVER_ADDR", "http://gate.internal:8087")
	t.Setenv("WARDEN_GATE_API_KEY", "env-key")
	t.Setenv("WARDEN_GATE_SIGN_REQUESTS", "true")
	t.Setenv("WARDEN_GATE_TIMEOUT", "30")

	c := NewClient()
	if c.serverAddr != "http://gate.internal:8087" {
		t.Errorf("serverAddr = %q", c.serverAddr)
	}
	if c.apiKey != "env-key" {
		t.Errorf("apiKey = %q", c.apiKey)
	}
	if !c.signRequests {
		t.Error("signRequests = false, want true")
	}
	if c.timeout != 30*time.Second {
		t.Errorf("timeout = %s, want 30s", c.timeout)
	}
}
