// Package llm provides HTTP adapters for the outbound language-model
// providers guarded by the provider chain.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/warden-gate/wardengate/internal/domain/provider"
)

const (
	defaultTimeout  = 20 * time.Second
	systemPrompt    = "You are a helpful assistant. Answer using the supplied context."
	maxOutputTokens = 220
	samplingTemp    = 0.2
)

// sanitizeHeaderValue strips non-printable-ASCII bytes so header values
// built from configuration can never smuggle control characters.
func sanitizeHeaderValue(v string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(v) {
		if r >= 0x20 && r <= 0x7e {
			b.WriteRune(r)
		}
	}
	const maxLen = 256
	s := b.String()
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// OpenRouter calls an OpenAI-compatible chat completions endpoint.
type OpenRouter struct {
	baseURL string
	apiKey  string
	model   string
	referer string
	title   string
	client  *http.Client
}

// OpenRouterConfig configures the OpenRouter provider.
type OpenRouterConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Referer and Title are optional attribution headers.
	Referer string
	Title   string
	Timeout time.Duration
}

// NewOpenRouter creates the provider. Missing endpoint or key is not an
// error here; Generate reports ErrNotConfigured per attempt instead, so
// a half-configured provider just loses its slot in the failover chain.
func NewOpenRouter(cfg OpenRouterConfig) *OpenRouter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Model == "" {
		cfg.Model = "openrouter/auto"
	}
	return &OpenRouter{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  sanitizeHeaderValue(cfg.APIKey),
		model:   cfg.Model,
		referer: sanitizeHeaderValue(cfg.Referer),
		title:   sanitizeHeaderValue(cfg.Title),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the stable provider name.
func (p *OpenRouter) Name() string { return provider.NameOpenRouter }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends one chat completion request and returns the first
// choice's trimmed content.
func (p *OpenRouter) Generate(ctx context.Context, prompt string) (string, error) {
	if p.baseURL == "" || p.apiKey == "" {
		return "", provider.ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: samplingTemp,
		MaxTokens:   maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if p.referer != "" {
		req.Header.Set("HTTP-Referer", p.referer)
	}
	if p.title != "" {
		req.Header.Set("X-Title", p.title)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

var _ provider.Provider = (*OpenRouter)(nil)
