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

// LocalInference calls a text-generation inference server that accepts
// the {"inputs": ..., "parameters": ...} request shape.
type LocalInference struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// LocalInferenceConfig configures the local inference provider.
type LocalInferenceConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// NewLocalInference creates the provider. As with OpenRouter, a missing
// endpoint surfaces as ErrNotConfigured at call time.
func NewLocalInference(cfg LocalInferenceConfig) *LocalInference {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &LocalInference{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   sanitizeHeaderValue(cfg.APIKey),
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the stable provider name.
func (p *LocalInference) Name() string { return provider.NameLocalInference }

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

// Generate posts the prompt and parses the generated text. The server
// may answer with either a bare object or a one-element list, so both
// shapes are accepted.
func (p *LocalInference) Generate(ctx context.Context, prompt string) (string, error) {
	if p.endpoint == "" {
		return "", provider.ErrNotConfigured
	}

	body, err := json.Marshal(inferenceRequest{
		Inputs: prompt,
		Parameters: inferenceParameters{
			MaxNewTokens: maxOutputTokens,
			Temperature:  samplingTemp,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
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

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return parseGeneratedText(raw)
}

type generatedText struct {
	GeneratedText string `json:"generated_text"`
}

func parseGeneratedText(raw []byte) (string, error) {
	var list []generatedText
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0].GeneratedText != "" {
		return strings.TrimSpace(list[0].GeneratedText), nil
	}

	var obj generatedText
	if err := json.Unmarshal(raw, &obj); err == nil && obj.GeneratedText != "" {
		return strings.TrimSpace(obj.GeneratedText), nil
	}

	return "", fmt.Errorf("unrecognized response shape")
}

var _ provider.Provider = (*LocalInference)(nil)
