package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/warden-gate/wardengate/internal/domain/audit"
	"github.com/warden-gate/wardengate/internal/domain/auth"
	"github.com/warden-gate/wardengate/internal/domain/provider"
)

type echoProvider struct {
	prompts []string
}

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) Generate(ctx context.Context, prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	return "echoed answer", nil
}

var _ provider.Provider = (*echoProvider)(nil)

func newChatFixture(t *testing.T, retriever Retriever, p provider.Provider) (*ChatService, *captureAuditStore, *echoProvider) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	echo, _ := p.(*echoProvider)
	chain := provider.NewChain([]provider.Provider{p},
		map[string]*provider.Breaker{p.Name(): provider.NewBreaker(p.Name())},
		provider.WithChainLogger(logger))

	auditStore := &captureAuditStore{}
	recorder := audit.NewRecorder(auditStore, logger)
	return NewChatService(retriever, chain, recorder, logger), auditStore, echo
}

func testContext() *auth.SecurityContext {
	return &auth.SecurityContext{Kind: auth.KindAPIKey, Subject: "key:1", Roles: []auth.Role{auth.RoleClient}}
}

func TestAnswer_WithCandidates(t *testing.T) {
	retriever := RetrieverFunc(func(ctx context.Context, query string, limit int) ([]Candidate, error) {
		if limit != retrievalLimit {
			t.Errorf("limit = %d, want %d", limit, retrievalLimit)
		}
		return []Candidate{
			{Title: "refunds", Snippet: "refunds take 5 days", Score: 0.9},
			{Title: "shipping", Snippet: "ships in 48h", Score: 0.4},
		}, nil
	})
	svc, auditStore, echo := newChatFixture(t, retriever, &echoProvider{})

	answer := svc.Answer(context.Background(), testContext(), "how long do refunds take?")
	if answer.Text != "echoed answer" {
		t.Errorf("Text = %q", answer.Text)
	}
	if answer.Candidates != 2 {
		t.Errorf("Candidates = %d, want 2", answer.Candidates)
	}

	if len(echo.prompts) != 1 {
		t.Fatalf("provider saw %d prompts", len(echo.prompts))
	}
	prompt := echo.prompts[0]
	if !strings.Contains(prompt, "refunds take 5 days") || !strings.Contains(prompt, "how long do refunds take?") {
		t.Errorf("prompt = %q", prompt)
	}
	if strings.Contains(prompt, provider.NoContextMarker) {
		t.Error("prompt with candidates carries the no-context marker")
	}

	if len(auditStore.entries) != 1 || auditStore.entries[0].Action != audit.ActionChat {
		t.Errorf("audit entries = %+v", auditStore.entries)
	}
}

func TestAnswer_NoCandidates(t *testing.T) {
	retriever := RetrieverFunc(func(ctx context.Context, query string, limit int) ([]Candidate, error) {
		return nil, nil
	})
	svc, _, echo := newChatFixture(t, retriever, &echoProvider{})

	answer := svc.Answer(context.Background(), testContext(), "anything?")
	if answer.Candidates != 0 {
		t.Errorf("Candidates = %d, want 0", answer.Candidates)
	}
	if !strings.Contains(echo.prompts[0], provider.NoContextMarker) {
		t.Errorf("prompt = %q, want no-context marker", echo.prompts[0])
	}
}

func TestAnswer_RetrievalFailureDegrades(t *testing.T) {
	retriever := RetrieverFunc(func(ctx context.Context, query string, limit int) ([]Candidate, error) {
		return nil, errors.New("index unavailable")
	})
	svc, _, echo := newChatFixture(t, retriever, &echoProvider{})

	answer := svc.Answer(context.Background(), testContext(), "anything?")
	if answer.Text != "echoed answer" {
		t.Errorf("Text = %q", answer.Text)
	}
	if !strings.Contains(echo.prompts[0], provider.NoContextMarker) {
		t.Error("failed retrieval did not degrade to the no-context prompt")
	}
}

type canceledSensitiveProvider struct{}

func (canceledSensitiveProvider) Name() string { return "cancel-check" }

func (canceledSensitiveProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "survived cancellation", nil
}

func TestAnswer_SurvivesClientCancellation(t *testing.T) {
	retriever := RetrieverFunc(func(ctx context.Context, query string, limit int) ([]Candidate, error) {
		return nil, nil
	})
	svc, _, _ := newChatFixture(t, retriever, canceledSensitiveProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	answer := svc.Answer(ctx, testContext(), "still there?")
	if answer.Text != "survived cancellation" {
		t.Errorf("Text = %q, canceled request reached the provider", answer.Text)
	}
}
