package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/warden-gate/wardengate/internal/domain/audit"
	"github.com/warden-gate/wardengate/internal/domain/auth"
	"github.com/warden-gate/wardengate/internal/domain/provider"
)

// Candidate is one ranked record returned by retrieval.
type Candidate struct {
	Title   string
	Snippet string
	Score   float64
}

// Retriever finds candidate records for a query. Retrieval itself
// (vector search, full-text, ranking) lives behind this port.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, query string, limit int) ([]Candidate, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query string, limit int) ([]Candidate, error) {
	return f(ctx, query, limit)
}

// ChatAnswer is the result of one chat request.
type ChatAnswer struct {
	Text       string
	Candidates int
}

const retrievalLimit = 5

// ChatService glues retrieval to the guarded provider chain.
type ChatService struct {
	retriever Retriever
	chain     *provider.Chain
	recorder  *audit.Recorder
	logger    *slog.Logger
}

// NewChatService creates the chat service.
func NewChatService(retriever Retriever, chain *provider.Chain, recorder *audit.Recorder, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ChatService{
		retriever: retriever,
		chain:     chain,
		recorder:  recorder,
		logger:    logger,
	}
}

// Answer retrieves candidates for query, assembles the prompt, and asks
// the provider chain. It always returns text: retrieval failures degrade
// to the no-context prompt, and the chain absorbs provider failures.
func (s *ChatService) Answer(ctx context.Context, sc *auth.SecurityContext, query string) ChatAnswer {
	candidates, err := s.retriever.Retrieve(ctx, query, retrievalLimit)
	if err != nil {
		s.logger.Warn("retrieval failed, answering without context", "error", err)
		candidates = nil
	}

	prompt := buildPrompt(query, candidates)

	// The answer must complete even if the client goes away mid-call:
	// a canceled request must not count as a provider failure.
	text := s.chain.Ask(context.WithoutCancel(ctx), prompt)

	s.recorder.Record(ctx, sc.Subject, audit.ActionChat, "/v1/chat", audit.StatusSuccess, "")
	return ChatAnswer{Text: text, Candidates: len(candidates)}
}

func buildPrompt(query string, candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the data below.\n\n")
	if len(candidates) == 0 {
		b.WriteString(provider.NoContextMarker)
	} else {
		b.WriteString("Relevant data:\n")
		for _, c := range candidates {
			fmt.Fprintf(&b, "- %s: %s\n", c.Title, c.Snippet)
		}
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return b.String()
}
