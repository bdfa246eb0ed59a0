// Package service contains the application services that orchestrate the
// domain: the admission pipeline for inbound requests, chat handling,
// and API key administration.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/warden-gate/wardengate/internal/domain/audit"
	"github.com/warden-gate/wardengate/internal/domain/auth"
	"github.com/warden-gate/wardengate/internal/domain/hmacsig"
	"github.com/warden-gate/wardengate/internal/domain/ratelimit"
)

// InboundRequest is the transport-agnostic view of one request entering
// the admission pipeline. The HTTP adapter populates it from headers.
type InboundRequest struct {
	Method string
	Path   string
	Body   []byte

	APIKey      string
	BearerToken string

	Signature string
	Timestamp string
	Nonce     string

	// TenantID is the value of the configured tenant header, if any.
	TenantID   string
	RemoteAddr string
}

// SecurityService runs the admission pipeline: authentication, role
// check, replay guard, and rate limit, strictly in that order. Each
// stage narrows trust further; none may be skipped or reordered.
type SecurityService struct {
	resolver *auth.IdentityResolver
	guard    *hmacsig.Guard
	limiter  *ratelimit.Limiter
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewSecurityService wires the pipeline stages together.
func NewSecurityService(
	resolver *auth.IdentityResolver,
	guard *hmacsig.Guard,
	limiter *ratelimit.Limiter,
	recorder *audit.Recorder,
	logger *slog.Logger,
) *SecurityService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SecurityService{
		resolver: resolver,
		guard:    guard,
		limiter:  limiter,
		recorder: recorder,
		logger:   logger,
	}
}

// Admit runs the full pipeline for req and returns the authenticated
// context, or the first terminal error. Denials are audited with the
// best identity known at the point of failure.
func (s *SecurityService) Admit(ctx context.Context, req InboundRequest, allowed ...auth.Role) (*auth.SecurityContext, error) {
	sc, err := s.resolver.Resolve(ctx, auth.Credentials{
		APIKey:      req.APIKey,
		BearerToken: req.BearerToken,
	})
	if err != nil {
		if errors.Is(err, auth.ErrNoCredentials) {
			err = auth.Unauthorized(auth.CodeCredentialsMissing, "Credentials are required")
		}
		s.auditDenied(ctx, s.anonymousIdentity(req), req.Path, err)
		return nil, err
	}

	if err := auth.EnsureRoles(sc, allowed...); err != nil {
		s.auditDenied(ctx, sc.Subject, req.Path, err)
		return nil, err
	}

	if s.guard != nil {
		err := s.guard.Verify(hmacsig.SignedRequest{
			Method:    req.Method,
			Path:      req.Path,
			Body:      req.Body,
			Signature: req.Signature,
			Timestamp: req.Timestamp,
			Nonce:     req.Nonce,
		}, sc)
		if err != nil {
			s.auditDenied(ctx, sc.Subject, req.Path, err)
			return nil, err
		}
	}

	if err := s.limiter.Allow(ctx, s.RateIdentity(req, sc)); err != nil {
		s.recorder.Record(ctx, sc.Subject, audit.ActionRateLimit, req.Path, audit.StatusDenied, "")
		return nil, err
	}

	return sc, nil
}

// RateIdentity chooses the bucket key for req: the authenticated
// subject when present, else the tenant header, else the remote host.
func (s *SecurityService) RateIdentity(req InboundRequest, sc *auth.SecurityContext) string {
	if sc != nil && sc.Subject != "" {
		return sc.Subject
	}
	return s.anonymousIdentity(req)
}

func (s *SecurityService) anonymousIdentity(req InboundRequest) string {
	if req.TenantID != "" {
		return audit.ActorDigest(req.TenantID)
	}
	host := req.RemoteAddr
	if h, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		host = h
	}
	return audit.ActorDigest(host)
}

func (s *SecurityService) auditDenied(ctx context.Context, actor, path string, err error) {
	note := ""
	var ae *auth.AuthError
	if errors.As(err, &ae) {
		note = ae.Code
	}
	s.recorder.Record(ctx, actor, audit.ActionAuthDenied, path, audit.StatusDenied, note)
}
