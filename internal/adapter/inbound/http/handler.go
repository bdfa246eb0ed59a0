package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/warden-gate/wardengate/internal/domain/auth"
	"github.com/warden-gate/wardengate/internal/domain/ratelimit"
	"github.com/warden-gate/wardengate/internal/service"
)

const maxBodyBytes = 1 << 20

// Credential and signature header names.
const (
	headerAPIKey    = "X-API-Key"
	headerSignature = "X-Signature"
	headerTimestamp = "X-Timestamp"
	headerNonce     = "X-Nonce"
)

// errorResponse is the wire shape of every terminal error.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// inboundRequest builds the pipeline view of r. The body must already
// be read so the replay guard hashes the exact bytes received.
func inboundRequest(r *http.Request, body []byte, tenantHeader string) service.InboundRequest {
	bearer := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		bearer = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	tenant := ""
	if tenantHeader != "" {
		tenant = r.Header.Get(tenantHeader)
	}
	return service.InboundRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Body:        body,
		APIKey:      r.Header.Get(headerAPIKey),
		BearerToken: bearer,
		Signature:   r.Header.Get(headerSignature),
		Timestamp:   r.Header.Get(headerTimestamp),
		Nonce:       r.Header.Get(headerNonce),
		TenantID:    tenant,
		RemoteAddr:  r.RemoteAddr,
	}
}

// writeError maps pipeline errors onto stable JSON error bodies.
// Unknown errors become an opaque 500: no internals leak to clients.
func writeError(w http.ResponseWriter, err error) {
	var ae *auth.AuthError
	if errors.As(err, &ae) {
		writeJSON(w, ae.Status, errorResponse{Code: ae.Code, Message: ae.Message})
		return
	}

	var le *ratelimit.LimitExceededError
	if errors.As(err, &le) {
		w.Header().Set("Retry-After", strconv.Itoa(int(le.RetryAfter.Seconds())))
		writeJSON(w, le.Status(), errorResponse{Code: le.Code(), Message: "Rate limit exceeded"})
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Code:    "internal_error",
		Message: "Internal server error",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Code:    "body_too_large",
			Message: "Request body exceeds the size limit",
		})
		return nil, false
	}
	return body, true
}

type chatRequest struct {
	Query string `json:"query"`
}

type chatResponse struct {
	Answer     string `json:"answer"`
	Candidates int    `json:"candidates"`
}

// chatHandler serves POST /v1/chat: full admission pipeline, then
// retrieval-augmented generation.
func chatHandler(security *service.SecurityService, chat *service.ChatService, tenantHeader string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}

		sc, err := security.Admit(r.Context(), inboundRequest(r, body, tenantHeader),
			auth.RoleClient, auth.RoleAnalyst, auth.RoleAdmin)
		if err != nil {
			writeError(w, err)
			return
		}

		var req chatRequest
		if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.Query) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Code:    "invalid_request",
				Message: "Body must be JSON with a non-empty query field",
			})
			return
		}

		answer := chat.Answer(r.Context(), sc, strings.TrimSpace(req.Query))
		writeJSON(w, http.StatusOK, chatResponse{Answer: answer.Text, Candidates: answer.Candidates})
	})
}

func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
