package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/warden-gate/wardengate/internal/domain/auth"
	"github.com/warden-gate/wardengate/internal/service"
)

type createKeyRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type keyResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Enabled   bool   `json:"enabled"`
	CreatedAt string `json:"created_at"`
	LastUsed  string `json:"last_used_at,omitempty"`
}

type createKeyResponse struct {
	Key    keyResponse `json:"key"`
	Secret string      `json:"secret"`
}

type auditEntryResponse struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Path      string `json:"path,omitempty"`
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
}

func toKeyResponse(rec auth.APIKeyRecord) keyResponse {
	resp := keyResponse{
		ID:        rec.ID,
		Name:      rec.Name,
		Role:      string(rec.Role),
		Enabled:   rec.Enabled,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.LastUsedAt != nil {
		resp.LastUsed = rec.LastUsedAt.Format(time.RFC3339)
	}
	return resp
}

// adminHandlers owns the key management and audit listing surface.
// Every route runs the full admission pipeline first; key mutations
// require the admin role, audit reads admit analysts too.
type adminHandlers struct {
	security     *service.SecurityService
	keys         *service.KeyAdminService
	tenantHeader string
}

func (h *adminHandlers) register(mux *http.ServeMux) {
	mux.Handle("GET /admin/keys", h.admit(h.listKeys, auth.RoleAdmin))
	mux.Handle("POST /admin/keys", h.admit(h.createKey, auth.RoleAdmin))
	mux.Handle("POST /admin/keys/{id}/enable", h.admit(h.setEnabled(true), auth.RoleAdmin))
	mux.Handle("POST /admin/keys/{id}/disable", h.admit(h.setEnabled(false), auth.RoleAdmin))
	mux.Handle("GET /admin/audit", h.admit(h.recentAudit, auth.RoleAdmin, auth.RoleAnalyst))
}

type adminHandlerFunc func(w http.ResponseWriter, r *http.Request, sc *auth.SecurityContext, body []byte)

func (h *adminHandlers) admit(fn adminHandlerFunc, allowed ...auth.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		sc, err := h.security.Admit(r.Context(), inboundRequest(r, body, h.tenantHeader), allowed...)
		if err != nil {
			writeError(w, err)
			return
		}
		fn(w, r, sc, body)
	})
}

func (h *adminHandlers) listKeys(w http.ResponseWriter, r *http.Request, sc *auth.SecurityContext, _ []byte) {
	includeDisabled := r.URL.Query().Get("include_disabled") == "true"
	records, err := h.keys.ListKeys(r.Context(), includeDisabled)
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to list keys", "error", err)
		writeError(w, err)
		return
	}
	out := make([]keyResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toKeyResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": out})
}

func (h *adminHandlers) createKey(w http.ResponseWriter, r *http.Request, sc *auth.SecurityContext, body []byte) {
	var req createKeyRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "invalid_request",
			Message: "Body must be JSON with name and role fields",
		})
		return
	}
	role, ok := auth.ParseRole(req.Role)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "invalid_request",
			Message: "Role must be one of ADMIN, ANALYST, CLIENT",
		})
		return
	}

	secret, record, err := h.keys.CreateKey(r.Context(), sc.Subject, req.Name, role)
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to create key", "error", err)
		writeError(w, err)
		return
	}
	// The secret appears in this response and nowhere else, ever.
	writeJSON(w, http.StatusCreated, createKeyResponse{Key: toKeyResponse(*record), Secret: secret})
}

func (h *adminHandlers) setEnabled(enabled bool) adminHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, sc *auth.SecurityContext, _ []byte) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Code:    "invalid_request",
				Message: "Key id must be an integer",
			})
			return
		}

		if enabled {
			err = h.keys.EnableKey(r.Context(), sc.Subject, id)
		} else {
			err = h.keys.DisableKey(r.Context(), sc.Subject, id)
		}
		if errors.Is(err, auth.ErrKeyNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{
				Code:    "key_not_found",
				Message: "No API key with that id",
			})
			return
		}
		if err != nil {
			LoggerFromContext(r.Context()).Error("failed to update key", "key_id", id, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": enabled})
	}
}

func (h *adminHandlers) recentAudit(w http.ResponseWriter, r *http.Request, sc *auth.SecurityContext, _ []byte) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := h.keys.RecentAudit(r.Context(), limit)
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to read audit trail", "error", err)
		writeError(w, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:        e.ID,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			Actor:     e.Actor,
			Action:    e.Action,
			Path:      e.Path,
			Status:    e.Status,
			Note:      e.Note,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
