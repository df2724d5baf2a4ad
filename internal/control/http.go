package control

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goodtune/ghbroker/internal/capability"
)

const defaultAuditLimit = 100

// HTTPHandler exposes a Dispatcher's operations as JSON routes. Every
// handler either returns its result or a single {"error": "..."} document;
// validation failures never mutate state.
type HTTPHandler struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewHTTPHandler creates an HTTPHandler around dispatcher.
func NewHTTPHandler(dispatcher *Dispatcher, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{dispatcher: dispatcher, logger: logger}
}

// RegisterRoutes wires the control surface's routes onto mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /execute", h.handleExecute)
	mux.HandleFunc("POST /permissions/grant", h.handleGrant)
	mux.HandleFunc("POST /permissions/revoke", h.handleRevoke)
	mux.HandleFunc("GET /permissions", h.handleListPermissions)
	mux.HandleFunc("POST /snippets", h.handleSaveSnippet)
	mux.HandleFunc("GET /snippets", h.handleListSnippets)
	mux.HandleFunc("GET /snippets/{name}", h.handleGetSnippet)
	mux.HandleFunc("GET /snippets/{name}/types", h.handleGetSnippetTypes)
	mux.HandleFunc("DELETE /snippets/{name}", h.handleDeleteSnippet)
	mux.HandleFunc("GET /audit/executions", h.handleListExecutionAudit)
	mux.HandleFunc("GET /audit/permissions", h.handleListPermissionAudit)
}

func auditLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultAuditLimit
}

type executeRequest struct {
	Source  string `json:"source"`
	Timeout int64  `json:"timeout"`
}

func (h *HTTPHandler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.dispatcher.ExecuteCode(r.Context(), req.Source, req.Timeout)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleGrant(w http.ResponseWriter, r *http.Request) {
	var c capability.Capability
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid capability")
		return
	}
	if err := h.dispatcher.GrantPermission(r.Context(), c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"granted": c})
}

func (h *HTTPHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var c capability.Capability
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid capability")
		return
	}
	removed := h.dispatcher.RevokePermission(r.Context(), c)
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (h *HTTPHandler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"permissions": h.dispatcher.ListPermissions(r.Context())})
}

type saveSnippetRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

func (h *HTTPHandler) handleSaveSnippet(w http.ResponseWriter, r *http.Request) {
	var req saveSnippetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snip, err := h.dispatcher.SaveSnippet(r.Context(), req.Name, req.Code)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snip)
}

func (h *HTTPHandler) handleListSnippets(w http.ResponseWriter, r *http.Request) {
	list, err := h.dispatcher.ListSnippets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snippets": list})
}

func (h *HTTPHandler) handleGetSnippet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	snip, err := h.dispatcher.GetSnippet(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snip)
}

func (h *HTTPHandler) handleGetSnippetTypes(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	types, err := h.dispatcher.GetSnippetTypes(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": types})
}

func (h *HTTPHandler) handleDeleteSnippet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.dispatcher.DeleteSnippet(r.Context(), name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
}

func (h *HTTPHandler) handleListExecutionAudit(w http.ResponseWriter, r *http.Request) {
	records, err := h.dispatcher.ListExecutionAudit(r.Context(), auditLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": records})
}

func (h *HTTPHandler) handleListPermissionAudit(w http.ResponseWriter, r *http.Request) {
	events, err := h.dispatcher.ListPermissionAudit(r.Context(), auditLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissionEvents": events})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
