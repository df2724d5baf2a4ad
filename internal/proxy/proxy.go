package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goodtune/ghbroker/internal/audit"
	"github.com/goodtune/ghbroker/internal/capability"
	"github.com/goodtune/ghbroker/internal/permission"
)

// DeniedCode is the machine-readable code carried by a permission-denied
// record
const DeniedCode = "PERMISSION_DENIED"

// Denial is the permission-denied record surfaced to callers on a 403.
type Denial struct {
	Code               string                 `json:"code"`
	RequiredPermission capability.Capability  `json:"requiredPermission"`
	AttemptedAction    AttemptedAction        `json:"attemptedAction"`
	RequestID          string                 `json:"requestId"`
}

// AttemptedAction describes the concrete action that was denied.
type AttemptedAction struct {
	Type    string         `json:"type"`
	Details map[string]any `json:"details"`
}

// forwardRequest is the body of POST /proxy.
type forwardRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// forwardResponse is the body returned on success.
type forwardResponse struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// Handler is the local-only HTTP permission proxy.
type Handler struct {
	store  *permission.Store
	audit  *audit.Log
	logger *slog.Logger
	client *http.Client
}

// NewHandler creates a new permission proxy handler.
func NewHandler(store *permission.Store, log *audit.Log, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		audit:  log,
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// RegisterRoutes wires the proxy's routes onto mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /proxy", h.handleProxy)
	mux.HandleFunc("POST /grant", h.handleGrant)
	mux.HandleFunc("POST /revoke", h.handleRevoke)
	mux.HandleFunc("GET /permissions", h.handlePermissions)
	mux.HandleFunc("POST /clear", h.handleClear)
	mux.HandleFunc("GET /health", h.handleHealth)
}

func (h *Handler) handleProxy(w http.ResponseWriter, r *http.Request) {
	var req forwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	required, err := Classify(req.URL, req.Method)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid url: %v", err))
		return
	}

	if !h.store.Check(required) {
		h.deny(w, r, required, req)
		return
	}

	h.forward(w, r, req)
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request, required capability.Capability, req forwardRequest) {
	denial := Denial{
		Code:               DeniedCode,
		RequiredPermission: required,
		AttemptedAction: AttemptedAction{
			Type: "http.fetch",
			Details: map[string]any{
				"url":    req.URL,
				"method": req.Method,
			},
		},
		RequestID: uuid.NewString(),
	}

	h.logger.Warn("permission_denied", "host", required.Host, "path", required.PathPattern, "request_id", denial.RequestID)
	if h.audit != nil {
		h.audit.RecordPermissionEvent(r.Context(), audit.PermissionEvent{
			Action:     "check_denied",
			Capability: required,
			RequestID:  denial.RequestID,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(denial)
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request, req forwardRequest) {
	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(req.Body)
	}

	method := capability.NormalizeMethod(req.Method)
	upstream, err := http.NewRequestWithContext(r.Context(), method, req.URL, bodyReader)
	if err != nil {
		writeUpstreamError(w, "failed to build upstream request", err)
		return
	}
	for k, v := range req.Headers {
		upstream.Header.Set(k, v)
	}

	resp, err := h.client.Do(upstream)
	if err != nil {
		writeUpstreamError(w, "upstream request failed", err)
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		writeUpstreamError(w, "failed to read upstream response", err)
		return
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(forwardResponse{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    headers,
		Body:       string(data),
	})
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	var c capability.Capability
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid capability")
		return
	}
	h.store.Grant(c)
	if h.audit != nil {
		h.audit.RecordPermissionEvent(r.Context(), audit.PermissionEvent{Action: "grant", Capability: c})
	}
	writeJSON(w, http.StatusOK, map[string]any{"granted": c})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var c capability.Capability
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid capability")
		return
	}
	removed := h.store.Revoke(c)
	if h.audit != nil {
		h.audit.RecordPermissionEvent(r.Context(), audit.PermissionEvent{Action: "revoke", Capability: c})
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"permissions": h.store.List()})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.store.Clear()
	if h.audit != nil {
		h.audit.RecordPermissionEvent(r.Context(), audit.PermissionEvent{Action: "clear"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeUpstreamError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, http.StatusBadGateway, map[string]string{
		"error":   message,
		"message": err.Error(),
	})
}
