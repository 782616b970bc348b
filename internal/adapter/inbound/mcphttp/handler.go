// Package mcphttp is the network transport adapter: it frames JSON-RPC
// calls in and out of per-session protocol handlers and supplies the
// HTTP-specific client-identity extraction.
package mcphttp

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	mcpGoServer "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/observelabs/logsearch-mcp/internal/identity"
)

// SessionHeader carries the opaque session token on requests and
// responses.
const SessionHeader = "Mcp-Session-Id"

// Handler serves the MCP endpoint, the health endpoint and metrics.
type Handler struct {
	registry  *Registry
	newServer func() *mcpGoServer.MCPServer
	healthErr error
	origins   []string
	logger    *slog.Logger
}

// NewHandler creates the transport handler. newServer is the per-session
// protocol-handler factory; healthErr, when non-nil, marks the process
// unhealthy (startup configuration failure observed via /healthz).
func NewHandler(registry *Registry, newServer func() *mcpGoServer.MCPServer, healthErr error, origins []string, logger *slog.Logger) *Handler {
	return &Handler{
		registry:  registry,
		newServer: newServer,
		healthErr: healthErr,
		origins:   origins,
		logger:    logger.With("component", "mcphttp_handler"),
	}
}

// Routes returns the full HTTP handler with CORS and request logging
// applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", h.handleMCP)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return h.withCORS(h.withLogging(mux))
}

func (h *Handler) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleMCPPost(w, r)
	case http.MethodDelete:
		h.handleMCPDelete(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	// The pipeline converts its own failures into error envelopes; this
	// recover is the last line so a transport-level panic still produces a
	// structured JSON-RPC error instead of a dropped connection.
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Panic while handling MCP request.", slog.Any("panic", rec))
			writeJSON(w, http.StatusOK, map[string]any{
				"jsonrpc": "2.0",
				"id":      nil,
				"error":   map[string]any{"code": -32603, "message": "Internal error"},
			})
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// A missing or unrecognized token falls back to minting a new
	// session; stale tokens are not an error.
	token := r.Header.Get(SessionHeader)
	sess, ok := h.registry.Get(token)
	if !ok {
		sess = h.registry.Create(h.newServer())
	}

	ctx := identity.WithClientID(r.Context(), identity.FromRequest(r))
	response := sess.Server.HandleMessage(ctx, json.RawMessage(body))

	w.Header().Set(SessionHeader, sess.ID)
	if response == nil {
		// Notification: nothing to return.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleMCPDelete(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(SessionHeader)
	if token == "" || !h.registry.Close(token) {
		http.Error(w, "Session Not Found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK
	if h.healthErr != nil {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// withCORS applies the configured origin allow-list. An empty list or a
// "*" entry is permissive.
func (h *Handler) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && h.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+SessionHeader+", "+identity.Header)
			w.Header().Set("Access-Control-Expose-Headers", SessionHeader)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) originAllowed(origin string) bool {
	if len(h.origins) == 0 {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// statusWriter records the status code for the request log.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}

func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		h.logger.Info("HTTP request handled.",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response.", slog.Any("error", err))
	}
}
