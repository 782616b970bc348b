package mcphttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observelabs/logsearch-mcp/internal/domain"
)

const pingBody = `{"jsonrpc":"2.0","id":1,"method":"ping"}`

func testHandler(healthErr error, origins []string) (*Handler, *int) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewRegistry(logger)
	created := 0
	factory := func() *mcpGoServer.MCPServer {
		created++
		return mcpGoServer.NewMCPServer("test", "0.0.0")
	}
	return NewHandler(registry, factory, healthErr, origins, logger), &created
}

func postMCP(t *testing.T, h http.Handler, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(pingBody))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestMCPPost_MintsSessionOnFirstContact(t *testing.T) {
	h, created := testHandler(nil, nil)
	routes := h.Routes()

	w := postMCP(t, routes, "")
	assert.Equal(t, http.StatusOK, w.Code)
	token := w.Header().Get(SessionHeader)
	require.NotEmpty(t, token)
	assert.Equal(t, 1, *created)

	// Response is a JSON-RPC result for the ping.
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp["jsonrpc"])
}

func TestMCPPost_RecognizedTokenReusesHandler(t *testing.T) {
	h, created := testHandler(nil, nil)
	routes := h.Routes()

	token := postMCP(t, routes, "").Header().Get(SessionHeader)

	for i := 0; i < 3; i++ {
		w := postMCP(t, routes, token)
		assert.Equal(t, token, w.Header().Get(SessionHeader))
	}
	assert.Equal(t, 1, *created, "subsequent calls must route to the existing handler")
	assert.Equal(t, 1, h.registry.Len())
}

func TestMCPPost_UnrecognizedTokenTreatedAsNew(t *testing.T) {
	h, created := testHandler(nil, nil)
	routes := h.Routes()

	w := postMCP(t, routes, "bogus-token")
	assert.Equal(t, http.StatusOK, w.Code)
	minted := w.Header().Get(SessionHeader)
	assert.NotEmpty(t, minted)
	assert.NotEqual(t, "bogus-token", minted)
	assert.Equal(t, 1, *created)
}

func TestMCPPost_PanicYieldsStructuredError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewRegistry(logger)
	factory := func() *mcpGoServer.MCPServer {
		srv := mcpGoServer.NewMCPServer("test", "0.0.0")
		srv.AddTool(mcp.NewTool("boom"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			panic("handler exploded")
		})
		return srv
	}
	h := NewHandler(registry, factory, nil, nil, logger)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"boom","arguments":{}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	errObj, ok := resp["error"].(map[string]any)
	require.True(t, ok, "response must carry a JSON-RPC error object")
	assert.Equal(t, float64(-32603), errObj["code"])
	assert.Equal(t, "Internal error", errObj["message"])
}

func TestMCPDelete_ClosesSession(t *testing.T) {
	h, created := testHandler(nil, nil)
	routes := h.Routes()

	token := postMCP(t, routes, "").Header().Get(SessionHeader)
	require.Equal(t, 1, h.registry.Len())

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(SessionHeader, token)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, h.registry.Len())

	// A stale token is treated as first contact, not an error.
	w2 := postMCP(t, routes, token)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.NotEqual(t, token, w2.Header().Get(SessionHeader))
	assert.Equal(t, 2, *created)
}

func TestMCPDelete_UnknownToken(t *testing.T) {
	h, _ := testHandler(nil, nil)
	routes := h.Routes()

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(SessionHeader, "nope")
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	h, _ := testHandler(nil, nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestHealth_UnhealthyOnConfigError(t *testing.T) {
	h, _ := testHandler(domain.NewConfigurationError("missing required configuration"), nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name      string
		origins   []string
		origin    string
		wantAllow string
	}{
		{name: "permissive default", origins: []string{"*"}, origin: "https://example.com", wantAllow: "https://example.com"},
		{name: "allow-listed origin", origins: []string{"https://ops.example.com"}, origin: "https://ops.example.com", wantAllow: "https://ops.example.com"},
		{name: "unlisted origin", origins: []string{"https://ops.example.com"}, origin: "https://evil.example.com", wantAllow: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := testHandler(nil, tt.origins)
			req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			h.Routes().ServeHTTP(w, req)

			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantAllow != "" {
				assert.Equal(t, SessionHeader, w.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(logger)
	s1 := r.Create(mcpGoServer.NewMCPServer("a", "0"))
	s2 := r.Create(mcpGoServer.NewMCPServer("b", "0"))
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 2, r.Len())

	r.CloseAll()
	assert.Equal(t, 0, r.Len())

	_, ok := r.Get(s1.ID)
	assert.False(t, ok)
}
