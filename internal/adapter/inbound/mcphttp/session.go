package mcphttp

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	mcpGoServer "github.com/mark3labs/mcp-go/server"

	"github.com/observelabs/logsearch-mcp/internal/metrics"
)

// Session binds an opaque token to one live protocol-handler instance.
// The registry exclusively owns both; sessions are fully isolated from
// each other.
type Session struct {
	ID        string
	Server    *mcpGoServer.MCPServer
	CreatedAt time.Time
}

// Registry maps session tokens to protocol handlers. Tokens are a
// continuity optimization, not an authorization mechanism: an
// unrecognized token simply falls back to minting a new session. A closed
// token is never reused.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "session_registry"),
	}
}

// Get returns the session bound to token, if any.
func (r *Registry) Get(token string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	return s, ok
}

// Create mints an unguessable token, binds srv to it and registers the
// pair.
func (r *Registry) Create(srv *mcpGoServer.MCPServer) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Server:    srv,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	metrics.OpenSessions.Inc()
	r.logger.Info("Session created.", slog.String("session_id", s.ID))
	return s
}

// Close tears down the session bound to token. Returns false if the token
// is not registered.
func (r *Registry) Close(token string) bool {
	r.mu.Lock()
	_, ok := r.sessions[token]
	if ok {
		delete(r.sessions, token)
	}
	r.mu.Unlock()

	if ok {
		metrics.OpenSessions.Dec()
		r.logger.Info("Session closed.", slog.String("session_id", token))
	}
	return ok
}

// CloseAll tears down every open session. Called on process shutdown
// before the transport exits.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	n := len(r.sessions)
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	if n > 0 {
		metrics.OpenSessions.Sub(float64(n))
		r.logger.Info("All sessions closed.", slog.Int("count", n))
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
