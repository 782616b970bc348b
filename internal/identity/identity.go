// Package identity derives the client identifier used as the rate-limit
// bucketing key and the logging correlation key. The identifier is never
// an authorization credential.
package identity

import (
	"context"
	"net"
	"net/http"
)

// Header is the transport metadata field a caller may use to supply its
// own identifier. Matched case-insensitively; the value is used verbatim.
const Header = "X-Client-Id"

const (
	// StdioClient is the fixed identity for the pipe transport, where no
	// per-call metadata exists: all callers share one bucket.
	StdioClient = "stdio"

	// UnknownClient is the sentinel when neither a header nor a network
	// address is available.
	UnknownClient = "unknown"
)

// FromRequest derives a client identifier from transport-level request
// metadata. Precedence: explicit header, then the caller's network
// address, then the unknown sentinel. Pure; allocates no state.
func FromRequest(r *http.Request) string {
	if id := r.Header.Get(Header); id != "" {
		return id
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return "ip:" + host
	}
	if r.RemoteAddr != "" {
		return "ip:" + r.RemoteAddr
	}
	return UnknownClient
}

type contextKey struct{}

// WithClientID stores a derived client identifier on the context, so the
// transport-agnostic pipeline can recover it inside a tool handler.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, contextKey{}, clientID)
}

// FromContext returns the stored client identifier, or StdioClient when
// the transport attached none.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok && id != "" {
		return id
	}
	return StdioClient
}
