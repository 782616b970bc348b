// Package ratelimit implements a fixed-window per-client request counter.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Defaults applied by New when given non-positive values.
const (
	DefaultMaxRequests = 10
	DefaultWindow      = time.Minute
)

type entry struct {
	count         int
	windowResetAt time.Time
}

// Limiter admits up to maxRequests calls per client per fixed window.
// Windows are fixed, not sliding: the first request after a window has
// expired starts a fresh window and counts as usage #1. This boundary
// semantic is load-bearing for observable throughput; do not change it to
// reset-then-count.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	maxRequests int
	window      time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// New creates a Limiter. Non-positive maxRequests or window fall back to
// the defaults.
func New(maxRequests int, window time.Duration, logger *slog.Logger) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		entries:     make(map[string]*entry),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		logger:      logger.With("component", "ratelimit"),
	}
}

// Check reports whether a request from clientID is admitted now. An
// admitted request consumes one unit of the client's window quota; a
// rejected request mutates nothing.
func (l *Limiter) Check(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[clientID]
	if !ok || now.After(e.windowResetAt) {
		// Fresh window; the triggering request is usage #1.
		l.entries[clientID] = &entry{count: 1, windowResetAt: now.Add(l.window)}
		return true
	}
	if e.count >= l.maxRequests {
		return false
	}
	e.count++
	return true
}

// Cleanup removes all expired entries and returns how many it removed.
// Calling it with nothing expired is a no-op.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, e := range l.entries {
		if now.After(e.windowResetAt) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked client entries.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartSweeping runs Cleanup once per window duration until ctx is
// cancelled. It bounds map growth under churn of distinct client
// identities, independent of request traffic.
func (l *Limiter) StartSweeping(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := l.Cleanup(); removed > 0 {
					l.logger.Debug("Swept expired rate-limit entries.", slog.Int("removed", removed))
				}
			}
		}
	}()
}
