// Package ratelimit implements fixed-window counters keyed by
// (action, userID). Both the HTTP layer (file uploads) and the gateway
// (voice joins) use the same limiter with different limits per action.
//
// Counters live in memory only; the node is a single instance and the
// limits reset on restart by design. A background goroutine removes
// buckets whose window has passed so long-running nodes do not leak.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type bucket struct {
	count       int
	windowStart time.Time
}

// Limit describes one action's budget.
type Limit struct {
	Max    int
	Window time.Duration
}

// Limiter tracks fixed-window counters per (action, userID) key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limits  map[string]Limit

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewLimiter creates a Limiter with the given per-action limits and starts
// the cleanup goroutine.
func NewLimiter(limits map[string]Limit) *Limiter {
	l := &Limiter{
		buckets:     make(map[string]*bucket),
		limits:      limits,
		stopCleanup: make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow records one attempt for (action, userID) and reports whether it is
// within the action's budget. Unknown actions are always allowed.
func (l *Limiter) Allow(action, userID string) bool {
	limit, ok := l.limits[action]
	if !ok {
		return true
	}

	key := action + ":" + userID
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists || now.Sub(b.windowStart) > limit.Window {
		l.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}

	b.count++
	return b.count <= limit.Max
}

// RetryAfterSeconds returns how long the caller should wait before the
// window for (action, userID) resets. Used for the Retry-After header.
func (l *Limiter) RetryAfterSeconds(action, userID string) int {
	limit, ok := l.limits[action]
	if !ok {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[action+":"+userID]
	if !exists {
		return 0
	}

	remaining := limit.Window - time.Since(b.windowStart)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *Limiter) cleanup() {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// The longest configured window bounds staleness for every bucket.
	var maxWindow time.Duration
	for _, limit := range l.limits {
		if limit.Window > maxWindow {
			maxWindow = limit.Window
		}
	}

	for key, b := range l.buckets {
		if now.Sub(b.windowStart) > maxWindow {
			delete(l.buckets, key)
		}
	}
}

// ExtractIP pulls the client IP from a request, preferring proxy headers.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
