package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// TerminalHeader identifies the POS terminal issuing a request.
const TerminalHeader = "X-Terminal-ID"

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max requests allowed per window.
	Max    int
	Window time.Duration
	// KeyFunc picks the bucket for a request. Defaults to TerminalOrIP.
	KeyFunc func(*http.Request) string
}

// counter keeps two adjacent fixed windows; the previous one is weighted by
// its overlap with the sliding window ending now.
type counter struct {
	start time.Time
	curr  float64
	prev  float64
}

// Limiter is a per-key sliding window counter.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

// NewLimiter returns a limiter allowing limit events per window and key.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		max:      limit,
		window:   window,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// Allow records an event for key if it fits the limit and reports the
// remaining budget and when the current window ends.
func (l *Limiter) Allow(key string) (remaining int, reset time.Time, ok bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.counters[key]
	if !found {
		c = &counter{start: now.Truncate(l.window)}
		l.counters[key] = c
	}
	switch elapsed := now.Sub(c.start); {
	case elapsed >= 2*l.window:
		c.start, c.prev, c.curr = now.Truncate(l.window), 0, 0
	case elapsed >= l.window:
		c.start, c.prev, c.curr = c.start.Add(l.window), c.curr, 0
	}

	weight := 1 - now.Sub(c.start).Seconds()/l.window.Seconds()
	used := c.prev*math.Max(weight, 0) + c.curr
	reset = c.start.Add(l.window)
	if used >= float64(l.max) {
		return 0, reset, false
	}
	c.curr++
	return max(l.max-int(math.Ceil(used+1)), 0), reset, true
}

// Evict drops counters idle for two windows.
func (l *Limiter) Evict() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if now.Sub(c.start) >= 2*l.window {
			delete(l.counters, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// RateLimit limits requests per key and answers 429 with a JSON body once the
// budget is spent. X-RateLimit-* headers are set on every response.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimit(cfg, NewLimiter(cfg.Max, cfg.Window))
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle keys
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg.Max, cfg.Window)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Evict()
			}
		}
	}()
	return rateLimit(cfg, l)
}

func rateLimit(cfg RateLimitConfig, l *Limiter) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = TerminalOrIP
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, reset, ok := l.Allow(keyFunc(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			wait := max(time.Until(reset), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)

			var e jx.Encoder
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusTooManyRequests) })
				e.Field("message", func(e *jx.Encoder) { e.Str("rate limit exceeded") })
			})
			_, _ = w.Write(e.Bytes())
		})
	}
}

// TerminalOrIP keys requests by terminal id, falling back to the client IP.
func TerminalOrIP(r *http.Request) string {
	if tid := strings.TrimSpace(r.Header.Get(TerminalHeader)); tid != "" {
		return "terminal:" + tid
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
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
