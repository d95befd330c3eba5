package httpserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/al-bashkir/sfa-attack-simulation/internal/logsanitize"
)

type ctxKey int

const requestIDKey ctxKey = iota

// requestIDHeader carries the request id back to the client.
const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags each request with a random id.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// requestID returns the id set by requestIDMiddleware, or "".
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// loggingMiddleware logs each request and its outcome.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Info("http request", // #nosec G706 -- values sanitized via logsanitize
			"request_id", requestID(r.Context()),
			"method", logsanitize.Sanitize(r.Method),
			"path", logsanitize.Sanitize(r.URL.Path),
			"status", ww.Status(),
			"remote_addr", logsanitize.Sanitize(r.RemoteAddr),
			"user_agent", logsanitize.Sanitize(r.Header.Get("User-Agent")),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// recoveryMiddleware turns a handler panic into a 500.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				slog.Error("panic recovered",
					"request_id", requestID(r.Context()),
					"error", err,
					"stack", string(debug.Stack()),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. Idle entries are
// evicted after ttl; the table never grows past maxSize.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipEntry
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	maxSize  int

	stop     chan struct{}
	stopOnce sync.Once
}

func newIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	rl := &IPRateLimiter{
		limiters: make(map[string]*ipEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
		ttl:      5 * time.Minute,
		maxSize:  10000,
		stop:     make(chan struct{}),
	}

	go rl.evictLoop(time.Minute)

	return rl
}

// Stop ends the eviction loop. It is safe to call more than once.
func (i *IPRateLimiter) Stop() {
	i.stopOnce.Do(func() { close(i.stop) })
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	if entry, ok := i.limiters[ip]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	if len(i.limiters) >= i.maxSize {
		i.evictOldest()
	}

	limiter := rate.NewLimiter(i.rate, i.burst)
	i.limiters[ip] = &ipEntry{limiter: limiter, lastSeen: time.Now()}

	return limiter
}

func (i *IPRateLimiter) evictLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			i.evictIdle(time.Now())
		case <-i.stop:
			return
		}
	}
}

func (i *IPRateLimiter) evictIdle(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for ip, entry := range i.limiters {
		if now.Sub(entry.lastSeen) > i.ttl {
			delete(i.limiters, ip)
		}
	}
}

// evictOldest removes the least recently seen entry. Must be called with mu held.
func (i *IPRateLimiter) evictOldest() {
	var oldestIP string
	var oldestTime time.Time

	for ip, entry := range i.limiters {
		if oldestIP == "" || entry.lastSeen.Before(oldestTime) {
			oldestIP = ip
			oldestTime = entry.lastSeen
		}
	}

	if oldestIP != "" {
		delete(i.limiters, oldestIP)
	}
}

func (i *IPRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)

		if !i.getLimiter(ip).Allow() {
			slog.Warn("rate limit exceeded", // #nosec G706 -- values sanitized via logsanitize
				"ip", logsanitize.Sanitize(ip),
				"path", logsanitize.Sanitize(r.URL.Path),
			)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractIP uses RemoteAddr only; forwarding headers are client controlled.
func extractIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// securityHeadersMiddleware sets the standard browser hardening headers.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		h.Set("Cache-Control", "no-store")

		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
