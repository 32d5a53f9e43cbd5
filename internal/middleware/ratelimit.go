// Package middleware provides HTTP middleware for the honeypot API.
package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"honeytrap/internal/config"
)

// RateLimiter implements a fixed-window rate limiter with per-IP tracking
// and automatic cleanup of expired entries.
type RateLimiter struct {
	cfg         config.RateLimitConfig
	clients     map[string]*clientState
	mu          sync.RWMutex
	exemptPaths map[string]bool
	stopCleanup chan struct{}
	logger      *slog.Logger
}

type clientState struct {
	count     int64
	windowEnd time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
func NewRateLimiter(cfg config.RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	exemptPaths := make(map[string]bool)
	for _, path := range cfg.ExemptPaths {
		exemptPaths[path] = true
	}

	rl := &RateLimiter{
		cfg:         cfg,
		clients:     make(map[string]*clientState),
		exemptPaths: exemptPaths,
		stopCleanup: make(chan struct{}),
		logger:      logger,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow checks if a request from the given IP should be allowed.
// Returns (allowed, remaining requests, reset time).
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Time) {
	now := time.Now()

	rl.mu.Lock()
	client, exists := rl.clients[ip]
	if !exists {
		client = &clientState{windowEnd: now.Add(rl.cfg.WindowSize)}
		rl.clients[ip] = client
	}
	rl.mu.Unlock()

	client.mu.Lock()
	defer client.mu.Unlock()

	if now.After(client.windowEnd) {
		client.count = 0
		client.windowEnd = now.Add(rl.cfg.WindowSize)
	}

	limit := int64(rl.cfg.RequestsPerIP + rl.cfg.BurstSize)
	if client.count >= limit {
		return false, 0, client.windowEnd
	}

	client.count++
	remaining := limit - client.count
	return true, int(remaining), client.windowEnd
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	// Keep entries for 2 windows to cover requests near the boundary.
	expiredThreshold := time.Now().Add(-rl.cfg.WindowSize * 2)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for ip, client := range rl.clients {
		client.mu.Lock()
		if client.windowEnd.Before(expiredThreshold) {
			delete(rl.clients, ip)
			removed++
		}
		client.mu.Unlock()
	}

	if removed > 0 {
		rl.logger.Debug("rate limiter cleanup", "removed", removed, "remaining", len(rl.clients))
	}
}

// Stop gracefully stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCleanup)
}

// IsExempt checks if a path is exempt from rate limiting.
func (rl *RateLimiter) IsExempt(path string) bool {
	return rl.exemptPaths[path]
}

// Stats returns current rate limiter statistics.
func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	var total int64
	for _, client := range rl.clients {
		client.mu.Lock()
		total += client.count
		client.mu.Unlock()
	}

	return RateLimiterStats{
		TrackedIPs:    len(rl.clients),
		TotalRequests: total,
	}
}

// RateLimiterStats holds rate limiter statistics.
type RateLimiterStats struct {
	TrackedIPs    int   `json:"tracked_ips"`
	TotalRequests int64 `json:"total_requests"`
}

var (
	rateLimitedTotal uint64
	rateLimitAllowed uint64
)

// RateLimitMetrics returns global rate limit counters.
func RateLimitMetrics() (limited, allowed uint64) {
	return atomic.LoadUint64(&rateLimitedTotal), atomic.LoadUint64(&rateLimitAllowed)
}

// RateLimit creates middleware that limits requests per client IP. Sets
// standard rate limit headers and returns 429 when the limit is exceeded.
func RateLimit(cfg config.RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(cfg, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || limiter.IsExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r, cfg.TrustProxy)
			allowed, remaining, resetTime := limiter.Allow(ip)

			limit := cfg.RequestsPerIP + cfg.BurstSize
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))

			if !allowed {
				atomic.AddUint64(&rateLimitedTotal, 1)
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
				)

				retryAfter := int(time.Until(resetTime).Seconds()) + 1
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"success":false,"error":"too many requests","retry_after":%d}`, retryAfter)
				return
			}

			atomic.AddUint64(&rateLimitAllowed, 1)
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP. With trustProxy the rightmost entry in
// X-Forwarded-For wins since the client cannot spoof it.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				if ip := strings.TrimSpace(parts[i]); ip != "" {
					return ip
				}
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
