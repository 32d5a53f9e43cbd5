package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"honeytrap/internal/config"
)

// Chain wraps the handler with the standard middleware stack. Innermost
// runs last: recovery, logging, auth, rate limit.
func Chain(handler http.Handler, cfg *config.Config, logger *slog.Logger) http.Handler {
	h := handler

	if cfg.RateLimit.Enabled {
		h = RateLimit(cfg.RateLimit, logger)(h)
	}
	if cfg.Auth.Enabled {
		h = APIKeyAuth(cfg.Auth, logger)(h)
	}
	h = Logging(logger)(h)
	h = Recovery(logger)(h)

	return h
}

// Logging logs each HTTP request with status and duration.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// Recovery recovers from handler panics and returns a 500.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"success":false,"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyAuth checks the API key header against configured keys. Hashed
// keys are verified with bcrypt; plaintext keys use constant-time compare
// and are intended for development.
func APIKeyAuth(cfg config.AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Liveness probes stay unauthenticated.
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(header)
			if key == "" {
				unauthorized(w, "missing API key")
				return
			}
			if !keyValid(key, cfg) {
				logger.Warn("invalid API key", "remote_addr", r.RemoteAddr)
				unauthorized(w, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func keyValid(key string, cfg config.AuthConfig) bool {
	for _, hash := range cfg.APIKeyHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
			return true
		}
	}
	for _, plain := range cfg.APIKeys {
		if subtle.ConstantTimeCompare([]byte(plain), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
