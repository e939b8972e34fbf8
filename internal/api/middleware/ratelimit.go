package middleware

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
)

// RateLimitConfig configures the rate limiting middleware
type RateLimitConfig struct {
	// Requests per minute for general API endpoints
	RequestsPerMinute int
	// Requests per minute for endpoints that evaluate expressions
	// (submit, skip, check)
	EvaluationRequestsPerMinute int
	// Burst size multiplier (burst = rate * multiplier)
	BurstMultiplier int
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute:           120,
		EvaluationRequestsPerMinute: 30,
		BurstMultiplier:             3,
	}
}

// RateLimit limits requests per client address
type RateLimit struct {
	general    ratelimit.RateLimiter
	evaluation ratelimit.RateLimiter
}

// NewRateLimit creates the limiters. Close releases them.
func NewRateLimit(cfg RateLimitConfig) *RateLimit {
	def := DefaultRateLimitConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.EvaluationRequestsPerMinute <= 0 {
		cfg.EvaluationRequestsPerMinute = def.EvaluationRequestsPerMinute
	}
	if cfg.BurstMultiplier <= 0 {
		cfg.BurstMultiplier = 1
	}
	return &RateLimit{
		general: ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RequestsPerMinute,
			Burst:    cfg.RequestsPerMinute * cfg.BurstMultiplier,
			Interval: time.Minute,
		}),
		evaluation: ratelimit.New(&ratelimit.Config{
			Rate:     cfg.EvaluationRequestsPerMinute,
			Burst:    cfg.EvaluationRequestsPerMinute * cfg.BurstMultiplier,
			Interval: time.Minute,
		}),
	}
}

// Middleware applies the general limit to every request
func (rl *RateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !rl.general.Allow(r.Context(), key) {
			reject(w, r, key, "too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Evaluation applies the stricter limit of expression-evaluating endpoints
func (rl *RateLimit) Evaluation(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !rl.evaluation.Allow(r.Context(), key) {
			reject(w, r, key, "too many submissions, please wait before trying again")
			return
		}
		next(w, r)
	}
}

// Close stops both limiters
func (rl *RateLimit) Close() error {
	return errors.Join(rl.general.Close(), rl.evaluation.Close())
}

func reject(w http.ResponseWriter, r *http.Request, key, message string) {
	slog.Warn("rate limit exceeded",
		"ip", key,
		"path", r.URL.Path,
		"request_id", GetRequestID(r.Context()),
	)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"` + message + `"}}`))
}

// clientIP extracts the client address, honouring proxy headers
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
