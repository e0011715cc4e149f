package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/waypost/waypost/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// Default rate limit configurations.
var (
	// ImportRateLimit applies to bulk configuration imports (10 req/min).
	ImportRateLimit = RateLimitConfig{
		RequestLimit: 10,
		WindowLength: time.Minute,
	}

	// MutationRateLimit applies to settings, geofence and profile writes (30 req/min).
	MutationRateLimit = RateLimitConfig{
		RequestLimit: 30,
		WindowLength: time.Minute,
	}

	// StandardRateLimit applies to read endpoints (100 req/min).
	StandardRateLimit = RateLimitConfig{
		RequestLimit: 100,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceededHandler),
	)
}

// rateLimitExceededHandler writes an RFC7807 Problem response when rate limit is exceeded.
func rateLimitExceededHandler(w http.ResponseWriter, r *http.Request) {
	traceID := GetRequestID(r.Context())

	problem := models.NewTooManyRequests(traceID, "Rate limit exceeded. Please try again later.")
	problem.Instance = r.URL.Path

	// Add Retry-After header (estimate based on window)
	// httprate doesn't expose exact reset time, so we use a conservative estimate
	w.Header().Set("Retry-After", strconv.Itoa(60)) // 60 seconds

	problem.Write(w)
}
