package middleware

// Context keys for middleware data storage.
type contextKey string

const (
	// RequestIDContextKey is the context key for request ID.
	RequestIDContextKey contextKey = "request_id"

	// SessionContextKey is the context key for the authenticated session.
	SessionContextKey contextKey = "session"

	// StartTimeContextKey is the context key for request start time.
	StartTimeContextKey contextKey = "start_time"
)

// HTTP headers.
const (
	RequestIDHeader = "X-Request-ID"

	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"

	CacheControlHeader = "Cache-Control"
)
