// Package middleware provides the HTTP middleware stack of the alertmon API.
package middleware

import (
	"log/slog"
	"net/http"
)

// Option wraps a handler with one middleware.
type Option func(http.Handler) http.Handler

// Apply applies a chain of middleware options to a base handler.
// The first option becomes the outermost middleware.
//
// Example:
//
//	handler := middleware.Apply(mux,
//	    middleware.WithCorrelationID(),
//	    middleware.WithRecovery(logger),
//	    middleware.WithRateLimit(limiter, logger, "/ping", "/ready"),
//	    middleware.WithRequestLogger(logger),
//	)
func Apply(handler http.Handler, options ...Option) http.Handler {
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// WithCorrelationID returns an option that adds correlation ID middleware.
func WithCorrelationID() Option {
	return func(next http.Handler) http.Handler {
		return CorrelationID()(next)
	}
}

// WithRecovery returns an option that adds panic recovery middleware.
func WithRecovery(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler {
		return Recovery(logger)(next)
	}
}

// WithRateLimit returns an option that adds rate limiting middleware.
// A nil limiter disables it. Exempt paths are never limited.
func WithRateLimit(limiter RateLimiter, logger *slog.Logger, exempt ...string) Option {
	if limiter == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return RateLimit(limiter, logger, exempt...)(next)
	}
}

// WithRequestLogger returns an option that adds request logging middleware.
func WithRequestLogger(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler {
		return RequestLogger(logger)(next)
	}
}
