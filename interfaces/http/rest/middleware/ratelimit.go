package middleware

import (
	"net"
	"net/http"

	"commodities/pkg/ratelimit"

	"go.uber.org/zap"
)

// StatusWriter sends an error envelope with a fixed status
type StatusWriter interface {
	HandleStatus(w http.ResponseWriter, r *http.Request, status int, message string)
}

// RateLimit rejects clients over their allowance with 429. Clients are
// keyed by remote IP, so it must run after chi's RealIP. Limiter failures
// let the request through.
func RateLimit(limiter ratelimit.Limiter, errs StatusWriter, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("Rate limiter failed", zap.String("client", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "60")
				errs.HandleStatus(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
