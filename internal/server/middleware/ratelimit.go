package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketindexer/internal/domain"
)

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	// Limit is the number of requests one client may make per Window.
	// Zero or less disables limiting.
	Limit  int
	Window time.Duration
	// TrustProxy takes the client address from X-Forwarded-For or X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
	// Exempt paths are never counted (health probes, the WebSocket upgrade).
	Exempt []string
}

// RateLimit returns middleware that caps each client address at
// opts.Limit requests per opts.Window. Limiter failures let the request
// through so a Redis outage degrades to no limiting.
func RateLimit(limiter domain.RateLimiter, opts RateLimitOptions, logger *slog.Logger) func(http.Handler) http.Handler {
	exempt := make(map[string]bool, len(opts.Exempt))
	for _, p := range opts.Exempt {
		exempt[p] = true
	}
	limit := strconv.Itoa(opts.Limit)

	return func(next http.Handler) http.Handler {
		if limiter == nil || opts.Limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			client := ClientIP(r, opts.TrustProxy)
			allowed, err := limiter.Allow(r.Context(), "api:"+client, opts.Limit, opts.Window)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable",
					slog.String("client", client),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(opts.Window/time.Second)/opts.Limit)))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the address a request is attributed to. Proxy headers
// are honoured only when trustProxy is set and they parse as an IP.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return addr.String()
			}
		}
		if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			return addr.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
