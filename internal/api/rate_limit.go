package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mcdoradca/PIM/internal/ratelimit"
)

// HeaderClientID identifies the calling integration for rate limiting.
// Requests without it are limited per remote IP.
const HeaderClientID = "X-PIM-Client"

// normalizeCost is the token price of a synchronous normalization.
const normalizeCost = 5

type RateLimiter interface {
	AllowN(ctx context.Context, subject string, cost int) (ratelimit.Decision, error)
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldRateLimit(r) {
			next.ServeHTTP(w, r)
			return
		}

		route := routeLabel(r.URL.Path)
		subject := clientSubject(r) + ":" + route

		decision, err := s.rateLimiter.AllowN(r.Context(), subject, requestCost(route))
		if err != nil {
			s.logger.WithField("subject", subject).WithError(err).Warn("rate limiter check failed")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := max(int(decision.RetryAfter.Round(time.Second).Seconds()), 1)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

func shouldRateLimit(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/v1/")
}

func requestCost(route string) int {
	if route == "/v1/normalize" {
		return normalizeCost
	}
	return 1
}

func clientSubject(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderClientID)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "anonymous"
	}
	return host
}
