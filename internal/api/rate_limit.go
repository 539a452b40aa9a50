package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/auth"
	"github.com/dunamismax/photoflow/internal/ratelimit"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// RateLimiter is a shared limiter such as ratelimit.RedisTokenBucket. When
// none is configured the API falls back to an in-process httprate window.
type RateLimiter = ratelimit.Limiter

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	cfg := s.cfg.RateLimit
	if !cfg.Enabled {
		return next
	}
	if s.rateLimiter == nil {
		return s.memoryLimiter()(next)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := s.rateLimitSubject(r)
		decision, err := s.rateLimiter.Allow(r.Context(), subject)
		if err != nil {
			s.logger.Warn("rate limiter check failed", zap.String("subject", subject), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		s.rateLimitExceeded(w, r)
	})
}

// memoryLimiter builds the httprate middleware once; every route shares its
// counters.
func (s *Server) memoryLimiter() func(http.Handler) http.Handler {
	s.memLimitOnce.Do(func() {
		cfg := s.cfg.RateLimit
		window := cfg.Window
		if window <= 0 {
			window = 15 * time.Minute
		}
		s.memLimit = httprate.Limit(
			max(1, cfg.RequestsPerWindow),
			window,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				return s.rateLimitSubject(r), nil
			}),
			httprate.WithLimitHandler(s.rateLimitExceeded),
		)
	})
	return s.memLimit
}

func (s *Server) rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	route := routeLabel(r.URL.Path)
	s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
	s.logger.Warn("rate limit exceeded",
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
		zap.String("subject", s.rateLimitSubject(r)),
	)
	writeError(w, http.StatusTooManyRequests, "too many requests from this client, please try again later")
}

// rateLimitSubject keys requests carrying a valid bearer token by user and
// the rest by client IP. The limiter runs before auth.Middleware, so the
// token is checked here as well.
func (s *Server) rateLimitSubject(r *http.Request) string {
	if user, ok := auth.FromContext(r.Context()); ok && user.ID != "" {
		return "user:" + user.ID
	}
	if s.verifier != nil {
		if token, err := auth.BearerToken(r.Header.Get("Authorization")); err == nil {
			if user, err := s.verifier.Verify(token); err == nil && user.ID != "" {
				return "user:" + user.ID
			}
		}
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
