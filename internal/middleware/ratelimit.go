package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/hireloop/hireloop/internal/auth"
	"github.com/hireloop/hireloop/internal/cache"
	"github.com/hireloop/hireloop/internal/model"
)

// Limiter spends rate limit tokens. *cache.Cache implements it.
type Limiter interface {
	Take(ctx context.Context, bucket, subject string, l cache.Limit) (*cache.Decision, error)
}

// RateLimitConfig configures both limiters.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter Limiter
	// APIEnabled limits authenticated calls per API key, by key tier.
	APIEnabled bool
	// PublicEnabled limits unauthenticated routes per client IP.
	PublicEnabled bool
	PublicRPS     int
	PublicBurst   int
}

// RateLimitAPI limits each API key to its tier's bucket. It must run after
// Auth. Platform keys are unlimited.
func RateLimitAPI(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := auth.AuthFromContext(r.Context())
			if !cfg.APIEnabled || caller == nil {
				next.ServeHTTP(w, r)
				return
			}
			tier, limited := model.LimitForTier(caller.RateLimitTier)
			if !limited {
				next.ServeHTTP(w, r)
				return
			}

			limit := cache.Limit{Rate: float64(tier.PerMinute) / 60, Burst: tier.Burst}
			d, ok := take(cfg, r, "key", caller.KeyID, limit)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(tier.PerMinute))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("type", "api"),
					slog.String("key_id", caller.KeyID),
					slog.String("company_id", caller.CompanyID),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeTooManyRequests(w, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitIP limits unauthenticated routes per client IP. Each bucket
// family counts separately so careers traffic cannot starve signups.
func RateLimitIP(cfg RateLimitConfig, bucket string) func(http.Handler) http.Handler {
	limit := cache.Limit{Rate: float64(cfg.PublicRPS), Burst: cfg.PublicBurst}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.PublicEnabled {
				next.ServeHTTP(w, r)
				return
			}
			ip := clientIP(r)
			d, ok := take(cfg, r, bucket, ip, limit)
			if ok && !d.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("type", "ip"),
					slog.String("bucket", bucket),
					slog.String("ip", ip),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeTooManyRequests(w, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// take fails open: when the limiter is unavailable the request proceeds
// and ok is false.
func take(cfg RateLimitConfig, r *http.Request, bucket, subject string, l cache.Limit) (*cache.Decision, bool) {
	d, err := cfg.Limiter.Take(r.Context(), bucket, subject, l)
	if err != nil {
		cfg.Logger.Error("rate limit check failed",
			slog.String("bucket", bucket),
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(r.Context())),
		)
		return nil, false
	}
	return d, true
}

func writeTooManyRequests(w http.ResponseWriter, d *cache.Decision) {
	secs := int(d.RetryAfter.Seconds() + 0.999)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
		"Rate limit exceeded. Retry after "+strconv.Itoa(secs)+" seconds.")
}

// clientIP is the address RealIP resolved, without the port.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
