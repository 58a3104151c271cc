package httpx

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/caredesk/gatekit/pkg/ratelimit"
	"github.com/caredesk/gatekit/pkg/slogx"
)

// KeyExtractor derives the client identity a request is throttled under
// (IP address, user id, form field, or a composite).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// UserIDKeyExtractor extracts the authenticated user id from the request
// context. Returns empty string for anonymous requests.
func UserIDKeyExtractor(r *http.Request) string {
	if id, ok := UserIDFromContext(r.Context()); ok {
		return strconv.FormatInt(id, 10)
	}
	return ""
}

// CompositeKeyExtractor combines multiple key extractors with a separator,
// e.g. IP + username form field for login brute-force limiting.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// RateLimit wraps a handler with fixed-window throttling. Every guarded
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; rejections add Retry-After and a 429 body.
func RateLimit(limiter *ratelimit.Limiter, policy ratelimit.Policy, extract KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			client := extract(r)
			if client == "" {
				// No identity to throttle under; admit but note it.
				log.Warn("rate limit: unable to extract client key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			d := limiter.Admit(ctx, client, r.URL.Path, policy)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))

			if !d.Allowed {
				retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				log.Warn("rate limit exceeded",
					"client", client,
					"endpoint", r.URL.Path,
					"retry_after_s", retryAfter,
				)

				WriteJSON(w, http.StatusTooManyRequests, map[string]any{
					"success":    false,
					"message":    fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter),
					"retryAfter": retryAfter,
					"remaining":  d.Remaining,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP throttles by client IP only.
func RateLimitByIP(limiter *ratelimit.Limiter, policy ratelimit.Policy) Middleware {
	return RateLimit(limiter, policy, IPKeyExtractor)
}

// RateLimitByUser throttles by authenticated user id, falling back to IP for
// anonymous requests. It must run inside the authentication middleware or the
// user id is never in the context and every request keys by IP.
func RateLimitByUser(limiter *ratelimit.Limiter, policy ratelimit.Policy) Middleware {
	return RateLimit(limiter, policy, func(r *http.Request) string {
		if id := UserIDKeyExtractor(r); id != "" {
			return "user:" + id
		}
		return IPKeyExtractor(r)
	})
}
