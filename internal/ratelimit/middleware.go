// Package ratelimit throttles mutating API calls per caller.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/motor-valuation/internal/common"
)

// KeyFunc derives the rate limit bucket of a request. An empty key skips limiting.
type KeyFunc func(*http.Request) string

// ByCaller keys requests by authenticated user, falling back to the client IP.
func ByCaller(r *http.Request) string {
	if id, ok := common.UserID(r.Context()); ok && id != "" {
		return "user:" + id
	}
	if ip := common.ClientIP(r); ip != "" {
		return "ip:" + ip
	}
	return ""
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter Limiter
	Key     KeyFunc
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface. Limiter
// failures let the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyFn := h.Key
		if keyFn == nil {
			keyFn = ByCaller
		}
		key := keyFn(r)
		if h.Limiter == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		d, err := h.Limiter.Allow(r.Context(), key)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retryAfter := int(time.Until(d.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
