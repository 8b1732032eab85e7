package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/agency-api/internal/common"
)

// Allower decides whether one more event for key fits into the window.
type Allower interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Config picks the bucket key and the budget per bucket.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler throttles payment-creating routes. A limiter failure never blocks
// a checkout: the request goes through and the error is reported.
type Handler struct {
	Limiter Allower
	Config  Config
	OnError func(error)
}

// KeyByUserOrIP buckets signed-in clients by user id and everyone else by
// client address, one bucket per route.
func KeyByUserOrIP(r *http.Request) string {
	if id, ok := common.UserID(r.Context()); ok {
		return "user:" + id + ":" + r.URL.Path
	}
	return "ip:" + common.ClientIP(r) + ":" + r.URL.Path
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil {
		return next
	}
	key := h.Config.Key
	if key == nil {
		key = KeyByUserOrIP
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, reset, err := h.Limiter.Allow(r.Context(), key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("rate limiter unavailable")
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		header := w.Header()
		header.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		header.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		wait := int(math.Ceil(time.Until(reset).Seconds()))
		header.Set("Retry-After", strconv.Itoa(max(wait, 1)))
		common.JSONError(w, http.StatusTooManyRequests, common.CodeRateLimited, "Too many payment attempts, please retry later", nil)
	})
}
