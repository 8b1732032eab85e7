package common

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// IdempotencyHeader carries the client's idempotency key.
const IdempotencyHeader = "Idempotency-Key"

const defaultIdempotencyTTL = 24 * time.Hour

// Idem makes payment-creating routes opt-in idempotent. A key is claimed per
// route and user; replays inside TTL get 409. The claim is dropped again when
// the request fails server-side so the client can retry with the same key.
// Without Redis the key is still forwarded to the providers.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func claimKey(path, userID, key string) string {
	sum := sha256.Sum256([]byte(path + "|" + userID + "|" + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

func (i Idem) Middleware(next http.Handler) http.Handler {
	ttl := i.TTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := WithIdempotencyKey(r.Context(), key)
		r = r.WithContext(ctx)
		if i.R == nil {
			next.ServeHTTP(w, r)
			return
		}

		userID, _ := UserID(ctx)
		claim := claimKey(r.URL.Path, userID, key)
		fresh, err := i.R.SetNX(ctx, claim, time.Now().UTC().Format(time.RFC3339), ttl).Result()
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("idempotency claim failed")
			JSONError(w, http.StatusInternalServerError, CodeInternal, "idempotency store error", nil)
			return
		}
		if !fresh {
			JSONError(w, http.StatusConflict, CodeReplay, "duplicate request", nil)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		completed := false
		defer func() {
			if completed && ww.Status() < http.StatusInternalServerError {
				return
			}
			if err := i.R.Del(ctx, claim).Err(); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("idempotency release failed")
			}
		}()
		next.ServeHTTP(ww, r)
		completed = true
	})
}
