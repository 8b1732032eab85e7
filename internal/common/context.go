package common

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type (
	userIDKey      struct{}
	idempotencyKey struct{}
)

// WithUserID marks ctx as belonging to the authenticated client id. The
// request logger carried on ctx picks up the id for later log lines.
func WithUserID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("user_id", id)
	})
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID returns the authenticated client id, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// WithIdempotencyKey stores the client key on ctx so provider calls can
// forward it.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the client key stored on ctx, or "".
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKey{}).(string)
	return key
}

// ClientIP returns the caller address. Proxy headers are resolved upstream
// by chi's RealIP middleware, so only RemoteAddr is consulted here.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
