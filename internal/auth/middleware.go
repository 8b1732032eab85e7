package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/agency-api/internal/common"
)

var errNoCredentials = errors.New("auth: no credentials")

// Middleware resolves the caller from a bearer token or the session cookie.
type Middleware struct {
	Sessions *Sessions
	Tokens   *Tokens
}

// Authenticate attaches the user identifier when credentials are present and
// lets anonymous requests through.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctx, err := m.resolve(r); err == nil {
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without a resolvable user.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.resolve(r)
		if err != nil {
			if !errors.Is(err, errNoCredentials) {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("auth rejected")
			}
			Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Unauthorized writes the 401 body browser clients expect.
func Unauthorized(w http.ResponseWriter) {
	common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthenticated, "Authentication required", nil)
}

func (m Middleware) resolve(r *http.Request) (context.Context, error) {
	ctx := r.Context()
	if id, ok := common.UserID(ctx); ok && id != "" {
		return ctx, nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		if m.Tokens == nil {
			return ctx, errors.New("auth: bearer tokens not enabled")
		}
		userID, err := m.Tokens.Parse(header[7:])
		if err != nil {
			return ctx, err
		}
		return common.WithUserID(ctx, userID), nil
	}
	if userID, ok := m.Sessions.UserID(r); ok {
		return common.WithUserID(ctx, userID), nil
	}
	return ctx, errNoCredentials
}
