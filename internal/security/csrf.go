package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/agency-api/internal/common"
)

// CSRF protects cookie-session flows using the double-submit technique.
type CSRF struct {
	Header     string
	CookieName string
	Secure     bool
	// SkipPrefixes are exempt paths, such as provider webhooks that
	// authenticate with signatures.
	SkipPrefixes []string
}

func (c CSRF) names() (header, cookie string) {
	header = strings.TrimSpace(c.Header)
	if header == "" {
		header = "X-CSRF-Token"
	}
	cookie = strings.TrimSpace(c.CookieName)
	if cookie == "" {
		cookie = "csrf_token"
	}
	return header, cookie
}

// Middleware enforces that unsafe requests carry a token header matching the cookie.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName, cookieName := c.names()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}
		for _, prefix := range c.SkipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		cookie, err := r.Cookie(cookieName)
		if token == "" || err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_REQUIRED", "missing csrf token", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_INVALID", "invalid csrf token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenHandler issues a fresh token cookie and echoes it for the client to
// send back in the header.
func (c CSRF) TokenHandler(w http.ResponseWriter, r *http.Request) {
	_, cookieName := c.names()
	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	common.JSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}
