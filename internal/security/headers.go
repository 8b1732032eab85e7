package security

import (
	"fmt"
	"net/http"
	"strings"
)

const defaultHSTSMaxAge = 365 * 24 * 60 * 60

var baseHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	// Stripe.js and the PayPal SDK only need payment; everything else is off.
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(self)"},
}

// Headers hardens every response. Paths under NoStorePrefixes carry client
// secrets or invoices and are marked no-store.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	NoStorePrefixes       []string
}

func (h Headers) hstsValue() string {
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	v := fmt.Sprintf("max-age=%d", maxAge)
	if h.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	return v
}

func (h Headers) noStore(path string) bool {
	for _, p := range h.NoStorePrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// secure reports whether the client reached us over TLS, directly or through
// a terminating proxy.
func secure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	hsts := h.hstsValue()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		for _, kv := range baseHeaders {
			header.Set(kv[0], kv[1])
		}
		if h.noStore(r.URL.Path) {
			header.Set("Cache-Control", "no-store")
		}
		if h.EnableHSTS && secure(r) {
			header.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}
