package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-api/internal/auth"
	"github.com/noah-isme/agency-api/internal/common"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := common.UserID(r.Context())
		common.JSON(w, http.StatusOK, map[string]string{"userId": id})
	})
}

func sessionCookie(t *testing.T, s *auth.Sessions, userID string) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	require.NoError(t, s.Establish(rr, httptest.NewRequest(http.MethodGet, "/", nil), userID))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	mw := auth.Middleware{Sessions: auth.NewCookieSessions([]byte("0123456789abcdef0123456789abcdef"), "sid", auth.CookieOptions{})}
	rr := httptest.NewRecorder()
	mw.RequireAuth(echoUser()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/create-payment-intent", nil))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Authentication required", body["message"])
}

func TestRequireAuthAcceptsSessionCookie(t *testing.T) {
	sessions := auth.NewCookieSessions([]byte("0123456789abcdef0123456789abcdef"), "sid", auth.CookieOptions{})
	mw := auth.Middleware{Sessions: sessions}

	req := httptest.NewRequest(http.MethodPost, "/api/create-payment-intent", nil)
	req.AddCookie(sessionCookie(t, sessions, "7"))
	rr := httptest.NewRecorder()
	mw.RequireAuth(echoUser()).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"userId":"7"}`, rr.Body.String())
}

func TestRequireAuthRejectsForgedCookie(t *testing.T) {
	issuer := auth.NewCookieSessions([]byte("ffffffffffffffffffffffffffffffff"), "sid", auth.CookieOptions{})
	verifier := auth.NewCookieSessions([]byte("0123456789abcdef0123456789abcdef"), "sid", auth.CookieOptions{})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(sessionCookie(t, issuer, "7"))
	rr := httptest.NewRecorder()
	auth.Middleware{Sessions: verifier}.RequireAuth(echoUser()).ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	tokens := auth.NewTokens(auth.TokenConfig{Secret: "jwt-secret", Issuer: "agency", Audience: "checkout"})
	signed, err := tokens.Issue("99", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	auth.Middleware{Tokens: tokens}.RequireAuth(echoUser()).ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"userId":"99"}`, rr.Body.String())
}

func TestRequireAuthRejectsBearerWhenDisabled(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	rr := httptest.NewRecorder()
	auth.Middleware{}.RequireAuth(echoUser()).ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticateIsOptional(t *testing.T) {
	rr := httptest.NewRecorder()
	auth.Middleware{}.Authenticate(echoUser()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/create-paypal-order", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"userId":""}`, rr.Body.String())
}
