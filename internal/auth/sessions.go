package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/sessions"
)

const sessionUserKey = "user_id"

// Sessions reads the signed session cookie shared with the site's login
// service.
type Sessions struct {
	Store sessions.Store
	Name  string
}

// CookieOptions configures the session cookie.
type CookieOptions struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

// NewCookieSessions builds Sessions over a gorilla cookie store keyed by secret.
func NewCookieSessions(secret []byte, name string, opts CookieOptions) *Sessions {
	store := sessions.NewCookieStore(secret)
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * 60 * 60
	}
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: opts.SameSite,
	}
	return &Sessions{Store: store, Name: name}
}

// UserID returns the user bound to the request's session.
func (s *Sessions) UserID(r *http.Request) (string, bool) {
	if s == nil || s.Store == nil {
		return "", false
	}
	sess, err := s.Store.Get(r, s.Name)
	if err != nil || sess.IsNew {
		return "", false
	}
	var id string
	switch v := sess.Values[sessionUserKey].(type) {
	case string:
		id = v
	case int:
		id = strconv.Itoa(v)
	case int64:
		id = strconv.FormatInt(v, 10)
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// Establish binds userID to a session cookie on w.
func (s *Sessions) Establish(w http.ResponseWriter, r *http.Request, userID string) error {
	sess, err := s.Store.Get(r, s.Name)
	if err != nil && sess == nil {
		return err
	}
	sess.Values[sessionUserKey] = userID
	return sess.Save(r, w)
}
