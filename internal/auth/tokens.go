package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const defaultClockSkew = 30 * time.Second

var errNoSubject = errors.New("auth: token has no subject")

// TokenConfig configures Tokens. Issuer and Audience are enforced only when set.
type TokenConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Tokens verifies HS256 bearer tokens minted by the site's login service.
// The subject claim is the user id.
type Tokens struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
	now      func() time.Time
}

// NewTokens returns nil when no secret is configured, which disables bearer auth.
func NewTokens(cfg TokenConfig) *Tokens {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = defaultClockSkew
	}
	return &Tokens{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		skew:     skew,
		now:      time.Now,
	}
}

// Parse verifies the signature and registered claims and returns the user id.
func (t *Tokens) Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errNoCredentials
	}
	if err := requireHS256(raw); err != nil {
		return "", err
	}

	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, t.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(t.now)),
		jwt.WithAcceptableSkew(t.skew),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}
	tok, err := jwt.ParseString(raw, opts...)
	if err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	sub := strings.TrimSpace(tok.Subject())
	if sub == "" {
		return "", errNoSubject
	}
	return sub, nil
}

// Issue signs a token for userID. The login service owns issuance in
// production; the seeder and tests use this.
func (t *Tokens) Issue(userID string, ttl time.Duration) (string, error) {
	now := t.now()
	b := jwt.NewBuilder().
		Subject(userID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if t.issuer != "" {
		b = b.Issuer(t.issuer)
	}
	if t.audience != "" {
		b = b.Audience([]string{t.audience})
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// requireHS256 rejects tokens whose header names any other algorithm,
// including "none", before the signature is looked at.
func requireHS256(raw string) error {
	msg, err := jws.ParseString(raw)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 || sigs[0].ProtectedHeaders() == nil {
		return errors.New("auth: token must carry exactly one signature")
	}
	if alg := sigs[0].ProtectedHeaders().Algorithm(); alg != jwa.HS256 {
		return fmt.Errorf("auth: unexpected token algorithm %q", alg)
	}
	return nil
}
