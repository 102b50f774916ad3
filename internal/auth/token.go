package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var (
	// ErrNoToken is returned by TokenSource when the store is empty.
	ErrNoToken = errors.New("auth: no token")
	// ErrTokenExpired is returned when the stored JWT's exp has passed.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Expiry reads the exp claim of a JWT without verifying its signature;
// verification is the server's job. ok is false for opaque tokens and
// tokens without exp.
func Expiry(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	nd, err := claims.GetExpirationTime()
	if err != nil || nd == nil {
		return time.Time{}, false
	}
	return nd.Time, true
}

// TokenSource adapts a Store to oauth2.TokenSource.
type TokenSource struct {
	store Store
	now   func() time.Time
}

// NewTokenSource returns a TokenSource reading from store.
func NewTokenSource(store Store) *TokenSource {
	return &TokenSource{store: store, now: time.Now}
}

// Token returns the stored token as a bearer oauth2.Token. JWT expiry is
// honoured; opaque tokens never expire client-side.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	raw, err := ts.store.Token(context.Background())
	if err != nil {
		return nil, fmt.Errorf("auth: reading token: %w", err)
	}
	if raw == "" {
		return nil, ErrNoToken
	}
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if exp, ok := Expiry(raw); ok {
		tok.Expiry = exp
		if !ts.now().Before(exp) {
			return nil, ErrTokenExpired
		}
	}
	return tok, nil
}

// HubToken returns the token callback used during a hub handshake. An empty
// store connects anonymously.
func (ts *TokenSource) HubToken() (string, error) {
	tok, err := ts.Token()
	if errors.Is(err, ErrNoToken) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Transport sets the Authorization header from a TokenSource. Requests go
// out unauthenticated while the store is empty.
type Transport struct {
	Source *TokenSource
	Base   http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.Source.Token()
	if errors.Is(err, ErrNoToken) {
		return t.base().RoundTrip(req)
	}
	if err != nil {
		return nil, err
	}
	// oauth2.Transport applies the header to a clone of req.
	ot := &oauth2.Transport{Source: oauth2.StaticTokenSource(tok), Base: t.base()}
	return ot.RoundTrip(req)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
