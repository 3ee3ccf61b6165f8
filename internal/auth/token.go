// Package auth handles the client side of the session token lifecycle:
// expiry awareness, refresh against the auth service, and the terminal
// session-expired condition.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken marks a token the client cannot parse.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrSessionExpired is terminal: the underlying session is gone and
	// the user must re-authenticate. It is surfaced exactly once and
	// never retried silently.
	ErrSessionExpired = errors.New("auth: session expired")
)

// Token is an access token plus the expiry metadata the client can read
// from it. The client never verifies the signature — it holds no key;
// expiry awareness only schedules refreshes ahead of rejection.
type Token struct {
	Raw       string
	Subject   string
	ExpiresAt time.Time
}

// ParseToken decodes a JWT without verifying it and extracts the
// registered claims the client cares about. A token without an exp
// claim yields a zero ExpiresAt and never reports as expiring.
func ParseToken(raw string) (Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Token{}, ErrInvalidToken
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return Token{}, ErrInvalidToken
	}

	t := Token{Raw: raw, Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		t.ExpiresAt = claims.ExpiresAt.Time
	}
	return t, nil
}

// Expired reports whether the token's expiry has passed at now.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// ExpiresSoon reports whether the token expires within leeway of now,
// the signal to refresh ahead of a mid-stream auth error.
func (t Token) ExpiresSoon(now time.Time, leeway time.Duration) bool {
	return !t.ExpiresAt.IsZero() && now.Add(leeway).After(t.ExpiresAt)
}

// Zero reports whether the token is unset.
func (t Token) Zero() bool {
	return t.Raw == ""
}

// Session is the mutable auth state the transport session owns. It is
// copy-propagated to the shell, never shared by pointer outside the
// owner's update cycle.
type Session struct {
	Token        Token
	NeedsRefresh bool
	RefreshedAt  time.Time
}
