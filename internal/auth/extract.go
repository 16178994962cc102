package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the browser channel for the session token.
const CookieName = "auth_token"

// A TokenSource inspects a request and returns a candidate token, or ""
// when its channel carries none. Sources are tried in order; a channel
// carrying a token that fails verification does not block a later one.
type TokenSource func(*http.Request) string

func CookieTokenSource(name string) TokenSource {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(cookie.Value)
	}
}

func BearerTokenSource() TokenSource {
	return func(r *http.Request) string {
		header := r.Header.Get("Authorization")
		if header == "" {
			return ""
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
}

// ResolveClaims runs every source through the same verification routine
// and returns the claims of the first candidate that verifies. All failure
// modes, including no candidate at all, collapse into one error.
func ResolveClaims(r *http.Request, verify func(string) (*Claims, error), sources ...TokenSource) (*Claims, error) {
	for _, source := range sources {
		token := source(r)
		if token == "" {
			continue
		}
		if claims, err := verify(token); err == nil {
			return claims, nil
		}
	}
	return nil, jwt.ErrTokenInvalidClaims
}
