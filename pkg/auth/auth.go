// Package auth validates gateway-issued bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// clockSkew is tolerated on exp and nbf between the gateway and this service.
const clockSkew = 30 * time.Second

// Config holds the HS256 secret and the expected issuer.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the caller identity extracted from a verified token.
type Claims struct {
	Subject   string
	UserID    string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

var (
	// ErrMissingToken is returned when no bearer token was presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps every signature, expiry and claim failure.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// tokenClaims is the JWT body issued by the gateway. Scopes arrive either as
// the space-separated OAuth "scope" string or as a "scopes" list.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID string   `json:"user_id,omitempty"`
	Scope  string   `json:"scope,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

// Parse verifies token and returns its claims. user_id falls back to the
// subject when the gateway has not linked the account to a user record yet.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var body tokenClaims
	_, err := jwt.ParseWithClaims(token, &body, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if body.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	claims := &Claims{
		Subject: body.Subject,
		UserID:  body.UserID,
		Scopes:  make(map[string]struct{}),
	}
	if claims.UserID == "" {
		claims.UserID = body.Subject
	}
	if body.ExpiresAt != nil {
		claims.ExpiresAt = body.ExpiresAt.Time
	}
	for _, scope := range append(strings.Fields(body.Scope), body.Scopes...) {
		if scope != "" {
			claims.Scopes[scope] = struct{}{}
		}
	}
	return claims, nil
}

// HasScope reports whether scope was granted.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}

// HasAnyScope reports whether at least one of scopes was granted.
func (c *Claims) HasAnyScope(scopes ...string) bool {
	for _, scope := range scopes {
		if c.HasScope(scope) {
			return true
		}
	}
	return false
}
