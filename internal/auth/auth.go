// Package auth binds the shared bearer-token library to the fitcoach API:
// which routes are public and which scopes guard the rest.
package auth

import (
	"context"
	"net/http"

	authlib "example.com/fitcoach/pkg/auth"
)

type (
	Claims = authlib.Claims
	Config = authlib.Config
)

// publicPaths are served without a token.
var publicPaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

// IsPublic reports requests that skip authentication: CORS preflights and the
// probe and scrape endpoints.
func IsPublic(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	_, ok := publicPaths[r.URL.Path]
	return ok
}

// NewMiddleware returns the bearer middleware for the API.
func NewMiddleware(cfg Config) authlib.Middleware {
	return authlib.NewMiddleware(cfg, IsPublic)
}

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return authlib.WithClaims(ctx, claims)
}

// FromContext returns the authenticated caller's claims.
func FromContext(ctx context.Context) (*Claims, bool) {
	return authlib.FromContext(ctx)
}
