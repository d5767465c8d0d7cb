package auth

import (
	"context"
	"net/http"
	"net/url"
)

type contextKey string

const principalContextKey contextKey = "auth_principal"

// CookieName is the dispatcher session cookie's name.
const CookieName = "dispatcher_session"

// WithPrincipal returns a context carrying p, for tests and handlers that
// mint a request context directly.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// FromContext extracts the Principal attached by Middleware, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// Middleware resolves the dispatcher cookie on every request and attaches
// the Principal (if any) to the request context; it never itself rejects
// a request; call RequireAuth in front of privileged handlers.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(CookieName); err == nil {
			if p, ok := g.Verify(c.Value); ok {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth wraps a handler so that an absent or invalid principal
// responds 401. Page-handler 302-to-/login redirects are not applicable
// here: this core implements no HTML pages.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginRedirectPath builds the "/login?return=<encoded path>" target for
// a page-handler collaborator; the core itself never redirects.
func LoginRedirectPath(originalPath string) string {
	return "/login?return=" + url.QueryEscape(originalPath)
}
