package gate

import (
	"errors"
	"net/http"

	authgate "github.com/selcaux/authgate"
)

// Guards compose: attach [Gate.Middleware] once, then stack any of these on
// routes or groups. A guard without an identity in context rejects with 401,
// which also covers routes that skipped the middleware by mistake.

// RequireAuthenticated passes any request carrying a verified identity.
func (g *Gate) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireActive rejects identities whose account is disabled.
func (g *Gate) RequireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeUnauthorized(w)
			return
		}
		if !identity.IsActive {
			writeForbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSuperuser passes superusers only.
func (g *Gate) RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeUnauthorized(w)
			return
		}
		if !identity.IsSuperuser {
			writeForbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole passes identities holding the named role. Superusers bypass.
func (g *Gate) RequireRole(roleName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeUnauthorized(w)
				return
			}
			held, err := g.engine.HasRole(r.Context(), identity, roleName)
			if err != nil {
				if errors.Is(err, authgate.ErrStorageUnavailable) {
					writeUnavailable(w)
					return
				}
				writeForbidden(w)
				return
			}
			if !held {
				writeForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission passes identities holding the "resource:action"
// permission. Superusers hold everything.
func (g *Gate) RequirePermission(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeUnauthorized(w)
				return
			}
			allowed, err := g.engine.CheckPermission(r.Context(), identity, required)
			if err != nil {
				if errors.Is(err, authgate.ErrStorageUnavailable) {
					writeUnavailable(w)
					return
				}
				writeForbidden(w)
				return
			}
			if !allowed {
				writeForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
