// Package gate translates HTTP requests into engine calls: it classifies
// allow-listed paths, extracts the bearer credential, verifies it once per
// request, and exposes the resulting identity through the request context.
//
// It does not implement authentication itself; every decision is delegated
// to [authgate.Engine]. Responses for rejected requests are deliberately
// generic so the failure kind never leaks to the caller. The precise kind is
// visible in audit events and metrics only.
package gate

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	authgate "github.com/selcaux/authgate"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by [Gate.Middleware].
func IdentityFromContext(ctx context.Context) (authgate.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(authgate.Identity)
	return identity, ok
}

// Gate is the HTTP boundary around an engine.
type Gate struct {
	engine *authgate.Engine
	config authgate.GateConfig

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// New creates a gate over the engine, reading cookie names and the
// allow-list from the engine's configuration.
func New(engine *authgate.Engine) *Gate {
	cfg := engine.Config()
	return &Gate{
		engine:     engine,
		config:     cfg.Gate,
		accessTTL:  cfg.Token.AccessTTL,
		refreshTTL: cfg.Token.RefreshTTL,
	}
}

// allowed reports whether the path bypasses authentication. Checked before
// any credential extraction: allow-listed requests never touch credentials.
func (g *Gate) allowed(path string) bool {
	for _, p := range g.config.AllowPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range g.config.AllowPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AccessFromRequest extracts the access credential: cookie first, then the
// Authorization header. Empty when neither is present.
func (g *Gate) AccessFromRequest(r *http.Request) string {
	if c, err := r.Cookie(g.config.AccessCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return bearerToken(r.Header.Get("Authorization"))
}

// RefreshFromRequest extracts the refresh credential from its cookie.
// Refresh credentials travel by cookie only; the Authorization header is
// reserved for the access credential.
func (g *Gate) RefreshFromRequest(r *http.Request) string {
	if c, err := r.Cookie(g.config.RefreshCookieName); err == nil {
		return c.Value
	}
	return ""
}

func bearerToken(value string) string {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return ""
	}
	return value[len(bearer):]
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware authenticates every request whose path is not allow-listed.
// Verification happens exactly once; handlers and further guards read the
// identity from the request context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.allowed(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		credential := g.AccessFromRequest(r)
		if credential == "" {
			writeUnauthorized(w)
			return
		}

		ctx := authgate.WithClientIP(r.Context(), clientIP(r))
		ctx = authgate.WithUserAgent(ctx, r.UserAgent())

		identity, err := g.engine.VerifyAccess(ctx, credential)
		if err != nil {
			if errors.Is(err, authgate.ErrStorageUnavailable) {
				writeUnavailable(w)
				return
			}
			writeUnauthorized(w)
			return
		}

		ctx = context.WithValue(ctx, identityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookies writes HTTP-only cookies for both credentials of the pair.
// The refresh cookie is skipped when the pair carries no refresh token, as on
// a non-rotating refresh.
func (g *Gate) SetAuthCookies(w http.ResponseWriter, pair authgate.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.config.AccessCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(g.accessTTL / time.Second),
		HttpOnly: true,
		Secure:   g.config.SecureCookies,
		SameSite: g.config.SameSite,
	})
	if pair.RefreshToken == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.config.RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   int(g.refreshTTL / time.Second),
		HttpOnly: true,
		Secure:   g.config.SecureCookies,
		SameSite: g.config.SameSite,
	})
}

// ClearAuthCookies expires both credential cookies, for logout responses.
func (g *Gate) ClearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{g.config.AccessCookieName, g.config.RefreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   g.config.SecureCookies,
			SameSite: g.config.SameSite,
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"forbidden"}`))
}

func writeUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`{"error":"service unavailable"}`))
}
