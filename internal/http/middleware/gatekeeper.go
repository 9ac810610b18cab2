package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evehealth/eve-auth-service/internal/credential"
	"github.com/evehealth/eve-auth-service/internal/observability"
	"github.com/evehealth/eve-auth-service/internal/provider"
)

// Gatekeeper is the request-time auth gate. It decides from the credential
// cookies alone whenever it can; re-validating the token against the
// provider on every navigation is deliberately skipped, the access verifier
// downstream remains the real boundary.
type Gatekeeper struct {
	provider          provider.IdentityProvider
	logger            *slog.Logger
	now               func() time.Time
	loginPath         string
	dashboardPath     string
	protectedPrefixes []string
	authOnlyPaths     []string
}

func NewGatekeeper(p provider.IdentityProvider, logger *slog.Logger) *Gatekeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatekeeper{
		provider:          p,
		logger:            logger,
		now:               func() time.Time { return time.Now().UTC() },
		loginPath:         "/login",
		dashboardPath:     "/dashboard",
		protectedPrefixes: []string{"/dashboard", "/api/v1/users", "/api/v1/admin"},
		authOnlyPaths:     []string{"/login"},
	}
}

// WithClock overrides time for tests.
func (g *Gatekeeper) WithClock(now func() time.Time) *Gatekeeper {
	g.now = now
	return g
}

// WithPaths replaces the default path classification.
func (g *Gatekeeper) WithPaths(protectedPrefixes, authOnlyPaths []string) *Gatekeeper {
	g.protectedPrefixes = protectedPrefixes
	g.authOnlyPaths = authOnlyPaths
	return g
}

func (g *Gatekeeper) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				// A broken gate must never block navigation.
				if rec := recover(); rec != nil {
					g.logger.Error("gatekeeper panicked, passing request through", "path", r.URL.Path, "panic", rec)
					observability.RecordGatekeeperDecision(r.Context(), "fail_open")
					next.ServeHTTP(w, r)
				}
			}()

			path := r.URL.Path
			isProtected := g.matchesPrefix(path, g.protectedPrefixes)
			isAuthOnly := g.matchesPath(path, g.authOnlyPaths)
			if !isProtected && !isAuthOnly {
				next.ServeHTTP(w, r)
				return
			}

			authenticated := credential.ReadCookies(r, g.now()).IsValid
			if !authenticated && isProtected {
				// No usable cookies: one provider check before bouncing, so a
				// live session with lost cookies survives the navigation.
				sess, err := g.provider.GetSession(r.Context())
				if err != nil {
					g.logger.Warn("gatekeeper provider check failed, passing request through", "path", path, "error", err)
					observability.RecordGatekeeperDecision(r.Context(), "fail_open")
					next.ServeHTTP(w, r)
					return
				}
				authenticated = sess.Valid(g.now())
			}

			switch {
			case !authenticated && isProtected:
				target := g.loginPath + "?redirectTo=" + url.QueryEscape(requestTarget(r))
				observability.RecordGatekeeperDecision(r.Context(), "redirect_login")
				http.Redirect(w, r, target, http.StatusFound)
			case authenticated && isAuthOnly:
				observability.RecordGatekeeperDecision(r.Context(), "redirect_dashboard")
				http.Redirect(w, r, g.dashboardPath, http.StatusFound)
			default:
				observability.RecordGatekeeperDecision(r.Context(), "allow")
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (g *Gatekeeper) matchesPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func (g *Gatekeeper) matchesPath(path string, paths []string) bool {
	for _, p := range paths {
		if path == p {
			return true
		}
	}
	return false
}

// requestTarget preserves the query string so the post-login redirect lands
// on the exact page that was requested.
func requestTarget(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}
