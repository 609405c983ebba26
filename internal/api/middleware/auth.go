package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sitepulse/sitepulse/internal/api/errors"
	"github.com/sitepulse/sitepulse/internal/auth"
	"github.com/sitepulse/sitepulse/internal/models"
)

// SessionChecker is the subset of auth.Service the middleware needs,
// kept as an interface so handler tests can stub it.
type SessionChecker interface {
	Check(ctx context.Context, token string) (*models.Session, error)
}

// RequireAuth extracts the session cookie, validates it against the
// session store, and injects the resulting Session into the request
// context. Missing or invalid sessions are rejected with 1003/401.
func RequireAuth(svc SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookieName)
			if err != nil || cookie.Value == "" {
				errors.WriteError(w, errors.AuthzFailed("未登录或会话已过期"))
				return
			}

			session, err := svc.Check(r.Context(), cookie.Value)
			if err != nil || session == nil {
				errors.WriteError(w, errors.AuthzFailed("未登录或会话已过期"))
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSameOrigin enforces the CSRF guard from the HTTP API spec:
// state-changing endpoints must carry an Origin or Referer whose host
// matches the request's Host header. Requests with neither header are
// rejected.
func RequireSameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sameOrigin(r) {
			errors.WriteError(w, errors.AuthzFailed("跨站请求被拒绝"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sameOrigin(r *http.Request) bool {
	host := r.Host
	if origin := r.Header.Get("Origin"); origin != "" {
		return hostMatches(origin, host)
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		return hostMatches(referer, host)
	}
	return false
}

func hostMatches(rawURL, host string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Host == host
}

// GetSession extracts the authenticated session from context.
func GetSession(ctx context.Context) (*models.Session, bool) {
	session, ok := ctx.Value(SessionContextKey).(*models.Session)
	return session, ok
}
