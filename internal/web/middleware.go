package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/webventory/internal/auth"
	"github.com/erazemk/webventory/internal/store"
)

type webContextKey string

const webClaimsKey webContextKey = "webclaims"

const cookieName = "token"

// policy decides what a route does with the resolved session.
type policy int

const (
	// requireUser sends anonymous visitors to the login page.
	requireUser policy = iota
	// requireAnonymous sends logged-in users to their landing page.
	requireAnonymous
	// allowAny passes everyone through, attaching the session if present.
	allowAny
)

// gate resolves the session cookie once per request and applies p. A
// missing, invalid, expired or revoked token counts as anonymous.
func (s *Server) gate(p policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := s.session(w, r)

			switch {
			case p == requireUser && claims == nil:
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			case p == requireAnonymous && claims != nil:
				http.Redirect(w, r, "/userHome", http.StatusSeeOther)
				return
			}

			if claims != nil {
				r = r.WithContext(context.WithValue(r.Context(), webClaimsKey, claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// session returns the claims of the request's session, or nil if there is
// none. A cookie that fails validation is cleared.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *auth.Claims {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	claims, err := auth.ValidateToken(s.JWTSecret, cookie.Value)
	if err != nil {
		clearAuthCookie(w)
		return nil
	}

	revoked, err := store.IsTokenRevoked(r.Context(), s.DB, claims.ID)
	if err != nil {
		slog.Error("failed to check token revocation", "error", err)
		clearAuthCookie(w)
		return nil
	}
	if revoked {
		clearAuthCookie(w)
		return nil
	}

	return claims
}

// setAuthCookie stores a session token in an HttpOnly cookie.
func setAuthCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// clearAuthCookie clears the authentication cookie with consistent attributes.
func clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetWebClaims retrieves the JWT claims from web context.
func GetWebClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(webClaimsKey).(*auth.Claims)
	return claims
}
