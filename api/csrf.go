package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/aibiliti/kbdash/auth"
	"github.com/aibiliti/kbdash/internal/uuid"
)

const (
	csrfCookieName = "kb_csrf"
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
)

// CSRFMiddleware enforces double-submit cookie CSRF protection for
// cookie-authenticated mutating JSON requests. Safe methods (GET, HEAD,
// OPTIONS) and requests without a session cookie are exempt.
func (a *API) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		// Without a session cookie there is no ambient authority for a
		// cross-site request to ride on.
		if _, err := r.Cookie(auth.SessionCookieName); err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if !csrfMatches(r, r.Header.Get(csrfHeaderName)) {
			a.audit.logFailure(AuditCSRFRejected, r, "csrf header mismatch")
			writeError(w, http.StatusForbidden, "invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// csrfMatches compares submitted against the CSRF cookie in constant time.
func csrfMatches(r *http.Request, submitted string) bool {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(submitted)) == 1
}

// ensureCSRFToken returns the request's CSRF token, issuing a new cookie when
// there is none.
func (a *API) ensureCSRFToken(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	token := newCSRFToken()
	a.writeCSRFCookie(w, token)
	return token
}

func newCSRFToken() string {
	return uuid.New()
}

// writeCSRFCookie sets the CSRF double-submit cookie. It is NOT HttpOnly so
// that script clients of the JSON API can echo it in a header.
func (a *API) writeCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   a.gate.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

// clearCSRFCookie removes the CSRF cookie on logout.
func (a *API) clearCSRFCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: false,
		Secure:   a.gate.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
