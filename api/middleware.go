package api

import (
	"context"
	"net/http"

	"github.com/aibiliti/kbdash/auth"
)

type contextKey int

const subjectKey contextKey = iota

// RequireAuth guards dashboard pages. Requests without a valid session are
// redirected to the login page; the reason is never disclosed.
func (a *API) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := auth.ReadSession(a.cookies(w, r))
		if d := a.gate.RequireAuth(raw); d != auth.Proceed {
			a.rejectSession(r, raw)
			http.Redirect(w, r, d.Location(), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), a.gate.Username())))
	})
}

// RequireAPIAuth guards JSON endpoints with a uniform 401.
func (a *API) RequireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := auth.ReadSession(a.cookies(w, r))
		if !a.gate.IsAuthenticated(raw) {
			a.rejectSession(r, raw)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), a.gate.Username())))
	})
}

// rejectSession records a presented but invalid session. An absent cookie is
// an ordinary anonymous request and is not recorded.
func (a *API) rejectSession(r *http.Request, raw string) {
	if raw != "" {
		a.audit.log(AuditSessionRejected, r, "")
	}
}

func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFromContext returns the authenticated subject stored by the auth
// middleware, or "".
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey).(string)
	return subject
}
