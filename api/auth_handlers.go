package api

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/aibiliti/kbdash/auth"
	"github.com/aibiliti/kbdash/storage"
	"github.com/aibiliti/kbdash/web"
)

const (
	maxAuditLimit   = 500
	homeEventsLimit = 10

	loginErrorInvalid = "invalid"
	loginErrorConfig  = "config"
)

var sessionHours = int(auth.SessionMaxAge.Hours())

// LoginPage handles GET /login.
func (a *API) LoginPage(w http.ResponseWriter, r *http.Request) {
	raw := auth.ReadSession(a.cookies(w, r))
	if d := a.gate.LoginEntry(raw); d == auth.RedirectToHome {
		http.Redirect(w, r, d.Location(), http.StatusFound)
		return
	}

	errParam := r.URL.Query().Get("error")
	configured := a.gate.IsLoginConfigured()
	view := web.LoginView{
		InvalidCredentials: errParam == loginErrorInvalid,
		NotConfigured:      errParam == loginErrorConfig || !configured,
		LoginDisabled:      !configured,
		CSRFToken:          a.ensureCSRFToken(w, r),
		SessionHours:       sessionHours,
	}
	if err := a.pages.RenderLogin(w, http.StatusOK, view); err != nil {
		a.logger.Error("rendering login page failed", "error", err)
	}
}

// Login handles POST /login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodySize)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}
	if !csrfMatches(r, r.PostForm.Get(csrfFormField)) {
		a.audit.logFailure(AuditCSRFRejected, r, "csrf form mismatch")
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	jar := a.cookies(w, r)
	if d := a.gate.LoginEntry(auth.ReadSession(jar)); d == auth.RedirectToHome {
		http.Redirect(w, r, d.Location(), http.StatusSeeOther)
		return
	}

	username := strings.TrimSpace(formField(r.PostForm, "username"))
	password := formField(r.PostForm, "password")

	switch err := a.attemptLogin(jar, r, username, password); {
	case err == nil:
		http.Redirect(w, r, auth.HomePath, http.StatusSeeOther)
	case errors.Is(err, auth.ErrLoginNotConfigured):
		http.Redirect(w, r, auth.LoginPath+"?error="+loginErrorConfig, http.StatusSeeOther)
	case errors.Is(err, auth.ErrSigningKeyUnavailable):
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	default:
		http.Redirect(w, r, auth.LoginPath+"?error="+loginErrorInvalid, http.StatusSeeOther)
	}
}

// attemptLogin runs the gate's login contract and records the outcome.
func (a *API) attemptLogin(jar auth.CookieJar, r *http.Request, username, password string) error {
	err := a.gate.Login(jar, username, password)
	switch {
	case err == nil:
		a.audit.log(AuditLoginSuccess, r, a.gate.Username())
	case errors.Is(err, auth.ErrLoginNotConfigured):
		a.audit.logFailure(AuditLoginNotConfigured, r, "credentials not configured")
	case errors.Is(err, auth.ErrSigningKeyUnavailable):
		a.logger.Error("session token not issued", "error", err)
		a.audit.logFailure(AuditLoginFailure, r, "signing key unavailable")
	default:
		a.audit.logFailure(AuditLoginFailure, r, "credential mismatch")
	}
	return err
}

// formField returns the value of key, falling back to the first field (in
// name order) whose name ends in "_"+key.
func formField(form url.Values, key string) string {
	if vs, ok := form[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	names := make([]string, 0, len(form))
	for name := range form {
		if strings.HasSuffix(name, "_"+key) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if vs := form[name]; len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// Logout handles POST /logout.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodySize)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}
	if !csrfMatches(r, r.PostForm.Get(csrfFormField)) {
		a.audit.logFailure(AuditCSRFRejected, r, "csrf form mismatch")
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}
	a.logout(w, r)
	http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	jar := a.cookies(w, r)
	subject := ""
	if a.gate.IsAuthenticated(auth.ReadSession(jar)) {
		subject = a.gate.Username()
	}
	a.gate.Logout(jar)
	a.clearCSRFCookie(w)
	a.audit.log(AuditLogout, r, subject)
}

// Home handles GET /. It is mounted behind RequireAuth.
func (a *API) Home(w http.ResponseWriter, r *http.Request) {
	view := web.HomeView{
		Username:     SubjectFromContext(r.Context()),
		CSRFToken:    a.ensureCSRFToken(w, r),
		SessionHours: sessionHours,
	}
	if a.events != nil {
		events, err := a.events.Recent(homeEventsLimit)
		if err != nil {
			a.logger.Warn("listing audit events failed", "error", err)
			view.EventsError = true
		}
		view.Events = events
	}
	if err := a.pages.RenderHome(w, view); err != nil {
		a.logger.Error("rendering home page failed", "error", err)
	}
}

// APILogin handles POST /api/v1/auth/login.
func (a *API) APILogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	err := a.attemptLogin(a.cookies(w, r), r, strings.TrimSpace(req.Username), req.Password)
	switch {
	case err == nil:
		a.writeCSRFCookie(w, newCSRFToken())
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrLoginNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "login not configured")
	case errors.Is(err, auth.ErrSigningKeyUnavailable):
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	}
}

// APILogout handles POST /api/v1/auth/logout.
func (a *API) APILogout(w http.ResponseWriter, r *http.Request) {
	a.logout(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// SessionStatus handles GET /api/v1/auth/session.
func (a *API) SessionStatus(w http.ResponseWriter, r *http.Request) {
	resp := SessionResponse{}
	if a.gate.IsAuthenticated(auth.ReadSession(a.cookies(w, r))) {
		resp.Authenticated = true
		resp.Username = a.gate.Username()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListAuditEvents handles GET /api/v1/audit.
func (a *API) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	limit := storage.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	resp := AuditEventsResponse{Events: []storage.Event{}}
	if a.events != nil {
		events, err := a.events.Recent(limit)
		if err != nil {
			writeInternalError(w, "list audit events", err)
			return
		}
		if events != nil {
			resp.Events = events
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
