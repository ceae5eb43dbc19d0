// Package web renders the dashboard's server-side pages from embedded
// templates and serves its static assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/aibiliti/kbdash/storage"
)

//go:embed templates/*.html static/*
var content embed.FS

// LoginView is the data rendered by the sign-in page. NotConfigured shows the
// alert; LoginDisabled turns off the submit button and follows the live
// configuration only.
type LoginView struct {
	InvalidCredentials bool
	NotConfigured      bool
	LoginDisabled      bool
	CSRFToken          string
	SessionHours       int
}

// HomeView is the data rendered by the protected home page.
type HomeView struct {
	Username     string
	CSRFToken    string
	SessionHours int
	Events       []storage.Event
	EventsError  bool
}

// Pages holds the parsed page templates.
type Pages struct {
	login  *template.Template
	home   *template.Template
	static http.Handler
}

var funcs = template.FuncMap{
	"timestamp": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04:05 UTC")
	},
}

// New parses the embedded templates.
func New() (*Pages, error) {
	login, err := template.New("layout.html").Funcs(funcs).ParseFS(content, "templates/layout.html", "templates/login.html")
	if err != nil {
		return nil, fmt.Errorf("parsing login template: %w", err)
	}
	home, err := template.New("layout.html").Funcs(funcs).ParseFS(content, "templates/layout.html", "templates/home.html")
	if err != nil {
		return nil, fmt.Errorf("parsing home template: %w", err)
	}
	staticFS, err := fs.Sub(content, "static")
	if err != nil {
		return nil, fmt.Errorf("loading embedded static assets: %w", err)
	}
	return &Pages{
		login:  login,
		home:   home,
		static: http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))),
	}, nil
}

// Static serves the embedded assets under /static/.
func (p *Pages) Static() http.Handler {
	return p.static
}

// RenderLogin writes the sign-in page.
func (p *Pages) RenderLogin(w http.ResponseWriter, status int, v LoginView) error {
	return render(w, status, p.login, v)
}

// RenderHome writes the home page.
func (p *Pages) RenderHome(w http.ResponseWriter, v HomeView) error {
	return render(w, http.StatusOK, p.home, v)
}

// render executes into a buffer first so a template error never leaves a
// half-written page behind.
func render(w http.ResponseWriter, status int, t *template.Template, data any) error {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
