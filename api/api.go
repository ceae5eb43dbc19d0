package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/aibiliti/kbdash/auth"
	"github.com/aibiliti/kbdash/storage"
	"github.com/aibiliti/kbdash/web"
)

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	gate           *auth.Gate
	pages          *web.Pages
	events         storage.Repository
	logger         *slog.Logger
	trustedProxies []netip.Prefix
	webhookURL     string
	webhookHeader  string
	forwarder      *auditForwarder
	alertFn        AlertFunc
	alertThreshold int
	audit          *auditLogger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithEventRepository persists audit events so the dashboard and the audit
// endpoint can list them.
func WithEventRepository(repo storage.Repository) Option {
	return func(a *API) {
		a.events = repo
	}
}

// WithTrustedProxies sets the CIDR ranges whose forwarding headers are
// believed when recording the client address.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithAuditWebhook forwards every audit event to url. header, if set, has the
// form "Name: value" and is added to each request.
func WithAuditWebhook(url, header string) Option {
	return func(a *API) {
		a.webhookURL = url
		a.webhookHeader = header
	}
}

// WithAlertFunc registers a callback for login failure and session rejection
// spikes. threshold <= 0 keeps the default.
func WithAlertFunc(fn AlertFunc, threshold int) Option {
	return func(a *API) {
		a.alertFn = fn
		a.alertThreshold = threshold
	}
}

// New creates a new API instance.
func New(gate *auth.Gate, pages *web.Pages, opts ...Option) *API {
	a := &API{
		gate:  gate,
		pages: pages,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.audit = newAuditLogger(a.logger, a.events, a.extractClientIP)
	if a.webhookURL != "" {
		a.forwarder = newAuditForwarder(a.webhookURL, a.webhookHeader, forwardBacklog, a.logger)
		a.audit.forward = a.forwarder
	}
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn, a.alertThreshold)
	}
	return a
}

// Close delivers any audit records still queued for the webhook.
func (a *API) Close() {
	if a.forwarder != nil {
		a.forwarder.shutdown()
	}
}

// Router returns a chi.Router with the dashboard pages and the JSON API
// mounted under /api/v1.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(a.SecurityHeaders)
		r.Handle("/static/*", a.pages.Static())
		r.Get("/login", a.LoginPage)
		r.Post("/login", a.Login)
		r.Post("/logout", a.Logout)
		r.With(a.RequireAuth).Get("/", a.Home)
	})

	r.Mount("/api/v1", a.apiRouter())
	return r
}

func (a *API) apiRouter() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(a.CSRFMiddleware)
		r.Post("/auth/login", a.APILogin)
		r.Post("/auth/logout", a.APILogout)
		r.Get("/auth/session", a.SessionStatus)
		r.With(a.RequireAPIAuth).Get("/audit", a.ListAuditEvents)
	})

	return r
}
