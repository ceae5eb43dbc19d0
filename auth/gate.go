package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// SessionCookieName is the cookie carrying the session token.
	SessionCookieName = "kb_session"
	// LoginPath is where unauthenticated requests are sent.
	LoginPath = "/login"
	// HomePath is where a successful login lands.
	HomePath = "/"
)

var (
	// ErrLoginNotConfigured means one of username, password, or secret is
	// missing, so login is disabled.
	ErrLoginNotConfigured = errors.New("login not configured")
	// ErrInvalidCredentials means the submitted pair did not match. It never
	// says which field was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// CookieAttributes are the attributes a CookieJar applies when writing.
// A negative MaxAge deletes the cookie.
type CookieAttributes struct {
	Path     string
	MaxAge   int
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
}

// CookieJar is the transport's cookie port. GetCookie reports false when the
// cookie is absent or empty.
type CookieJar interface {
	GetCookie(name string) (string, bool)
	SetCookie(name, value string, attrs CookieAttributes)
}

// Directive tells the caller how to continue handling a request.
type Directive int

const (
	// Proceed lets the request render.
	Proceed Directive = iota
	// RedirectToLogin sends the client to LoginPath.
	RedirectToLogin
	// RedirectToHome sends the client to HomePath.
	RedirectToHome
)

// Location returns the redirect target, or "" for Proceed.
func (d Directive) Location() string {
	switch d {
	case RedirectToLogin:
		return LoginPath
	case RedirectToHome:
		return HomePath
	default:
		return ""
	}
}

func (d Directive) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Gate decides, per request, whether the carried session is valid. It holds
// no per-session state.
type Gate struct {
	store  *CredentialStore
	codec  *SessionCodec
	secure bool
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithSecureCookies marks the session cookie Secure. Production deployments
// turn this on.
func WithSecureCookies(secure bool) GateOption {
	return func(g *Gate) {
		g.secure = secure
	}
}

// NewGate returns a Gate backed by store and codec.
func NewGate(store *CredentialStore, codec *SessionCodec, opts ...GateOption) *Gate {
	g := &Gate{store: store, codec: codec}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ReadSession returns the raw session cookie from jar, or "" when absent.
func ReadSession(jar CookieJar) string {
	v, ok := jar.GetCookie(SessionCookieName)
	if !ok {
		return ""
	}
	return v
}

// IsLoginConfigured reports whether login can succeed at all.
func (g *Gate) IsLoginConfigured() bool {
	return g.store.IsConfigured()
}

// Username returns the only subject a valid session can carry.
func (g *Gate) Username() string {
	return g.store.Username()
}

// SecureCookies reports whether cookies are written with the Secure flag.
func (g *Gate) SecureCookies() bool {
	return g.secure
}

// IsAuthenticated reports whether raw is a valid session token. An empty
// value is an absent cookie.
func (g *Gate) IsAuthenticated(raw string) bool {
	if raw == "" {
		return false
	}
	_, ok := g.codec.Verify(raw)
	return ok
}

// RequireAuth guards a protected view.
func (g *Gate) RequireAuth(raw string) Directive {
	if !g.IsAuthenticated(raw) {
		return RedirectToLogin
	}
	return Proceed
}

// LoginEntry guards the login page: a signed-in client is sent home.
func (g *Gate) LoginEntry(raw string) Directive {
	if g.IsAuthenticated(raw) {
		return RedirectToHome
	}
	return Proceed
}

// Login validates the submitted pair and, on success, writes a fresh session
// cookie to jar. It returns ErrLoginNotConfigured or ErrInvalidCredentials on
// failure, or ErrSigningKeyUnavailable when no token can be signed; no cookie
// is written in any of these cases.
func (g *Gate) Login(jar CookieJar, username, password string) error {
	if !g.store.IsConfigured() {
		return ErrLoginNotConfigured
	}
	if !g.store.Validate(username, password) {
		return ErrInvalidCredentials
	}
	token, err := g.codec.Encode(username)
	if err != nil {
		return fmt.Errorf("issuing session token: %w", err)
	}
	jar.SetCookie(SessionCookieName, token, g.cookieAttributes(int(SessionMaxAge/time.Second)))
	return nil
}

// Logout expires the session cookie. The token itself stays valid until it
// ages out; there is no server-side revocation.
func (g *Gate) Logout(jar CookieJar) {
	jar.SetCookie(SessionCookieName, "", g.cookieAttributes(-1))
}

func (g *Gate) cookieAttributes(maxAge int) CookieAttributes {
	return CookieAttributes{
		Path:     "/",
		MaxAge:   maxAge,
		HTTPOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
