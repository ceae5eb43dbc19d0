package api

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/aibiliti/kbdash/auth"
)

// httpCookieJar adapts a request/response pair to auth.CookieJar.
type httpCookieJar struct {
	w http.ResponseWriter
	r *http.Request
}

var _ auth.CookieJar = httpCookieJar{}

func (a *API) cookies(w http.ResponseWriter, r *http.Request) httpCookieJar {
	return httpCookieJar{w: w, r: r}
}

func (j httpCookieJar) GetCookie(name string) (string, bool) {
	cookie, err := j.r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (j httpCookieJar) SetCookie(name, value string, attrs auth.CookieAttributes) {
	http.SetCookie(j.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     attrs.Path,
		MaxAge:   attrs.MaxAge,
		HttpOnly: attrs.HTTPOnly,
		Secure:   attrs.Secure,
		SameSite: attrs.SameSite,
	})
}

// requestIsSecure reports whether r arrived over HTTPS. The
// forwarded scheme is only believed from a trusted proxy.
func requestIsSecure(r *http.Request, trustedProxies []netip.Prefix) bool {
	if r.TLS != nil {
		return true
	}
	if !peerTrusted(r, trustedProxies) {
		return false
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
