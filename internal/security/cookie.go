package security

import (
	"net/http"
	"strings"
	"time"
)

const (
	CookieAccessToken = "eve_access_token"
	CookieUser        = "eve_user"
	CookieExpiresAt   = "eve_expires_at"
)

type CookieManager struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func NewCookieManager(domain string, secure bool, sameSite string) *CookieManager {
	ss := http.SameSiteLaxMode
	switch strings.ToLower(sameSite) {
	case "none":
		ss = http.SameSiteNoneMode
	case "strict":
		ss = http.SameSiteStrictMode
	}
	return &CookieManager{Domain: domain, Secure: secure, SameSite: ss}
}

// SetCredentialCookies writes the credential triple so the request-time
// gatekeeper can read it without a network round trip. The user cookie is
// readable by client code and therefore not HttpOnly.
func (c *CookieManager) SetCredentialCookies(w http.ResponseWriter, token, encodedUser string, expiresAt time.Time, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	http.SetCookie(w, &http.Cookie{Name: CookieAccessToken, Value: token, Path: "/", HttpOnly: true, Secure: c.Secure, SameSite: c.SameSite, Domain: c.Domain, MaxAge: maxAge})
	http.SetCookie(w, &http.Cookie{Name: CookieUser, Value: encodedUser, Path: "/", HttpOnly: false, Secure: c.Secure, SameSite: c.SameSite, Domain: c.Domain, MaxAge: maxAge})
	http.SetCookie(w, &http.Cookie{Name: CookieExpiresAt, Value: expiresAt.UTC().Format(time.RFC3339), Path: "/", HttpOnly: false, Secure: c.Secure, SameSite: c.SameSite, Domain: c.Domain, MaxAge: maxAge})
}

func (c *CookieManager) ClearCredentialCookies(w http.ResponseWriter) {
	clear := func(name string, httpOnly bool) {
		http.SetCookie(w, &http.Cookie{Name: name, Path: "/", Value: "", MaxAge: -1, HttpOnly: httpOnly, Secure: c.Secure, SameSite: c.SameSite, Domain: c.Domain})
	}
	clear(CookieAccessToken, true)
	clear(CookieUser, false)
	clear(CookieExpiresAt, false)
}

func GetCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
