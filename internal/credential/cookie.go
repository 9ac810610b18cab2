package credential

import (
	"context"
	"net/http"
	"time"

	"github.com/evehealth/eve-auth-service/internal/domain"
	"github.com/evehealth/eve-auth-service/internal/security"
)

// CookieStore is the cookie substrate, bound to one request/response pair.
// It is what makes the credential readable by the gatekeeper on the next
// navigation without any network round trip.
type CookieStore struct {
	cookies *security.CookieManager
	w       http.ResponseWriter
	r       *http.Request
	ttl     time.Duration
	now     func() time.Time
}

func NewCookieStore(cookies *security.CookieManager, w http.ResponseWriter, r *http.Request, ttl time.Duration, now func() time.Time) *CookieStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CookieStore{cookies: cookies, w: w, r: r, ttl: ttl, now: now}
}

func (s *CookieStore) Store(_ context.Context, token string, user domain.User) error {
	encoded, err := encodeUser(user)
	if err != nil {
		return err
	}
	s.cookies.SetCredentialCookies(s.w, token, encoded, s.now().Add(s.ttl), s.ttl)
	return nil
}

func (s *CookieStore) Load(_ context.Context) (LoadResult, error) {
	result := ReadCookies(s.r, s.now())
	if !result.IsValid {
		expiresAt := security.GetCookie(s.r, security.CookieExpiresAt)
		if expiry, ok := parseExpiry(expiresAt); ok && !s.now().Before(expiry) {
			s.cookies.ClearCredentialCookies(s.w)
		}
	}
	return result, nil
}

func (s *CookieStore) Clear(context.Context) error {
	s.cookies.ClearCredentialCookies(s.w)
	return nil
}

// ReadCookies evaluates the credential triple on a request without needing a
// response writer. The gatekeeper uses it directly since it must stay
// side-effect free.
func ReadCookies(r *http.Request, now time.Time) LoadResult {
	token := security.GetCookie(r, security.CookieAccessToken)
	encoded := security.GetCookie(r, security.CookieUser)
	expiresAt := security.GetCookie(r, security.CookieExpiresAt)
	if token == "" || encoded == "" || expiresAt == "" {
		return LoadResult{}
	}
	expiry, ok := parseExpiry(expiresAt)
	if !ok || !now.Before(expiry) {
		return LoadResult{}
	}
	user, ok := decodeUser(encoded)
	if !ok {
		return LoadResult{}
	}
	return LoadResult{Token: token, User: user, IsValid: true}
}
