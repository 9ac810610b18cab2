package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/evehealth/eve-auth-service/internal/credential"
	"github.com/evehealth/eve-auth-service/internal/domain"
	"github.com/evehealth/eve-auth-service/internal/provider"
	"github.com/evehealth/eve-auth-service/internal/security"
	"github.com/evehealth/eve-auth-service/internal/service"
)

type stubIdentityProvider struct {
	signIn     func(ctx context.Context, email, password string) (*domain.Session, error)
	getSession func(ctx context.Context) (*domain.Session, error)

	getCalls     int
	signOutCalls int
}

func (p *stubIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	if p.signIn == nil {
		return nil, provider.ErrInvalidCredentials
	}
	return p.signIn(ctx, email, password)
}

func (p *stubIdentityProvider) GetSession(ctx context.Context) (*domain.Session, error) {
	p.getCalls++
	if p.getSession == nil {
		return nil, nil
	}
	return p.getSession(ctx)
}

func (p *stubIdentityProvider) RefreshSession(context.Context) (*domain.Session, error) {
	return nil, nil
}

func (p *stubIdentityProvider) SignOut(context.Context) error {
	p.signOutCalls++
	return nil
}

func (p *stubIdentityProvider) OnAuthStateChange(provider.AuthStateHandler) func() {
	return func() {}
}

type stubAccessVerifier struct {
	verify func(ctx context.Context, userID string) (*domain.AdminUser, error)
}

func (v *stubAccessVerifier) VerifyAdminAccess(ctx context.Context, userID string) (*domain.AdminUser, error) {
	return v.verify(ctx, userID)
}

// memoryStoreFactory hands out one memory store per client scope, mirroring
// the per-browser Redis scoping in production.
type memoryStoreFactory struct {
	mu     sync.Mutex
	stores map[string]*credential.MemoryStore
}

func newMemoryStoreFactory() *memoryStoreFactory {
	return &memoryStoreFactory{stores: map[string]*credential.MemoryStore{}}
}

func (f *memoryStoreFactory) Store(scope string) credential.Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.stores[scope]; ok {
		return s
	}
	s := credential.NewMemoryStore(24*time.Hour, nil)
	f.stores[scope] = s
	return s
}

func adminVerifier() *stubAccessVerifier {
	return &stubAccessVerifier{verify: func(_ context.Context, userID string) (*domain.AdminUser, error) {
		return &domain.AdminUser{ID: userID, Role: domain.RoleAdmin, IsActive: true}, nil
	}}
}

func handlerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthHandlerForTest(prov *stubIdentityProvider, verifier service.AccessVerifier) *AuthHandler {
	factory := newMemoryStoreFactory()
	cookies := security.NewCookieManager("", false, "lax")
	return NewAuthHandler(prov, verifier, factory.Store, cookies, 24*time.Hour, handlerLogger())
}

func providerSession(userID string) *domain.Session {
	return &domain.Session{
		AccessToken:  "tok-" + userID,
		RefreshToken: "ref-" + userID,
		User:         domain.User{ID: userID, Email: userID + "@evehealth.example"},
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}
}

func doLogin(t *testing.T, h *AuthHandler, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	h.Login(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return envelope.Data
}

// responseCookie returns the last Set-Cookie entry for name, which is the
// one the browser keeps when a handler writes then clears a cookie.
func responseCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

func addCredentialCookies(t *testing.T, req *http.Request, userID string, expiresAt time.Time) {
	t.Helper()
	raw, err := json.Marshal(domain.User{ID: userID, Email: userID + "@evehealth.example"})
	if err != nil {
		t.Fatalf("marshal user: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: security.CookieAccessToken, Value: "tok-" + userID})
	req.AddCookie(&http.Cookie{Name: security.CookieUser, Value: base64.RawURLEncoding.EncodeToString(raw)})
	req.AddCookie(&http.Cookie{Name: security.CookieExpiresAt, Value: expiresAt.UTC().Format(time.RFC3339)})
}

func TestLoginSuccessSetsCredentialCookies(t *testing.T) {
	prov := &stubIdentityProvider{signIn: func(_ context.Context, email, password string) (*domain.Session, error) {
		if email != "eve@evehealth.example" || password != "s3cret" {
			return nil, provider.ErrInvalidCredentials
		}
		return providerSession("u-1"), nil
	}}
	h := newAuthHandlerForTest(prov, adminVerifier())

	rr := doLogin(t, h, map[string]string{"email": "eve@evehealth.example", "password": "s3cret"})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	data := decodeData(t, rr)
	if data["redirect_to"] != "/dashboard" {
		t.Fatalf("expected default redirect, got %v", data["redirect_to"])
	}
	for _, name := range []string{security.CookieAccessToken, security.CookieUser, security.CookieExpiresAt, ClientIDCookie} {
		c := responseCookie(rr, name)
		if c == nil || c.Value == "" {
			t.Fatalf("expected cookie %s to be set", name)
		}
	}
	token := responseCookie(rr, security.CookieAccessToken)
	if !token.HttpOnly {
		t.Fatal("access token cookie must be HttpOnly")
	}
	if user := responseCookie(rr, security.CookieUser); user.HttpOnly {
		t.Fatal("user cookie must be readable by client code")
	}
}

func TestLoginHonorsRedirectTarget(t *testing.T) {
	prov := &stubIdentityProvider{signIn: func(context.Context, string, string) (*domain.Session, error) {
		return providerSession("u-2"), nil
	}}
	h := newAuthHandlerForTest(prov, adminVerifier())

	rr := doLogin(t, h, map[string]string{
		"email":       "eve@evehealth.example",
		"password":    "s3cret",
		"redirect_to": "/dashboard/articles?draft=1",
	})
	if data := decodeData(t, rr); data["redirect_to"] != "/dashboard/articles?draft=1" {
		t.Fatalf("expected redirect target honored, got %v", data["redirect_to"])
	}

	rr = doLogin(t, h, map[string]string{
		"email":       "eve@evehealth.example",
		"password":    "s3cret",
		"redirect_to": "//evil.example/phish",
	})
	if data := decodeData(t, rr); data["redirect_to"] != "/dashboard" {
		t.Fatalf("expected off-site target rejected, got %v", data["redirect_to"])
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newAuthHandlerForTest(&stubIdentityProvider{}, adminVerifier())

	rr := doLogin(t, h, map[string]string{"email": "eve@evehealth.example", "password": "wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestLoginRejectsMissingFields(t *testing.T) {
	h := newAuthHandlerForTest(&stubIdentityProvider{}, adminVerifier())

	rr := doLogin(t, h, map[string]string{"email": "", "password": ""})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestLoginDeniedWhenNotOnRoster(t *testing.T) {
	prov := &stubIdentityProvider{signIn: func(context.Context, string, string) (*domain.Session, error) {
		return providerSession("u-3"), nil
	}}
	verifier := &stubAccessVerifier{verify: func(context.Context, string) (*domain.AdminUser, error) {
		return nil, service.ErrAdminNotFound
	}}
	h := newAuthHandlerForTest(prov, verifier)

	rr := doLogin(t, h, map[string]string{"email": "eve@evehealth.example", "password": "s3cret"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Message != "Admin Account not found!" {
		t.Fatalf("unexpected message %q", envelope.Error.Message)
	}
	if prov.signOutCalls != 1 {
		t.Fatalf("expected forced sign-out, got %d", prov.signOutCalls)
	}
	if token := responseCookie(rr, security.CookieAccessToken); token == nil || token.MaxAge >= 0 {
		t.Fatal("expected access token cookie cleared")
	}
}

func TestLogoutClearsCookies(t *testing.T) {
	prov := &stubIdentityProvider{}
	h := newAuthHandlerForTest(prov, adminVerifier())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	addCredentialCookies(t, req, "u-4", time.Now().Add(time.Hour))
	rr := httptest.NewRecorder()
	h.Logout(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if prov.signOutCalls != 1 {
		t.Fatalf("expected provider sign-out, got %d", prov.signOutCalls)
	}
	for _, name := range []string{security.CookieAccessToken, security.CookieUser, security.CookieExpiresAt} {
		c := responseCookie(rr, name)
		if c == nil || c.MaxAge >= 0 {
			t.Fatalf("expected cookie %s cleared", name)
		}
	}
}

func TestSessionEndpointWithValidCookiesSkipsProvider(t *testing.T) {
	prov := &stubIdentityProvider{}
	h := newAuthHandlerForTest(prov, adminVerifier())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	addCredentialCookies(t, req, "u-5", time.Now().Add(time.Hour))
	rr := httptest.NewRecorder()
	h.Session(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	data := decodeData(t, rr)
	if data["authenticated"] != true || data["is_admin"] != true {
		t.Fatalf("expected authenticated admin state, got %v", data)
	}
	if prov.getCalls != 0 {
		t.Fatalf("cookie fast path must not call the provider, got %d", prov.getCalls)
	}
}

func TestSessionEndpointUnauthenticated(t *testing.T) {
	h := newAuthHandlerForTest(&stubIdentityProvider{}, adminVerifier())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	rr := httptest.NewRecorder()
	h.Session(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("session endpoint must not fail for anonymous callers, got %d", rr.Code)
	}
	if data := decodeData(t, rr); data["authenticated"] != false {
		t.Fatalf("expected authenticated=false, got %v", data)
	}
}

func TestMeRequiresValidCookies(t *testing.T) {
	h := newAuthHandlerForTest(&stubIdentityProvider{}, adminVerifier())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	rr := httptest.NewRecorder()
	h.Me(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookies, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	addCredentialCookies(t, req, "u-6", time.Now().Add(time.Hour))
	rr = httptest.NewRecorder()
	h.Me(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with cookies, got %d", rr.Code)
	}
	data := decodeData(t, rr)
	user, ok := data["user"].(map[string]any)
	if !ok || user["id"] != "u-6" {
		t.Fatalf("unexpected user payload %v", data["user"])
	}
}

func TestMeDeactivatedAccount(t *testing.T) {
	verifier := &stubAccessVerifier{verify: func(context.Context, string) (*domain.AdminUser, error) {
		return nil, service.ErrAccountDeactivated
	}}
	h := newAuthHandlerForTest(&stubIdentityProvider{}, verifier)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	addCredentialCookies(t, req, "u-7", time.Now().Add(time.Hour))
	rr := httptest.NewRecorder()
	h.Me(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
