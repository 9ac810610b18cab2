package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evehealth/eve-auth-service/internal/credential"
	"github.com/evehealth/eve-auth-service/internal/http/response"
	"github.com/evehealth/eve-auth-service/internal/provider"
	"github.com/evehealth/eve-auth-service/internal/security"
	"github.com/evehealth/eve-auth-service/internal/service"
)

// ClientIDCookie scopes the durable credential store per browser, so two
// browsers signed in as the same user do not clobber each other's triple.
const ClientIDCookie = "eve_client_id"

// DurableStoreFactory returns the durable credential substrate for one
// client scope.
type DurableStoreFactory func(scope string) credential.Store

type AuthHandler struct {
	provider provider.IdentityProvider
	verifier service.AccessVerifier
	durable  DurableStoreFactory
	cookies  *security.CookieManager
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthHandler(p provider.IdentityProvider, verifier service.AccessVerifier, durable DurableStoreFactory, cookies *security.CookieManager, ttl time.Duration, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		provider: p,
		verifier: verifier,
		durable:  durable,
		cookies:  cookies,
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides time for tests.
func (h *AuthHandler) WithClock(now func() time.Time) *AuthHandler {
	h.now = now
	return h
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirect_to"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and password are required", nil)
		return
	}

	rec := h.reconciler(w, r)
	state, err := rec.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeSignInError(w, r, err)
		return
	}

	// The cached credential must not claim a longer life than the token it
	// proves. A mismatch is a config smell worth surfacing.
	if state.Session != nil {
		if exp, err := security.TokenExpiry(state.Session.AccessToken); err == nil && h.now().Add(h.ttl).After(exp) {
			h.logger.Warn("credential ttl outlives the access token",
				"credential_ttl", h.ttl.String(),
				"token_expires_at", exp.UTC().Format(time.RFC3339),
			)
		}
	}

	response.JSON(w, r, http.StatusOK, map[string]any{
		"user":        state.User,
		"admin_user":  state.AdminData,
		"redirect_to": sanitizeRedirect(req.RedirectTo),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	rec := h.reconciler(w, r)
	rec.SignOut(r.Context())
	response.JSON(w, r, http.StatusOK, map[string]any{"signed_out": true})
}

// Session reconciles and reports the current auth state. It never fails:
// an unauthenticated caller gets authenticated=false, not an error.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	rec := h.reconciler(w, r)
	rec.RefreshSession(r.Context())
	state := rec.State()

	response.JSON(w, r, http.StatusOK, map[string]any{
		"authenticated": state.User != nil,
		"user":          state.User,
		"is_admin":      state.IsAdmin,
		"admin_user":    state.AdminData,
	})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cached := credential.ReadCookies(r, h.now())
	if !cached.IsValid {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "not signed in", nil)
		return
	}

	admin, err := h.verifier.VerifyAdminAccess(r.Context(), cached.User.ID)
	if err != nil {
		h.writeVerificationError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, map[string]any{
		"user":       cached.User,
		"admin_user": admin,
	})
}

// reconciler assembles a per-request reconciler whose cookie substrate is
// bound to this response, so store and clear reach the browser.
func (h *AuthHandler) reconciler(w http.ResponseWriter, r *http.Request) *service.SessionReconciler {
	scope := h.ensureClientID(w, r)
	cookieStore := credential.NewCookieStore(h.cookies, w, r, h.ttl, h.now)
	store := credential.NewDualStore(h.durable(scope), cookieStore)
	return service.NewSessionReconciler(h.provider, store, h.verifier, nil, h.logger)
}

func (h *AuthHandler) ensureClientID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(ClientIDCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ClientIDCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.cookies.SameSite,
		Domain:   h.cookies.Domain,
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
	})
	return id
}

func (h *AuthHandler) writeSignInError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, provider.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid login credentials", nil)
	case errors.Is(err, service.ErrAdminNotFound), errors.Is(err, service.ErrAccountDeactivated), errors.Is(err, service.ErrVerificationFailed):
		h.writeVerificationError(w, r, err)
	default:
		h.logger.Error("sign-in failed against auth provider", "error", err)
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "auth provider unavailable", nil)
	}
}

func (h *AuthHandler) writeVerificationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrAdminNotFound):
		response.Error(w, r, http.StatusForbidden, "ADMIN_REQUIRED", err.Error(), nil)
	case errors.Is(err, service.ErrAccountDeactivated):
		response.Error(w, r, http.StatusForbidden, "ACCOUNT_DEACTIVATED", err.Error(), nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "verification failed", nil)
	}
}

// sanitizeRedirect keeps the post-login target on this site. Anything that
// is not a local absolute path falls back to the dashboard root.
func sanitizeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return service.DashboardPath
	}
	return target
}
