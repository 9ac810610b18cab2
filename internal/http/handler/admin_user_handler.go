package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/evehealth/eve-auth-service/internal/credential"
	"github.com/evehealth/eve-auth-service/internal/domain"
	"github.com/evehealth/eve-auth-service/internal/http/response"
	"github.com/evehealth/eve-auth-service/internal/repository"
	"github.com/evehealth/eve-auth-service/internal/service"
)

// AdminUserHandler manages the admin roster the access verifier reads.
// Every endpoint requires a caller whose own roster role is admin.
type AdminUserHandler struct {
	repo     repository.AdminUserRepository
	verifier service.AccessVerifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewAdminUserHandler(repo repository.AdminUserRepository, verifier service.AccessVerifier, logger *slog.Logger) *AdminUserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminUserHandler{
		repo:     repo,
		verifier: verifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides time for tests.
func (h *AdminUserHandler) WithClock(now func() time.Time) *AdminUserHandler {
	h.now = now
	return h
}

func (h *AdminUserHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	query := repository.RosterQuery{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "page_size"),
	}
	result, err := h.repo.List(r.Context(), query)
	if err != nil {
		h.logger.Error("admin user list failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list admin users", nil)
		return
	}

	response.JSON(w, r, http.StatusOK, map[string]any{
		"items":       result.Items,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total":       result.Total,
		"total_pages": result.TotalPages,
	})
}

func (h *AdminUserHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	user, err := h.repo.FindByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, repository.ErrAdminUserNotFound) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "admin user not found", nil)
		return
	}
	if err != nil {
		h.logger.Error("admin user lookup failed", "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load admin user", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *AdminUserHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *AdminUserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *AdminUserHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	if !h.requireAdmin(w, r) {
		return
	}

	id := chi.URLParam(r, "id")
	err := h.repo.SetActive(r.Context(), id, active)
	if errors.Is(err, repository.ErrAdminUserNotFound) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "admin user not found", nil)
		return
	}
	if err != nil {
		h.logger.Error("admin user state change failed", "id", id, "active", active, "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to update admin user", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"id":        id,
		"is_active": active,
	})
}

// requireAdmin authenticates the caller from the credential cookies and
// demands the admin role. It writes the error response itself.
func (h *AdminUserHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	cached := credential.ReadCookies(r, h.now())
	if !cached.IsValid {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "not signed in", nil)
		return false
	}

	admin, err := h.verifier.VerifyAdminAccess(r.Context(), cached.User.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAdminNotFound):
			response.Error(w, r, http.StatusForbidden, "ADMIN_REQUIRED", err.Error(), nil)
		case errors.Is(err, service.ErrAccountDeactivated):
			response.Error(w, r, http.StatusForbidden, "ACCOUNT_DEACTIVATED", err.Error(), nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "verification failed", nil)
		}
		return false
	}
	if admin.Role != domain.RoleAdmin {
		response.Error(w, r, http.StatusForbidden, "ADMIN_REQUIRED", "admin role required", nil)
		return false
	}
	return true
}

func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}
