package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/evehealth/eve-auth-service/internal/http/handler"
	"github.com/evehealth/eve-auth-service/internal/http/middleware"
	"github.com/evehealth/eve-auth-service/internal/http/response"
)

// Dependencies is everything the router needs, assembled by the DI layer.
type Dependencies struct {
	Logger            *slog.Logger
	Auth              *handler.AuthHandler
	AdminUsers        *handler.AdminUserHandler
	Gatekeeper        *middleware.Gatekeeper
	Limiter           middleware.Limiter
	LoginRateLimitRPM int
	APIRateLimitRPM   int
	FailureMode       middleware.FailureMode
	Bypass            middleware.BypassEvaluator
}

func New(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if dep.Logger != nil {
		r.Use(requestLogging(dep.Logger))
	}
	r.Use(chimiddleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	limiterBackend := dep.Limiter
	if limiterBackend == nil {
		limiterBackend = middleware.NewLocalFixedWindowLimiter()
	}
	loginLimiter := middleware.NewDistributedRateLimiter(
		limiterBackend, dep.LoginRateLimitRPM, time.Minute, dep.FailureMode, "auth").WithBypass(dep.Bypass)
	apiLimiter := middleware.NewDistributedRateLimiterWithKey(
		limiterBackend, dep.APIRateLimitRPM, time.Minute, dep.FailureMode, "api", middleware.SubjectOrIPKeyFunc()).WithBypass(dep.Bypass)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(auth chi.Router) {
			auth.Use(loginLimiter.Middleware())
			auth.Post("/auth/login", dep.Auth.Login)
		})
		api.Group(func(g chi.Router) {
			g.Use(apiLimiter.Middleware())
			g.Post("/auth/logout", dep.Auth.Logout)
			g.Get("/auth/session", dep.Auth.Session)

			g.Group(func(p chi.Router) {
				if dep.Gatekeeper != nil {
					p.Use(dep.Gatekeeper.Middleware())
				}
				p.Get("/users/me", dep.Auth.Me)
				p.Route("/admin/users", func(a chi.Router) {
					a.Get("/", dep.AdminUsers.List)
					a.Get("/{id}", dep.AdminUsers.Get)
					a.Post("/{id}/activate", dep.AdminUsers.Activate)
					a.Post("/{id}/deactivate", dep.AdminUsers.Deactivate)
				})
			})
		})
	})

	// The login and dashboard views live in the web frontend; these stubs
	// give the gatekeeper real routes to guard when the service runs alone.
	r.Group(func(ui chi.Router) {
		if dep.Gatekeeper != nil {
			ui.Use(dep.Gatekeeper.Middleware())
		}
		ui.Get("/login", func(w http.ResponseWriter, r *http.Request) {
			response.JSON(w, r, http.StatusOK, map[string]string{"view": "login"})
		})
		ui.Get("/dashboard", func(w http.ResponseWriter, r *http.Request) {
			response.JSON(w, r, http.StatusOK, map[string]string{"view": "dashboard"})
		})
		ui.Get("/dashboard/*", func(w http.ResponseWriter, r *http.Request) {
			response.JSON(w, r, http.StatusOK, map[string]string{"view": "dashboard"})
		})
	})

	return r
}

func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
