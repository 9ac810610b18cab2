package di

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/evehealth/eve-auth-service/internal/app"
	"github.com/evehealth/eve-auth-service/internal/config"
	"github.com/evehealth/eve-auth-service/internal/credential"
	"github.com/evehealth/eve-auth-service/internal/database"
	"github.com/evehealth/eve-auth-service/internal/http/handler"
	"github.com/evehealth/eve-auth-service/internal/http/middleware"
	"github.com/evehealth/eve-auth-service/internal/http/router"
	"github.com/evehealth/eve-auth-service/internal/observability"
	"github.com/evehealth/eve-auth-service/internal/provider"
	"github.com/evehealth/eve-auth-service/internal/repository"
	"github.com/evehealth/eve-auth-service/internal/security"
	"github.com/evehealth/eve-auth-service/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(provideLogger, provideObservabilityRuntime)

var RuntimeInfraSet = wire.NewSet(provideOpenDB, provideRedisClient)

var RepositorySet = wire.NewSet(repository.NewAdminUserRepository)

var SecuritySet = wire.NewSet(provideCookieManager)

var ServiceSet = wire.NewSet(
	provideIdentityProvider,
	service.NewAccessVerifier,
	provideDurableStoreFactory,
)

var HTTPSet = wire.NewSet(
	provideAuthHandler,
	provideAdminUserHandler,
	provideGatekeeper,
	provideRouterDependencies,
	router.New,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

func provideLogger(cfg *config.Config) *slog.Logger {
	return observability.NewLogger(cfg)
}

func provideObservabilityRuntime(cfg *config.Config, logger *slog.Logger) (*observability.Runtime, error) {
	return observability.InitRuntime(context.Background(), cfg, logger)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

// provideRedisClient returns nil when no Redis is configured; the
// credential store and rate limiter fall back to in-process substrates.
func provideRedisClient(cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	observability.InstrumentRedis(client)
	logger.Info("redis configured", "addr", opts.Addr)
	return client, nil
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)
}

func provideIdentityProvider(cfg *config.Config, logger *slog.Logger) provider.IdentityProvider {
	return provider.NewGoTrueClient(cfg.AuthProviderURL, cfg.AuthProviderKey, cfg.AuthProviderTimeout, logger)
}

func provideDurableStoreFactory(client *redis.Client, cfg *config.Config) handler.DurableStoreFactory {
	if client != nil {
		return func(scope string) credential.Store {
			return credential.NewRedisStore(client, "credential", scope, cfg.CredentialTTL, nil)
		}
	}

	var mu sync.Mutex
	stores := map[string]*credential.MemoryStore{}
	return func(scope string) credential.Store {
		mu.Lock()
		defer mu.Unlock()
		if s, ok := stores[scope]; ok {
			return s
		}
		s := credential.NewMemoryStore(cfg.CredentialTTL, nil)
		stores[scope] = s
		return s
	}
}

func provideAuthHandler(p provider.IdentityProvider, verifier service.AccessVerifier, durable handler.DurableStoreFactory, cookies *security.CookieManager, cfg *config.Config, logger *slog.Logger) *handler.AuthHandler {
	return handler.NewAuthHandler(p, verifier, durable, cookies, cfg.CredentialTTL, logger)
}

func provideAdminUserHandler(repo repository.AdminUserRepository, verifier service.AccessVerifier, logger *slog.Logger) *handler.AdminUserHandler {
	return handler.NewAdminUserHandler(repo, verifier, logger)
}

func provideGatekeeper(p provider.IdentityProvider, logger *slog.Logger) *middleware.Gatekeeper {
	return middleware.NewGatekeeper(p, logger)
}

func provideRouterDependencies(
	logger *slog.Logger,
	auth *handler.AuthHandler,
	adminUsers *handler.AdminUserHandler,
	gatekeeper *middleware.Gatekeeper,
	client *redis.Client,
	cfg *config.Config,
) router.Dependencies {
	var limiter middleware.Limiter
	if client != nil {
		limiter = middleware.NewRedisFixedWindowLimiter(client, "rl")
	} else {
		limiter = middleware.NewLocalFixedWindowLimiter()
	}
	return router.Dependencies{
		Logger:            logger,
		Auth:              auth,
		AdminUsers:        adminUsers,
		Gatekeeper:        gatekeeper,
		Limiter:           limiter,
		LoginRateLimitRPM: cfg.LoginRateLimitPerMin,
		APIRateLimitRPM:   cfg.APIRateLimitPerMin,
		FailureMode:       middleware.FailureMode(cfg.RateLimitFailureMode),
		Bypass:            middleware.NewRequestBypassEvaluator(middleware.RequestBypassConfig{EnableInternalProbeBypass: true}),
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// MigrationRunner applies schema migrations and exits, for the migrate
// subcommand.
type MigrationRunner struct {
	db *gorm.DB
}

func NewMigrationRunner(db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

func (m *MigrationRunner) Run() error {
	return database.Migrate(m.db)
}
