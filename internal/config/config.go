package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string
	RedisURL    string

	AuthProviderURL     string
	AuthProviderKey     string
	AuthProviderTimeout time.Duration

	CredentialTTL  time.Duration
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite string

	LoginRateLimitPerMin int
	APIRateLimitPerMin   int
	RateLimitFailureMode string

	LogLevel string

	OTELLogsEnabled          bool
	OTELMetricsEnabled       bool
	OTELTracingEnabled       bool
	OTELExporterOTLPEndpoint string
	OTELExporterOTLPInsecure bool
	OTELServiceName          string
	OTELEnvironment          string
	OTELTraceSamplingRatio   float64
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPPort:                 getEnv("HTTP_PORT", "8080"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisURL:                 os.Getenv("REDIS_URL"),
		AuthProviderURL:          os.Getenv("AUTH_PROVIDER_URL"),
		AuthProviderKey:          os.Getenv("AUTH_PROVIDER_KEY"),
		CookieDomain:             os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:             getEnvBool("COOKIE_SECURE", true),
		CookieSameSite:           strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
		LoginRateLimitPerMin:     getEnvInt("LOGIN_RATE_LIMIT_PER_MIN", 30),
		APIRateLimitPerMin:       getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		RateLimitFailureMode:     strings.ToLower(getEnv("RATE_LIMIT_FAILURE_MODE", "fail_closed")),
		LogLevel:                 strings.ToLower(getEnv("LOG_LEVEL", "info")),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", false),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", false),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "eve-auth-service"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", "development"),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
	}

	providerTimeout, err := time.ParseDuration(getEnv("AUTH_PROVIDER_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("parse AUTH_PROVIDER_TIMEOUT: %w", err)
	}
	cfg.AuthProviderTimeout = providerTimeout

	credentialTTL, err := time.ParseDuration(getEnv("CREDENTIAL_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("parse CREDENTIAL_TTL: %w", err)
	}
	cfg.CredentialTTL = credentialTTL

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.AuthProviderURL == "" {
		errs = append(errs, "AUTH_PROVIDER_URL is required")
	}
	if c.AuthProviderKey == "" {
		errs = append(errs, "AUTH_PROVIDER_KEY is required")
	}
	if c.AuthProviderTimeout < time.Second || c.AuthProviderTimeout > time.Minute {
		errs = append(errs, "AUTH_PROVIDER_TIMEOUT must be between 1s and 1m")
	}
	if c.CredentialTTL <= 0 || c.CredentialTTL > (30*24*time.Hour) {
		errs = append(errs, "CREDENTIAL_TTL must be between 1s and 30d")
	}
	if c.LoginRateLimitPerMin <= 0 {
		errs = append(errs, "LOGIN_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.RateLimitFailureMode != "fail_open" && c.RateLimitFailureMode != "fail_closed" {
		errs = append(errs, "RATE_LIMIT_FAILURE_MODE must be fail_open or fail_closed")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
