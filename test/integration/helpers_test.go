package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/evehealth/eve-auth-service/internal/credential"
	"github.com/evehealth/eve-auth-service/internal/database"
	"github.com/evehealth/eve-auth-service/internal/domain"
	"github.com/evehealth/eve-auth-service/internal/http/handler"
	"github.com/evehealth/eve-auth-service/internal/http/middleware"
	"github.com/evehealth/eve-auth-service/internal/http/router"
	"github.com/evehealth/eve-auth-service/internal/provider"
	"github.com/evehealth/eve-auth-service/internal/repository"
	"github.com/evehealth/eve-auth-service/internal/security"
	"github.com/evehealth/eve-auth-service/internal/service"
)

// identityFixture is one account the stub auth provider accepts.
type identityFixture struct {
	ID       string
	Email    string
	Password string
}

// newIdentityProviderStub serves just enough of the GoTrue API for the
// client: password grant, token refresh, user introspection and logout.
func newIdentityProviderStub(t *testing.T, identities []identityFixture) *httptest.Server {
	t.Helper()

	var mu sync.Mutex
	issued := map[string]identityFixture{}
	nextToken := 0

	issue := func(id identityFixture) (string, string) {
		mu.Lock()
		defer mu.Unlock()
		nextToken++
		access := fmt.Sprintf("access-%d", nextToken)
		refresh := fmt.Sprintf("refresh-%d", nextToken)
		issued[access] = id
		issued[refresh] = id
		return access, refresh
	}

	writeToken := func(w http.ResponseWriter, id identityFixture) {
		access, refresh := issue(id)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  access,
			"refresh_token": refresh,
			"expires_in":    3600,
			"user":          map[string]any{"id": id.ID, "email": id.Email},
		})
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/token" && r.URL.Query().Get("grant_type") == "password":
			var body struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			for _, id := range identities {
				if id.Email == body.Email && id.Password == body.Password {
					writeToken(w, id)
					return
				}
			}
			w.WriteHeader(http.StatusBadRequest)

		case r.Method == http.MethodPost && r.URL.Path == "/token" && r.URL.Query().Get("grant_type") == "refresh_token":
			var body struct {
				RefreshToken string `json:"refresh_token"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			mu.Lock()
			id, ok := issued[body.RefreshToken]
			mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeToken(w, id)

		case r.Method == http.MethodGet && r.URL.Path == "/user":
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			mu.Lock()
			_, ok := issued[token]
			mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))

		case r.Method == http.MethodPost && r.URL.Path == "/logout":
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type memoryStoreFactory struct {
	mu     sync.Mutex
	stores map[string]*credential.MemoryStore
}

func (f *memoryStoreFactory) Store(scope string) credential.Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stores == nil {
		f.stores = map[string]*credential.MemoryStore{}
	}
	if s, ok := f.stores[scope]; ok {
		return s
	}
	s := credential.NewMemoryStore(time.Hour, nil)
	f.stores[scope] = s
	return s
}

// newAuthTestServer wires the full service against a stub auth provider and
// an in-memory roster: one active admin, one deactivated writer, and one
// identity the provider knows but the roster does not.
func newAuthTestServer(t *testing.T, mutate ...func(*router.Dependencies)) (string, *http.Client, func()) {
	t.Helper()

	identities := []identityFixture{
		{ID: "u-admin", Email: "admin@evehealth.example", Password: "admin-pass"},
		{ID: "u-dormant", Email: "dormant@evehealth.example", Password: "dormant-pass"},
		{ID: "u-stranger", Email: "stranger@evehealth.example", Password: "stranger-pass"},
	}
	stub := newIdentityProviderStub(t, identities)

	db := newIntegrationDB(t)
	for _, row := range []domain.AdminUser{
		{ID: "u-admin", Name: "Admin", Email: "admin@evehealth.example", Role: domain.RoleAdmin, IsActive: true},
		{ID: "u-dormant", Name: "Dormant", Email: "dormant@evehealth.example", Role: domain.RoleWriter, IsActive: false},
	} {
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed roster: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gotrue := provider.NewGoTrueClient(stub.URL, "anon-key", 5*time.Second, logger)
	repo := repository.NewAdminUserRepository(db)
	verifier := service.NewAccessVerifier(repo, logger)
	cookies := security.NewCookieManager("", false, "lax")
	factory := &memoryStoreFactory{}

	dep := router.Dependencies{
		Logger:            logger,
		Auth:              handler.NewAuthHandler(gotrue, verifier, factory.Store, cookies, time.Hour, logger),
		AdminUsers:        handler.NewAdminUserHandler(repo, verifier, logger),
		Gatekeeper:        middleware.NewGatekeeper(gotrue, logger),
		Limiter:           middleware.NewLocalFixedWindowLimiter(),
		LoginRateLimitRPM: 100,
		APIRateLimitRPM:   1000,
		FailureMode:       middleware.FailOpen,
	}
	for _, fn := range mutate {
		fn(&dep)
	}

	srv := httptest.NewServer(router.New(dep))

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return srv.URL, client, func() {
		srv.Close()
		stub.Close()
	}
}

type apiEnvelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, apiEnvelope) {
	t.Helper()
	resp, raw := doRawText(t, client, method, url, body, headers, nil)
	var env apiEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("decode envelope: %v body=%q", err, raw)
	}
	return resp, env
}

func doRawText(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string, _ any) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			reader = strings.NewReader(s)
		} else {
			payload, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			reader = strings.NewReader(string(payload))
		}
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(raw)
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) apiEnvelope {
	t.Helper()
	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (%+v)", email, resp.StatusCode, env.Error)
	}
	return env
}
