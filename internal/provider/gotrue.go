package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/evehealth/eve-auth-service/internal/domain"
)

// GoTrueClient talks to a hosted GoTrue-compatible auth API. It keeps the
// most recent session it issued and pushes auth state changes to
// subscribers, mirroring the provider SDK the dashboard consumes.
type GoTrueClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger

	mu          sync.Mutex
	current     *domain.Session
	subscribers map[int]AuthStateHandler
	nextSubID   int
}

func NewGoTrueClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *GoTrueClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoTrueClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		http:        &http.Client{Timeout: timeout},
		logger:      logger,
		subscribers: map[int]AuthStateHandler{},
	}
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         domain.User `json:"user"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	body := map[string]string{"email": email, "password": password}
	var tr tokenResponse
	status, err := c.post(ctx, "/token?grant_type=password", "", body, &tr)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return nil, ErrInvalidCredentials
	}
	if status != http.StatusOK {
		return nil, &Error{Status: status, Message: "sign-in rejected"}
	}

	session := sessionFromToken(tr)
	c.setCurrent(session)
	c.emit(EventSignedIn, session)
	return session, nil
}

func (c *GoTrueClient) GetSession(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current == nil {
		return nil, nil
	}
	if !current.Valid(time.Now().UTC()) {
		return nil, nil
	}

	// Confirm the token is still honored before reporting a live session.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	c.setHeaders(req, current.AccessToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.setCurrent(nil)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Status: resp.StatusCode, Message: "session check failed"}
	}
	return current, nil
}

func (c *GoTrueClient) RefreshSession(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	refreshToken := ""
	if c.current != nil {
		refreshToken = c.current.RefreshToken
	}
	c.mu.Unlock()
	if refreshToken == "" {
		return nil, nil
	}

	body := map[string]string{"refresh_token": refreshToken}
	var tr tokenResponse
	status, err := c.post(ctx, "/token?grant_type=refresh_token", "", body, &tr)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		c.setCurrent(nil)
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, &Error{Status: status, Message: "token refresh rejected"}
	}

	session := sessionFromToken(tr)
	c.setCurrent(session)
	c.emit(EventTokenRefreshed, session)
	return session, nil
}

func (c *GoTrueClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := ""
	if c.current != nil {
		token = c.current.AccessToken
	}
	c.mu.Unlock()

	if token != "" {
		status, err := c.post(ctx, "/logout", token, nil, nil)
		if err != nil {
			c.setCurrent(nil)
			c.emit(EventSignedOut, nil)
			return err
		}
		if status != http.StatusNoContent && status != http.StatusOK {
			c.logger.Warn("provider sign-out returned unexpected status", "status", status)
		}
	}
	c.setCurrent(nil)
	c.emit(EventSignedOut, nil)
	return nil
}

func (c *GoTrueClient) OnAuthStateChange(fn AuthStateHandler) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *GoTrueClient) post(ctx context.Context, path, bearer string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, &Error{Message: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return 0, &Error{Message: err.Error()}
	}
	c.setHeaders(req, bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, &Error{Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
		}
	}
	return resp.StatusCode, nil
}

func (c *GoTrueClient) setHeaders(req *http.Request, bearer string) {
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
}

func (c *GoTrueClient) setCurrent(s *domain.Session) {
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
}

func (c *GoTrueClient) emit(event AuthEvent, session *domain.Session) {
	c.mu.Lock()
	handlers := make([]AuthStateHandler, 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		handlers = append(handlers, fn)
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(event, session)
	}
}

func sessionFromToken(tr tokenResponse) *domain.Session {
	return &domain.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		User:         tr.User,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
}
