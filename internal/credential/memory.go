package credential

import (
	"context"
	"sync"
	"time"

	"github.com/evehealth/eve-auth-service/internal/domain"
)

// MemoryStore is the in-process substrate, used when no Redis is configured
// and as the durable half in tests.
type MemoryStore struct {
	mu        sync.Mutex
	token     string
	user      string
	expiresAt string
	ttl       time.Duration
	now       func() time.Time
}

func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{ttl: ttl, now: now}
}

func (s *MemoryStore) Store(_ context.Context, token string, user domain.User) error {
	encoded, err := encodeUser(user)
	if err != nil {
		return err
	}
	expiry := s.now().Add(s.ttl).Format(time.RFC3339)

	s.mu.Lock()
	s.token = token
	s.user = encoded
	s.expiresAt = expiry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) (LoadResult, error) {
	s.mu.Lock()
	token, encoded, expiresAt := s.token, s.user, s.expiresAt
	s.mu.Unlock()

	if token == "" || encoded == "" || expiresAt == "" {
		return LoadResult{}, nil
	}
	expiry, ok := parseExpiry(expiresAt)
	if !ok {
		return LoadResult{}, nil
	}
	if !s.now().Before(expiry) {
		_ = s.Clear(ctx)
		return LoadResult{}, nil
	}
	user, ok := decodeUser(encoded)
	if !ok {
		return LoadResult{}, nil
	}
	return LoadResult{Token: token, User: user, IsValid: true}, nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.token, s.user, s.expiresAt = "", "", ""
	s.mu.Unlock()
	return nil
}
