package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evehealth/eve-auth-service/internal/domain"
	"github.com/evehealth/eve-auth-service/internal/observability"
)

// RedisStore is the durable substrate. Entries are scoped by a client id so
// concurrent browser sessions do not clobber each other.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	scope  string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix, scope string, ttl time.Duration, now func() time.Time) *RedisStore {
	if prefix == "" {
		prefix = "credential"
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &RedisStore{client: client, prefix: prefix, scope: scope, ttl: ttl, now: now}
}

func (s *RedisStore) Store(ctx context.Context, token string, user domain.User) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	encoded, err := encodeUser(user)
	if err != nil {
		return err
	}
	expiry := s.now().Add(s.ttl).Format(time.RFC3339)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key("token"), token, s.ttl)
	pipe.Set(ctx, s.key("user"), encoded, s.ttl)
	pipe.Set(ctx, s.key("expires_at"), expiry, s.ttl)
	_, err = pipe.Exec(ctx)
	observability.RecordCredentialStoreOperation(ctx, "redis", "store", outcome(err))
	return err
}

func (s *RedisStore) Load(ctx context.Context) (LoadResult, error) {
	if s.client == nil {
		return LoadResult{}, fmt.Errorf("redis client is nil")
	}
	values, err := s.client.MGet(ctx, s.key("token"), s.key("user"), s.key("expires_at")).Result()
	observability.RecordCredentialStoreOperation(ctx, "redis", "load", outcome(err))
	if err != nil {
		return LoadResult{}, err
	}
	token, ok1 := values[0].(string)
	encoded, ok2 := values[1].(string)
	expiresAt, ok3 := values[2].(string)
	if !ok1 || !ok2 || !ok3 || token == "" || encoded == "" || expiresAt == "" {
		return LoadResult{}, nil
	}
	expiry, ok := parseExpiry(expiresAt)
	if !ok {
		return LoadResult{}, nil
	}
	if !s.now().Before(expiry) {
		if err := s.Clear(ctx); err != nil {
			return LoadResult{}, err
		}
		return LoadResult{}, nil
	}
	user, ok := decodeUser(encoded)
	if !ok {
		return LoadResult{}, nil
	}
	return LoadResult{Token: token, User: user, IsValid: true}, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	err := s.client.Del(ctx, s.key("token"), s.key("user"), s.key("expires_at")).Err()
	observability.RecordCredentialStoreOperation(ctx, "redis", "clear", outcome(err))
	return err
}

func (s *RedisStore) key(field string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, s.scope, field)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
