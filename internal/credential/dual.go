package credential

import (
	"context"
	"errors"

	"github.com/evehealth/eve-auth-service/internal/domain"
)

// DualStore mirrors every write into two substrates, typically the durable
// store and the cookie channel. Reads prefer the durable side and fall back
// to cookies, so a wiped server cache does not sign the user out as long as
// the cookie triple is still fresh.
type DualStore struct {
	durable Store
	cookies Store
}

func NewDualStore(durable, cookies Store) *DualStore {
	return &DualStore{durable: durable, cookies: cookies}
}

func (s *DualStore) Store(ctx context.Context, token string, user domain.User) error {
	// Both substrates get the write even when one fails; a half-written
	// credential is healed on the next load.
	return errors.Join(
		s.durable.Store(ctx, token, user),
		s.cookies.Store(ctx, token, user),
	)
}

func (s *DualStore) Load(ctx context.Context) (LoadResult, error) {
	result, err := s.durable.Load(ctx)
	if err == nil && result.IsValid {
		return result, nil
	}
	fallback, fbErr := s.cookies.Load(ctx)
	if fbErr == nil && fallback.IsValid {
		return fallback, nil
	}
	return LoadResult{}, errors.Join(err, fbErr)
}

func (s *DualStore) Clear(ctx context.Context) error {
	return errors.Join(
		s.durable.Clear(ctx),
		s.cookies.Clear(ctx),
	)
}
