// Package credential caches the active session's minimal proof (token,
// identity, absolute expiry) across storage substrates so that both client
// code and the request-time gatekeeper can answer "is someone signed in"
// without asking the auth provider.
package credential

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/evehealth/eve-auth-service/internal/domain"
)

// LoadResult is tri-state: either all fields are present and fresh and
// IsValid is true, or IsValid is false and the other fields are zero.
type LoadResult struct {
	Token   string
	User    domain.User
	IsValid bool
}

// Store is one substrate holding the credential triple. Implementations
// return their I/O errors instead of swallowing them; callers log and carry
// on, so store and clear stay best-effort for production paths while
// failures remain visible to tests.
type Store interface {
	// Store overwrites any prior entry with the triple, stamping expiry at
	// now + TTL.
	Store(ctx context.Context, token string, user domain.User) error
	// Load returns the triple if complete and unexpired. A load that finds
	// an expired entry clears the substrate before reporting invalid.
	Load(ctx context.Context) (LoadResult, error)
	// Clear removes all three entries. Clearing an empty store is a no-op.
	Clear(ctx context.Context) error
}

func encodeUser(user domain.User) (string, error) {
	raw, err := json.Marshal(user)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeUser(encoded string) (domain.User, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return domain.User{}, false
	}
	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return domain.User{}, false
	}
	if user.ID == "" {
		return domain.User{}, false
	}
	return user, true
}

func parseExpiry(value string) (time.Time, bool) {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
