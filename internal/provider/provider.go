package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/evehealth/eve-auth-service/internal/domain"
)

type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthStateHandler receives provider-pushed auth state changes. The session
// is nil for sign-out events.
type AuthStateHandler func(event AuthEvent, session *domain.Session)

// IdentityProvider is the external auth service boundary. GetSession and
// RefreshSession return (nil, nil) when the provider has no live session;
// errors are reserved for transport and provider failures.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	GetSession(ctx context.Context) (*domain.Session, error)
	RefreshSession(ctx context.Context) (*domain.Session, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn AuthStateHandler) (unsubscribe func())
}

var ErrInvalidCredentials = errors.New("invalid login credentials")

// Error is a non-credential provider failure (network, 5xx, malformed body).
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("auth provider: %s", e.Message)
	}
	return fmt.Sprintf("auth provider: %s (status %d)", e.Message, e.Status)
}
