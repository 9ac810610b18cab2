package domain

import "time"

// User is the identity record issued by the auth provider.
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is the provider-issued proof of authentication. It is never
// persisted to the database; the credential store keeps a mirror of it.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	User         User      `json:"user"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the session may still be treated as authenticated.
// An expired session must never be adopted, wherever it was cached.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.AccessToken == "" || s.User.ID == "" {
		return false
	}
	return now.Before(s.ExpiresAt)
}
