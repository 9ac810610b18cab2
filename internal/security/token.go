package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoExpiryClaim = errors.New("token has no exp claim")

// TokenSubject reads the sub claim without verifying the signature. Used
// only for rate-limit keying and bypass matching, never for authorization.
func TokenSubject(raw string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return "", err
	}
	return claims.GetSubject()
}

// TokenExpiry reads the exp claim of a provider-issued access token without
// verifying the signature. The provider already authenticated the token; the
// claim is only used to detect when the locally cached credential would
// outlive the real session.
func TokenExpiry(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiryClaim
	}
	return exp.Time, nil
}
