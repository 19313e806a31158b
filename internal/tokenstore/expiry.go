package tokenstore

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt reads the exp claim of a JWT without verifying its signature.
// The client never holds the signing key; the remote API remains the
// authority on validity. ok is false for opaque tokens and tokens without exp.
func ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether token carries an exp claim at or before now.
func Expired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	return ok && !exp.After(now)
}

// TTL returns how long token should be retained: until its exp claim when
// that is in the future, otherwise fallback.
func TTL(token string, fallback time.Duration, now time.Time) time.Duration {
	exp, ok := ExpiresAt(token)
	if !ok {
		return fallback
	}
	if d := exp.Sub(now); d > 0 {
		return d
	}
	return fallback
}
