package signalk

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CheckToken inspects a bearer token without verifying its signature and
// returns its expiry. The server is the authority; this only catches tokens
// that are certain to be rejected. A token without "exp" returns a zero time.
func CheckToken(token string, now time.Time) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	if exp.Before(now) {
		return exp.Time, fmt.Errorf("%w: at %s", ErrTokenExpired, exp.Format(time.RFC3339))
	}
	return exp.Time, nil
}
