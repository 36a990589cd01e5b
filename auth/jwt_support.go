package auth

import (
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// tokenLifetime reads the exp claim of a JWT without verifying its
// signature. Opaque tokens yield zero.
func tokenLifetime(token string, now time.Time) time.Duration {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if strings.Count(token, ".") != 2 {
		return 0
	}
	claims := gojwt.MapClaims{}
	if _, _, err := gojwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	lifetime := exp.Time.Sub(now)
	if lifetime <= 0 {
		// expired tokens must still report a lifetime so the lease is replaced
		return time.Nanosecond
	}
	return lifetime
}
