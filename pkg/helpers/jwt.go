package helpers

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenCookie is the cookie a JWT-issuing backend stores the access
// token in.
const AccessTokenCookie = "access_token"

// Claims mirrors what the backend puts in its access tokens.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// TokenExpiry reads the exp claim of tokenStr without verifying the
// signature; the client never holds the signing secret and only uses the
// value to schedule a local logout. ok is false when the token is not a
// JWT or carries no exp.
func TokenExpiry(tokenStr string) (exp time.Time, ok bool) {
	if tokenStr == "" {
		return time.Time{}, false
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
