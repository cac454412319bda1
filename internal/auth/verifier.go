// Package auth verifies bearer credentials issued by the identity service.
// Token issuance lives outside this service; we only consume the capability
// "verify token, return {userId, role}".
package auth

import (
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"sitterlink/realtime/internal/apperr"
)

// ErrTokenExpired marks a credential that parsed correctly but is past its
// expiry. Socket handlers use it to emit auth:expired instead of a plain
// failure ack.
var ErrTokenExpired = errors.New("token expired")

// Marketplace roles carried in the role claim.
const (
	RoleClient    = "client"
	RolePetsitter = "petsitter"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID uint
	Role   string
}

// Verifier validates HS256 JWTs carrying user_id and role claims.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the token string and returns the identity.
// All failures wrap apperr.ErrAuth; expired tokens additionally match
// ErrTokenExpired.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, apperr.Authf("missing token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %w", apperr.ErrAuth, ErrTokenExpired)
		}
		return Identity{}, apperr.Authf("invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, apperr.Authf("invalid claims")
	}

	rawID, ok := claims["user_id"].(float64)
	if !ok || rawID <= 0 {
		return Identity{}, apperr.Authf("token missing user_id")
	}

	role, _ := claims["role"].(string)

	return Identity{UserID: uint(rawID), Role: role}, nil
}

// FromBearer strips the "Bearer " prefix from an Authorization header value
// and verifies the remainder.
func (v *Verifier) FromBearer(header string) (Identity, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return Identity{}, apperr.Authf("authorization header missing bearer token")
	}
	return v.Verify(strings.TrimPrefix(header, prefix))
}
