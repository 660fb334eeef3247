// Package auth implements the process-lifetime JWT issuance and
// verification used by the HTTP and WebSocket transports when an
// auth_user is configured (spec §4.6).
package auth

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

// Claims is the JWT body: subject is the configured username, nothing
// else is carried since the server has exactly one user.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens with a key generated once at process
// start; restarting the server invalidates every outstanding token.
type Issuer struct {
	secret []byte
}

// NewIssuer generates a fresh HMAC key.
func NewIssuer() (*Issuer, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating jwt signing key: %w", err)
	}
	return &Issuer{secret: secret}, nil
}

// Issue mints a token whose subject is username, valid for tokenTTL.
func (i *Issuer) Issue(username string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses tokenString and returns nil if it is validly signed,
// unexpired, and its subject matches wantUser; otherwise it returns an error.
func (i *Issuer) Verify(tokenString, wantUser string) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return fmt.Errorf("invalid token claims")
	}
	if claims.Subject != wantUser {
		return fmt.Errorf("token subject mismatch")
	}
	return nil
}
