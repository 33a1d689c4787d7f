// Package auth verifies pre-issued session tokens. It never talks to the
// database and never issues tokens itself — signup/login live entirely
// outside the relay.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized covers every way a token can fail to verify: bad
// signature, expiry, or missing required claims. Callers never need to
// distinguish the cause.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the result of a successful verification.
type Identity struct {
	UserID string
	Email  string
}

// Verifier validates HMAC-SHA256 signed session tokens against a single
// symmetric secret loaded once at startup.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier. The secret must be non-empty; the
// caller (setup/config) is expected to fail startup before ever reaching
// here with an empty secret, but this is checked defensively anyway.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: JWT secret must not be empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

type claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Verify parses and validates tokenString, returning the embedded
// identity on success. Any failure — invalid signature, expiry, or a
// missing userId/email claim — collapses to ErrUnauthorized; the caller
// is never told which.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return Identity{}, ErrUnauthorized
	}
	if c.UserID == "" || c.Email == "" {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: c.UserID, Email: c.Email}, nil
}

// Issue is a test/dev helper for minting tokens signed with the same
// secret the Verifier checks against. Production tokens are minted by
// the (out-of-scope) HTTP CRUD surface.
func (v *Verifier) Issue(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(v.secret)
}
