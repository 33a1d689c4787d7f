package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_ValidToken(t *testing.T) {
	v, err := NewVerifier("topsecret")
	require.NoError(t, err)

	tok, err := v.Issue("u1", "u1@example.com", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "u1@example.com", id.Email)
}

func TestVerify_ExpiredToken(t *testing.T) {
	v, err := NewVerifier("topsecret")
	require.NoError(t, err)

	tok, err := v.Issue("u1", "u1@example.com", -time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(tok)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerify_WrongSecret(t *testing.T) {
	v1, _ := NewVerifier("secret-a")
	v2, _ := NewVerifier("secret-b")

	tok, err := v1.Issue("u1", "u1@example.com", time.Hour)
	require.NoError(t, err)

	_, err = v2.Verify(tok)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerify_MissingClaims(t *testing.T) {
	v, err := NewVerifier("topsecret")
	require.NoError(t, err)

	// A validly signed token that simply lacks userId/email.
	c := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
	require.NoError(t, err)

	_, err = v.Verify(tok)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	_, err := NewVerifier("")
	assert.Error(t, err)
}
