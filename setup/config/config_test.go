package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := &Relay{}
	c.Defaults()

	assert.Equal(t, 4001, c.Port)
	assert.Equal(t, 5*time.Second, c.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, c.HeartbeatTimeout)
	assert.Equal(t, time.Second, c.PersistDebounceCache)
	assert.Equal(t, 5*time.Second, c.PersistDebounceDurable)
}

func TestVerify_MissingRequiredFields(t *testing.T) {
	c := &Relay{}
	c.Defaults()

	var errs ConfigErrors
	c.Verify(&errs)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs.Error(), "JWT_SECRET")
	assert.Contains(t, errs.Error(), "DATABASE_URL")
}

func TestVerify_Passes(t *testing.T) {
	c := &Relay{JWTSecret: "s3cret", DatabaseURL: "postgres://localhost/db"}
	c.Defaults()

	var errs ConfigErrors
	c.Verify(&errs)
	assert.Empty(t, errs)
}

func TestLoadFromEnvironment_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DATABASE_URL", "")
	_, err := LoadFromEnvironment()
	require.Error(t, err)
}

func TestLoadFromEnvironment_Success(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("REALTIME_PORT", "9090")

	c, err := LoadFromEnvironment()
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Port)
	assert.Equal(t, "s3cret", c.JWTSecret)
}
