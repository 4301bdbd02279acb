package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthenticate_ValidCredentials(t *testing.T) {
	a := NewAuthenticator(Config{Enabled: true, Username: "operator", Password: "hunter2", JWTSecret: "test-secret"})

	token, expiresAt, err := a.Authenticate("operator", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Greater(t, expiresAt, time.Now().Unix())

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	a := NewAuthenticator(Config{Enabled: true, Username: "operator", Password: "hunter2"})

	_, _, err := a.Authenticate("operator", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = a.Authenticate("nobody", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_Disabled(t *testing.T) {
	a := NewAuthenticator(Config{Enabled: false})
	assert.False(t, a.IsEnabled())

	_, _, err := a.Authenticate("admin", "anything")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestAuthenticate_AcceptsBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	a := NewAuthenticator(Config{Enabled: true, Password: string(hash)})

	// Default username is admin
	_, _, err = a.Authenticate("admin", "hunter2")
	assert.NoError(t, err)
}

func TestValidateToken_Invalid(t *testing.T) {
	a := NewAuthenticator(Config{Enabled: true, Password: "pw", JWTSecret: "secret-a"})

	_, err := a.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// A token signed with a different secret is rejected
	other := NewAuthenticator(Config{Enabled: true, Password: "pw", JWTSecret: "secret-b"})
	token, _, err := other.Authenticate("admin", "pw")
	require.NoError(t, err)
	_, err = a.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	m := NewJWTManager("secret", time.Nanosecond)

	token, _, err := m.GenerateToken("operator")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
