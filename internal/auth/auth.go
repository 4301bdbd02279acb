// Package auth protects the control API: a single operator account with
// a bcrypt-verified password exchanged for a short-lived session token.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Config holds the operator account settings
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	// Password is either a bcrypt hash or a plaintext value that gets
	// hashed at startup
	Password  string `yaml:"password"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Authenticator handles operator authentication
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	jwtManager   *JWTManager
}

// NewAuthenticator creates an authenticator from configuration
func NewAuthenticator(cfg Config) *Authenticator {
	username := cfg.Username
	if username == "" {
		username = "admin"
	}

	var passwordHash []byte
	if cfg.Enabled && cfg.Password != "" {
		// A 60-byte $-prefixed value is already a bcrypt hash
		if len(cfg.Password) == 60 && cfg.Password[0] == '$' {
			passwordHash = []byte(cfg.Password)
		} else {
			if hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost); err == nil {
				passwordHash = hash
			}
		}
	}

	return &Authenticator{
		enabled:      cfg.Enabled,
		username:     username,
		passwordHash: passwordHash,
		jwtManager:   NewJWTManager(cfg.JWTSecret, 0),
	}
}

// IsEnabled returns whether authentication is enabled
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate validates credentials and returns a session token with
// its Unix expiry
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}

	if username != a.username {
		return "", 0, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtManager.GenerateToken(username)
	if err != nil {
		return "", 0, err
	}

	return token, expiresAt.Unix(), nil
}

// ValidateToken validates a session token
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.jwtManager.ValidateToken(token)
}
