package upload

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceClaims identifies this edge device to the ingestion endpoint
type DeviceClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// TokenSource mints short-lived HS256 bearer tokens from the device ID
// and shared secret, caching each token until shortly before expiry.
type TokenSource struct {
	deviceID string
	secret   []byte
	expiry   time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenSource creates a token source. expiry <= 0 defaults to one hour.
func NewTokenSource(deviceID string, secret []byte, expiry time.Duration) *TokenSource {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &TokenSource{
		deviceID: deviceID,
		secret:   secret,
		expiry:   expiry,
	}
}

// Token returns a valid bearer token, minting a new one when the cached
// token is within a minute of expiring
func (s *TokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Until(s.expiresAt) > time.Minute {
		return s.token, nil
	}

	expiresAt := time.Now().Add(s.expiry)
	claims := &DeviceClaims{
		DeviceID: s.deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.deviceID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "sitewatch",
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign device token: %w", err)
	}

	s.token = token
	s.expiresAt = expiresAt
	return token, nil
}
