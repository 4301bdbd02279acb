package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSource_MintAndCache(t *testing.T) {
	s := NewTokenSource("device-42", []byte("secret"), time.Hour)

	token1, err := s.Token()
	require.NoError(t, err)
	require.NotEmpty(t, token1)

	// Cached until close to expiry
	token2, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, token1, token2)

	// Verify the claims with the shared secret
	claims := &DeviceClaims{}
	parsed, err := jwt.ParseWithClaims(token1, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "device-42", claims.DeviceID)
	assert.Equal(t, "sitewatch", claims.Issuer)
}

func TestTokenSource_RemintsNearExpiry(t *testing.T) {
	// A 30-second expiry is always within the one-minute remint window
	s := NewTokenSource("device-42", []byte("secret"), 30*time.Second)

	token1, err := s.Token()
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond) // jwt timestamps have second resolution
	token2, err := s.Token()
	require.NoError(t, err)
	assert.NotEqual(t, token1, token2)
}

func TestHTTPUploader_Upload(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tokens := NewTokenSource("device-42", []byte("secret"), time.Hour)
	u, err := NewHTTPUploader(srv.URL, tokens, 0)
	require.NoError(t, err)

	require.NoError(t, u.Upload(context.Background(), "detection_1700000000000.jpg", []byte("jpeg-bytes")))

	assert.Equal(t, "/ingest/detection_1700000000000.jpg", gotPath)
	assert.Contains(t, gotAuth, "Bearer ")
	assert.Equal(t, "image/jpeg", gotContentType)
	assert.Equal(t, []byte("jpeg-bytes"), gotBody)
}

func TestHTTPUploader_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	u, err := NewHTTPUploader(srv.URL, nil, 0)
	require.NoError(t, err)

	err = u.Upload(context.Background(), "detection_1.json", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestHTTPUploader_BareHostnameGetsHTTPS(t *testing.T) {
	u, err := NewHTTPUploader("ingest.example.com", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "https://ingest.example.com", u.baseURL)
}

func TestHTTPUploader_EmptyHostRejected(t *testing.T) {
	_, err := NewHTTPUploader("", nil, 0)
	assert.Error(t, err)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/jpeg", contentTypeFor("a.jpg"))
	assert.Equal(t, "application/json", contentTypeFor("a.json"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("a.bin"))
}
