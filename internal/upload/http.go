// Package upload implements the blob uploader: named binary blobs are
// PUT to the cloud ingestion endpoint with a device-scoped bearer token.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPUploader uploads named blobs to the ingestion host.
// The wire contract is deliberately thin: one PUT per blob, any non-2xx
// status is a failure and the caller falls back to local storage.
type HTTPUploader struct {
	baseURL string
	client  *http.Client
	tokens  *TokenSource
}

// NewHTTPUploader creates an uploader for the given ingestion host.
// host may be a bare hostname or a full URL; bare hostnames get https.
func NewHTTPUploader(host string, tokens *TokenSource, timeout time.Duration) (*HTTPUploader, error) {
	if host == "" {
		return nil, fmt.Errorf("ingestion host not configured")
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ingestion host: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPUploader{
		baseURL: strings.TrimRight(u.String(), "/"),
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
	}, nil
}

// Upload sends one named blob. Timeouts and transport errors are
// returned like any other failure; the caller treats them uniformly as
// "fell back to local storage".
func (u *HTTPUploader) Upload(ctx context.Context, name string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.baseURL+"/ingest/"+url.PathEscape(name), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentTypeFor(name))

	if u.tokens != nil {
		token, err := u.tokens.Token()
		if err != nil {
			return fmt.Errorf("device token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload %s: status %d: %s", name, resp.StatusCode, string(body))
	}
	return nil
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".jpg"), strings.HasSuffix(name, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
