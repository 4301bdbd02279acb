// Package detection wraps the external inference engine behind the
// pipeline's Detector interface. The engine is a sidecar service that
// accepts a JPEG frame plus per-class thresholds and returns labeled,
// scored, normalized bounding boxes.
package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"sitewatch/internal/pipeline"
)

// EngineDetection is a single detection as returned by the engine
type EngineDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"width"`
		H float64 `json:"height"`
	} `json:"box"`
}

// EngineResult is the engine's detection response
type EngineResult struct {
	Detections      []EngineDetection `json:"detections"`
	Count           int               `json:"count"`
	InferenceTimeMs float64           `json:"inference_time_ms"`
	Model           string            `json:"model"`
}

// engineHealth is the engine's health check response
type engineHealth struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Config holds configuration for the engine client
type Config struct {
	Endpoint string        // Base URL of the inference service
	Timeout  time.Duration // Per-request timeout
}

// EngineClient talks to the inference sidecar over HTTP.
// It implements pipeline.Detector.
type EngineClient struct {
	endpoint    string
	client      *http.Client
	enabled     bool
	healthCheck time.Time
	mu          sync.RWMutex
}

// NewEngineClient creates a detector backed by the inference service
func NewEngineClient(cfg Config) *EngineClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second // Longer timeout for GPU inference
	}
	return &EngineClient{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		enabled:  true,
	}
}

// IsHealthy checks if the inference service is available. Positive
// results are cached for 30 seconds.
func (c *EngineClient) IsHealthy() bool {
	c.mu.RLock()
	if !c.enabled {
		c.mu.RUnlock()
		return false
	}
	if time.Since(c.healthCheck) < 30*time.Second {
		c.mu.RUnlock()
		return true
	}
	c.mu.RUnlock()

	resp, err := c.client.Get(c.endpoint + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var health engineHealth
		if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.ModelLoaded {
			c.mu.Lock()
			c.healthCheck = time.Now()
			c.mu.Unlock()
			return true
		}
	}
	return false
}

// Detect runs inference on a frame. The threshold map is serialized with
// every request, so an updated snapshot takes effect on the next call
// without disturbing one in flight.
func (c *EngineClient) Detect(ctx context.Context, frame *pipeline.Frame, thresholds map[string]pipeline.ClassThreshold) ([]pipeline.Detection, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(frame.Data); err != nil {
		return nil, err
	}

	thresholdJSON, err := json.Marshal(thresholds)
	if err != nil {
		return nil, err
	}
	if err := w.WriteField("thresholds", string(thresholdJSON)); err != nil {
		return nil, err
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inference failed (%d): %s", resp.StatusCode, string(body))
	}

	var result EngineResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}

	detections := make([]pipeline.Detection, 0, len(result.Detections))
	for _, d := range result.Detections {
		detections = append(detections, pipeline.Detection{
			Label:      d.Label,
			Confidence: d.Confidence,
			Box:        pipeline.Rect{X: d.Box.X, Y: d.Box.Y, W: d.Box.W, H: d.Box.H},
		})
	}
	return detections, nil
}

// Reconfigure pushes a new threshold set to the engine so it can reload
// its feature provider. Called by the pipeline only when the threshold
// store reports a change.
func (c *EngineClient) Reconfigure(ctx context.Context, thresholds map[string]pipeline.ClassThreshold) error {
	body, err := json.Marshal(map[string]any{"thresholds": thresholds})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/configure", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("configure request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("configure failed (%d): %s", resp.StatusCode, string(respBody))
	}

	log.Printf("[Detector] Engine reconfigured with %d class thresholds", len(thresholds))
	return nil
}

// Close releases detector resources
func (c *EngineClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// Ensure EngineClient implements pipeline.Detector
var _ pipeline.Detector = (*EngineClient)(nil)
