package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewatch/internal/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWithEnvOverrides(t *testing.T) {
	t.Setenv("SITEWATCH_INGEST_HOST", "ingest.example.com")
	t.Setenv("SITEWATCH_CAMERA_DEVICE", "/dev/video0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "ingest.example.com", cfg.Delivery.Host)
	assert.Equal(t, "/dev/video0", cfg.Source.Device)
	assert.Equal(t, "Detections", cfg.Delivery.BacklogDir)
	assert.Equal(t, time.Minute, cfg.Delivery.DrainInterval.Std())
	assert.Equal(t, "blackout", cfg.Privacy.Mode)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9999"
source:
  id: gate-cam
  device: rtsp://10.0.0.5/stream
  fps: 2
engine:
  endpoint: http://localhost:7000
  request_timeout: 20s
delivery:
  host: https://ingest.example.com
  device_id: site-7
  drain_interval: 5m
privacy:
  mode: blur
location:
  mode: static
  latitude: 52.52
  longitude: 13.405
classes:
  - name: container
    enabled: true
    threshold:
      iou: 0.5
      confidence: 0.4
  - name: scaffolding
    enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "gate-cam", cfg.Source.ID)
	assert.Equal(t, 2, cfg.Source.FPS)
	assert.Equal(t, 20*time.Second, cfg.Engine.RequestTimeout.Std())
	assert.Equal(t, "site-7", cfg.Delivery.DeviceID)
	assert.Equal(t, 5*time.Minute, cfg.Delivery.DrainInterval.Std())
	assert.Equal(t, "blur", cfg.Privacy.Mode)
	assert.Equal(t, "static", cfg.Location.Mode)

	dc := cfg.DetectionConfig()
	assert.True(t, dc.Enabled("container"))
	assert.False(t, dc.Enabled("scaffolding"))
	assert.Equal(t, pipeline.ClassThreshold{IoU: 0.5, Confidence: 0.4}, dc.Classes["container"].Threshold)
	// Classes without explicit thresholds get the defaults
	assert.Equal(t, pipeline.DefaultThreshold, dc.Classes["scaffolding"].Threshold)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
source:
  device: /dev/video0
delivery:
  host: from-file.example.com
  device_secret: file-secret
`)
	t.Setenv("SITEWATCH_INGEST_HOST", "from-env.example.com")
	t.Setenv("SITEWATCH_DEVICE_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.example.com", cfg.Delivery.Host)
	assert.Equal(t, "env-secret", cfg.Delivery.DeviceSecret)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery.host")

	t.Setenv("SITEWATCH_INGEST_HOST", "ingest.example.com")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.device")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestDetectionConfig_EmptyClassesUsesDefaults(t *testing.T) {
	cfg := Default()
	dc := cfg.DetectionConfig()

	assert.True(t, dc.Enabled(pipeline.ClassContainer))
	assert.True(t, dc.Enabled(pipeline.ClassMobileToilet))
	assert.True(t, dc.Enabled(pipeline.ClassScaffolding))
}
