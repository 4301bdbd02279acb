// Package config loads the service configuration: a YAML file with
// defaults for everything, plus environment overrides for the values
// that are secrets or vary per deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sitewatch/internal/auth"
	"sitewatch/internal/pipeline"
)

// Duration unmarshals YAML strings like "30s" or "5m"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig configures the control API listener
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SourceConfig describes the camera device
type SourceConfig struct {
	ID     string `yaml:"id"`
	Device string `yaml:"device"`
	FPS    int    `yaml:"fps"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// EngineConfig points at the inference sidecar
type EngineConfig struct {
	Endpoint       string   `yaml:"endpoint"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// DeliveryConfig configures upload and fallback behavior
type DeliveryConfig struct {
	// Host is the cloud ingestion endpoint, bare hostname or full URL
	Host          string   `yaml:"host"`
	DeviceID      string   `yaml:"device_id"`
	DeviceSecret  string   `yaml:"device_secret"`
	BacklogDir    string   `yaml:"backlog_dir"`
	DrainInterval Duration `yaml:"drain_interval"`
	UploadTimeout Duration `yaml:"upload_timeout"`
}

// PrivacyConfig selects the redaction mode
type PrivacyConfig struct {
	Mode string `yaml:"mode"` // "blackout" (default) or "blur"
}

// LocationConfig selects the position source
type LocationConfig struct {
	Mode      string  `yaml:"mode"` // "none" (default), "static" or "gpsd"
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Accuracy  float64 `yaml:"accuracy"`
	GPSDAddr  string  `yaml:"gpsd_addr"`
}

// JournalConfig configures the delivery journal database
type JournalConfig struct {
	Path string `yaml:"path"` // Empty disables the journal
}

// Config is the full service configuration
type Config struct {
	Server   ServerConfig           `yaml:"server"`
	Source   SourceConfig           `yaml:"source"`
	Engine   EngineConfig           `yaml:"engine"`
	Classes  []pipeline.TargetClass `yaml:"classes"`
	Privacy  PrivacyConfig          `yaml:"privacy"`
	Delivery DeliveryConfig         `yaml:"delivery"`
	Location LocationConfig         `yaml:"location"`
	Journal  JournalConfig          `yaml:"journal"`
	Auth     auth.Config            `yaml:"auth"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Source: SourceConfig{ID: "cam0", FPS: 5, Width: 1280, Height: 720},
		Engine: EngineConfig{
			Endpoint:       "http://localhost:9090",
			RequestTimeout: Duration(15 * time.Second),
		},
		Privacy: PrivacyConfig{Mode: "blackout"},
		Delivery: DeliveryConfig{
			BacklogDir:    "Detections",
			DrainInterval: Duration(time.Minute),
			UploadTimeout: Duration(30 * time.Second),
		},
		Location: LocationConfig{Mode: "none"},
		Journal:  JournalConfig{Path: "sitewatch.db"},
	}
}

// Load reads the configuration file, falling back to defaults when path
// is empty, then applies environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.validate()
}

// applyEnv overrides values that are secrets or vary per deployment
func (c *Config) applyEnv() {
	if v := os.Getenv("SITEWATCH_INGEST_HOST"); v != "" {
		c.Delivery.Host = v
	}
	if v := os.Getenv("SITEWATCH_DEVICE_ID"); v != "" {
		c.Delivery.DeviceID = v
	}
	if v := os.Getenv("SITEWATCH_DEVICE_SECRET"); v != "" {
		c.Delivery.DeviceSecret = v
	}
	if v := os.Getenv("SITEWATCH_CAMERA_DEVICE"); v != "" {
		c.Source.Device = v
	}
	if v := os.Getenv("SITEWATCH_ENGINE_ENDPOINT"); v != "" {
		c.Engine.Endpoint = v
	}
	if v := os.Getenv("SITEWATCH_AUTH_PASSWORD"); v != "" {
		c.Auth.Password = v
	}
	if v := os.Getenv("SITEWATCH_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

func (c *Config) validate() error {
	if c.Delivery.Host == "" {
		return fmt.Errorf("delivery.host (or SITEWATCH_INGEST_HOST) is required")
	}
	if c.Source.Device == "" {
		return fmt.Errorf("source.device (or SITEWATCH_CAMERA_DEVICE) is required")
	}
	return nil
}

// DetectionConfig builds the initial pipeline configuration snapshot
// from the configured class list, or the defaults when none are set
func (c *Config) DetectionConfig() *pipeline.DetectionConfig {
	if len(c.Classes) == 0 {
		return pipeline.DefaultDetectionConfig()
	}
	cfg := &pipeline.DetectionConfig{
		Version: 1,
		Classes: make(map[string]pipeline.TargetClass, len(c.Classes)),
	}
	for _, tc := range c.Classes {
		if tc.Threshold.IoU == 0 && tc.Threshold.Confidence == 0 {
			tc.Threshold = pipeline.DefaultThreshold
		}
		cfg.Classes[tc.Name] = tc
	}
	return cfg
}
