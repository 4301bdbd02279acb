package pipeline

import (
	"time"
)

// Sensitive classes are always redacted before an image leaves the device,
// regardless of which target classes are enabled.
const (
	ClassPerson       = "person"
	ClassLicensePlate = "license-plate"
)

// Target classes the service delivers when enabled.
const (
	ClassContainer    = "container"
	ClassMobileToilet = "mobile_toilet"
	ClassScaffolding  = "scaffolding"
)

// SensitiveClasses is the fixed set of always-redact classes
var SensitiveClasses = map[string]bool{
	ClassPerson:       true,
	ClassLicensePlate: true,
}

// Frame represents a captured camera frame
type Frame struct {
	SourceID   string    // Source identifier
	Data       []byte    // JPEG frame data
	Seq        uint64    // Frame sequence number
	CapturedAt time.Time // Capture timestamp
	Width      int       // Frame width (if known)
	Height     int       // Frame height (if known)
}

// Rect is a normalized bounding box with top-left origin.
// X, Y, W, H are fractions of the image dimensions in [0,1].
// This is the only coordinate convention used across the pipeline;
// conversion to pixel space happens once, in the result classifier.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// Detection represents a single object detection result.
// Immutable once produced by the detector.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // [0-1]
	Box        Rect    `json:"boundingBox"`
}

// ClassThreshold holds the per-class inference thresholds
type ClassThreshold struct {
	IoU        float64 `json:"iou" yaml:"iou"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// DefaultThreshold is applied to classes without an explicit entry
var DefaultThreshold = ClassThreshold{IoU: 0.45, Confidence: 0.25}

// TargetClass is a deliverable class with its enablement flag and thresholds
type TargetClass struct {
	Name      string         `json:"name" yaml:"name"`
	Enabled   bool           `json:"enabled" yaml:"enabled"`
	Threshold ClassThreshold `json:"threshold" yaml:"threshold"`
}

// DetectionConfig is the versioned configuration snapshot the pipeline runs
// against. It is swapped atomically on update; readers never observe a
// partially edited set of flags or thresholds.
type DetectionConfig struct {
	Version int                    `json:"version"`
	Classes map[string]TargetClass `json:"classes"`
}

// DefaultDetectionConfig enables all target classes with default thresholds
func DefaultDetectionConfig() *DetectionConfig {
	cfg := &DetectionConfig{
		Version: 1,
		Classes: make(map[string]TargetClass),
	}
	for _, name := range []string{ClassContainer, ClassMobileToilet, ClassScaffolding} {
		cfg.Classes[name] = TargetClass{Name: name, Enabled: true, Threshold: DefaultThreshold}
	}
	return cfg
}

// Enabled reports whether a label is an enabled target class
func (c *DetectionConfig) Enabled(label string) bool {
	tc, ok := c.Classes[label]
	return ok && tc.Enabled
}

// Thresholds returns the per-class threshold map with defaults filled in
// for classes that have no explicit entry
func (c *DetectionConfig) Thresholds() map[string]ClassThreshold {
	out := make(map[string]ClassThreshold, len(c.Classes))
	for name, tc := range c.Classes {
		th := tc.Threshold
		if th.IoU == 0 && th.Confidence == 0 {
			th = DefaultThreshold
		}
		out[name] = th
	}
	return out
}

// Location is a best-effort GPS fix
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // Horizontal accuracy in meters
	Timestamp time.Time
}

// Result is published on the event bus after a frame completes the
// classify, redact, annotate and hand-off stages.
type Result struct {
	SourceID    string      `json:"source_id"`
	FrameSeq    uint64      `json:"frame_seq"`
	CapturedAt  time.Time   `json:"captured_at"`
	Detections  []Detection `json:"detections"` // Enabled-target detections only
	Redacted    int         `json:"redacted"`   // Number of sensitive regions covered
	InferenceMs float64     `json:"inference_ms"`
}

// Stats contains pipeline counters
type Stats struct {
	FramesSubmitted uint64 `json:"frames_submitted"`
	FramesDropped   uint64 `json:"frames_dropped"`
	FramesProcessed uint64 `json:"frames_processed"`
	FramesSkipped   uint64 `json:"frames_skipped"` // No enabled target match
	FramesFailed    uint64 `json:"frames_failed"`
}
