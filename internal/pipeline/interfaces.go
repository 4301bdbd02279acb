package pipeline

import (
	"context"
	"image"
	"time"
)

// Detector wraps an inference engine. Implementations read the supplied
// per-class thresholds on every call so that threshold updates take effect
// on the next frame without disrupting a call in flight.
type Detector interface {
	// Detect runs inference on a frame and returns labeled, scored,
	// normalized bounding boxes. An error means "no detections this
	// frame"; it is not fatal to the pipeline.
	Detect(ctx context.Context, frame *Frame, thresholds map[string]ClassThreshold) ([]Detection, error)

	// Reconfigure reloads the engine with a new threshold set. Called
	// only when the threshold store reports a change, never on a
	// per-frame cadence.
	Reconfigure(ctx context.Context, thresholds map[string]ClassThreshold) error

	// IsHealthy returns true if the engine is operational
	IsHealthy() bool

	// Close releases detector resources
	Close() error
}

// FrameSource abstracts a camera device. It pushes frames to the consumer
// callback; the consumer decides whether to accept or drop each frame and
// must never block.
type FrameSource interface {
	// Start begins frame capture. Fails if the device cannot be opened.
	Start(consumer FrameConsumer) error

	// Stop halts capture. No OnFrame calls are made after Stop returns.
	Stop() error

	// IsRunning returns true while the source is actively capturing
	IsRunning() bool
}

// FrameConsumer receives frames from a source
type FrameConsumer interface {
	// OnFrame is called for each captured frame. Returns false if the
	// frame was dropped (load shedding), true if accepted.
	OnFrame(frame *Frame) bool
}

// Redactor covers sensitive regions of a JPEG image. An error is treated
// as fail-closed: the frame must not be delivered.
type Redactor interface {
	Redact(jpegData []byte, regions []image.Rectangle) ([]byte, error)
}

// Annotator draws labeled outlines for target detections on a JPEG image.
// Annotation failure is non-fatal; callers deliver the unannotated image.
type Annotator interface {
	Annotate(jpegData []byte, boxesByLabel map[string][]image.Rectangle) ([]byte, error)
}

// Deliverer hands a processed frame to the delivery pipeline. The call is
// fire-and-forget: upload, fallback persistence and retry happen off the
// frame-processing goroutine.
type Deliverer interface {
	Deliver(image []byte, detections []Detection, capturedAt time.Time)
}

// LocationProvider supplies a best-effort GPS fix. The second return value
// is false when no fix is available; callers must not block waiting for one.
type LocationProvider interface {
	Current() (Location, bool)
}
