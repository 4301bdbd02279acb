package ws

import (
	"time"

	"sitewatch/internal/pipeline"
)

// EventMessage is the per-frame detection summary broadcast to dashboards
type EventMessage struct {
	Type        string            `json:"type"` // "detection"
	SourceID    string            `json:"source_id"`
	Timestamp   time.Time         `json:"timestamp"`
	FrameSeq    uint64            `json:"frame_seq"`
	Objects     []ObjectDetection `json:"objects"`
	Redacted    int               `json:"redacted"` // Sensitive regions covered before delivery
	InferenceMs float64           `json:"inference_ms"`
}

// ObjectDetection is a single detected object in the broadcast
type ObjectDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // 0.0-1.0
	// Normalized top-left-origin box [x, y, w, h]
	Box [4]float64 `json:"box"`
}

// NewEventMessage converts a pipeline result into a broadcast message
func NewEventMessage(result *pipeline.Result) *EventMessage {
	msg := &EventMessage{
		Type:        "detection",
		SourceID:    result.SourceID,
		Timestamp:   result.CapturedAt,
		FrameSeq:    result.FrameSeq,
		Objects:     make([]ObjectDetection, 0, len(result.Detections)),
		Redacted:    result.Redacted,
		InferenceMs: result.InferenceMs,
	}
	for _, d := range result.Detections {
		msg.Objects = append(msg.Objects, ObjectDetection{
			Label:      d.Label,
			Confidence: d.Confidence,
			Box:        [4]float64{d.Box.X, d.Box.Y, d.Box.W, d.Box.H},
		})
	}
	return msg
}
