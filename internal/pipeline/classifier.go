package pipeline

import (
	"image"
	"math"
)

// Classified is the outcome of partitioning a detection set
type Classified struct {
	// Targets maps enabled target labels to their pixel-space boxes
	Targets map[string][]image.Rectangle
	// TargetDetections holds the matching detections with normalized
	// boxes, in input order, for the delivery metadata record
	TargetDetections []Detection
	// Sensitive holds pixel-space boxes that must be redacted
	Sensitive []image.Rectangle
	// ShouldProcess is true iff at least one enabled target class
	// matched. It gates the redact/annotate/deliver stages so frames
	// with no relevant content cost nothing beyond inference.
	ShouldProcess bool
}

// Classify partitions detections into target, sensitive and ignored sets.
// A detection is a target iff its label is an enabled class in cfg; it is
// sensitive iff its label is in the fixed sensitive set, regardless of
// enablement. Everything else is dropped.
//
// Pixel conversion uses a top-left origin: normalized (x,y) is the upper
// left corner of the box, matching image.Rect. Both the detector and the
// drawing code share this convention end to end.
func Classify(detections []Detection, cfg *DetectionConfig, width, height int) Classified {
	out := Classified{
		Targets: make(map[string][]image.Rectangle),
	}

	for _, det := range detections {
		if SensitiveClasses[det.Label] {
			out.Sensitive = append(out.Sensitive, toPixels(det.Box, width, height))
			continue
		}
		if cfg.Enabled(det.Label) {
			out.Targets[det.Label] = append(out.Targets[det.Label], toPixels(det.Box, width, height))
			out.TargetDetections = append(out.TargetDetections, det)
		}
	}

	out.ShouldProcess = len(out.TargetDetections) > 0
	return out
}

// toPixels maps a normalized top-left-origin box to pixel space, clamped
// to the image bounds
func toPixels(r Rect, width, height int) image.Rectangle {
	x0 := int(math.Round(r.X * float64(width)))
	y0 := int(math.Round(r.Y * float64(height)))
	x1 := int(math.Round((r.X + r.W) * float64(width)))
	y1 := int(math.Round((r.Y + r.H) * float64(height)))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, width, height))
}
