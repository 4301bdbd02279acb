package delivery

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"sitewatch/internal/pipeline"
)

// Millisecond-precision timestamp layout used in the metadata record
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Prediction is one detection in the metadata record
type Prediction struct {
	Label       string        `json:"label"`
	Confidence  float64       `json:"confidence"`
	BoundingBox pipeline.Rect `json:"boundingBox"`
}

// Metadata is the JSON record delivered alongside every image. GPS
// fields are empty strings when no fix is available, never omitted.
type Metadata struct {
	Date           string       `json:"date"`
	Predictions    []Prediction `json:"predictions"`
	Latitude       string       `json:"latitude"`
	Longitude      string       `json:"longitude"`
	ImageTimestamp string       `json:"image_timestamp"`
	GPSTimestamp   string       `json:"gps_timestamp"`
	GPSAccuracy    string       `json:"gps_accuracy"`
}

// BlobBase derives the shared base filename for a record from its capture
// timestamp. Millisecond resolution keeps names unique at the expected
// frame rate.
func BlobBase(capturedAt time.Time) string {
	return fmt.Sprintf("detection_%d", capturedAt.UnixMilli())
}

// buildMetadata assembles the metadata record for one processed frame.
// loc is ignored when hasFix is false; GPS fields stay empty.
func buildMetadata(detections []pipeline.Detection, capturedAt time.Time, loc pipeline.Location, hasFix bool) Metadata {
	m := Metadata{
		Date:           capturedAt.Format(timeLayout),
		Predictions:    make([]Prediction, 0, len(detections)),
		ImageTimestamp: capturedAt.Format(timeLayout),
	}
	for _, d := range detections {
		m.Predictions = append(m.Predictions, Prediction{
			Label:       d.Label,
			Confidence:  d.Confidence,
			BoundingBox: d.Box,
		})
	}
	if hasFix {
		m.Latitude = strconv.FormatFloat(loc.Latitude, 'f', 6, 64)
		m.Longitude = strconv.FormatFloat(loc.Longitude, 'f', 6, 64)
		m.GPSTimestamp = loc.Timestamp.Format(timeLayout)
		m.GPSAccuracy = strconv.FormatFloat(loc.Accuracy, 'f', 1, 64)
	}
	return m
}

// Encode renders the record as JSON
func (m Metadata) Encode() ([]byte, error) {
	return json.Marshal(m)
}
