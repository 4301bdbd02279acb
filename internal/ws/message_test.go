package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewatch/internal/pipeline"
)

func TestNewEventMessage(t *testing.T) {
	capturedAt := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	result := &pipeline.Result{
		SourceID:   "cam0",
		FrameSeq:   42,
		CapturedAt: capturedAt,
		Detections: []pipeline.Detection{
			{Label: "container", Confidence: 0.88, Box: pipeline.Rect{X: 0.1, Y: 0.2, W: 0.3, H: 0.4}},
		},
		Redacted:    2,
		InferenceMs: 57.3,
	}

	msg := NewEventMessage(result)

	assert.Equal(t, "detection", msg.Type)
	assert.Equal(t, "cam0", msg.SourceID)
	assert.Equal(t, uint64(42), msg.FrameSeq)
	assert.Equal(t, 2, msg.Redacted)
	require.Len(t, msg.Objects, 1)
	assert.Equal(t, [4]float64{0.1, 0.2, 0.3, 0.4}, msg.Objects[0].Box)
}

func TestEventMessage_JSONShape(t *testing.T) {
	msg := NewEventMessage(&pipeline.Result{SourceID: "cam0"})
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "detection", raw["type"])
	// Empty detections marshal as an empty array, not null
	assert.Equal(t, []any{}, raw["objects"])
}
