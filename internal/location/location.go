// Package location supplies best-effort GPS fixes to the delivery
// pipeline. Providers never block: when no fix is available the caller
// gets (zero, false) and delivers with empty GPS fields.
package location

import (
	"time"

	"sitewatch/internal/pipeline"
)

// None is the provider for installations without any position source
type None struct{}

// NewNone creates a provider that never has a fix
func NewNone() *None {
	return &None{}
}

// Current implements pipeline.LocationProvider
func (*None) Current() (pipeline.Location, bool) {
	return pipeline.Location{}, false
}

// Static reports a fixed installation position. The fix timestamp is the
// time of the query, since the position is always current.
type Static struct {
	lat, lon, accuracy float64
}

// NewStatic creates a provider for a surveyed, non-moving installation
func NewStatic(lat, lon, accuracy float64) *Static {
	return &Static{lat: lat, lon: lon, accuracy: accuracy}
}

// Current implements pipeline.LocationProvider
func (s *Static) Current() (pipeline.Location, bool) {
	return pipeline.Location{
		Latitude:  s.lat,
		Longitude: s.lon,
		Accuracy:  s.accuracy,
		Timestamp: time.Now(),
	}, true
}

var (
	_ pipeline.LocationProvider = (*None)(nil)
	_ pipeline.LocationProvider = (*Static)(nil)
)
