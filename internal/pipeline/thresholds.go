package pipeline

import (
	"sync/atomic"
)

// ConfigStore holds the current detection configuration (enabled-class
// flags and per-class thresholds). Updates replace the whole snapshot
// atomically, so the frame-processing goroutine never observes a partial
// edit while a configuration update is in progress.
type ConfigStore struct {
	current atomic.Pointer[DetectionConfig]
}

// NewConfigStore creates a store seeded with the given configuration,
// or the defaults when cfg is nil.
func NewConfigStore(cfg *DetectionConfig) *ConfigStore {
	s := &ConfigStore{}
	if cfg == nil {
		cfg = DefaultDetectionConfig()
	}
	s.current.Store(cfg)
	return s
}

// Current returns the active configuration snapshot. Callers must treat
// it as read-only.
func (s *ConfigStore) Current() *DetectionConfig {
	return s.current.Load()
}

// Update swaps in a new configuration snapshot and bumps its version
func (s *ConfigStore) Update(cfg *DetectionConfig) *DetectionConfig {
	prev := s.current.Load()
	next := &DetectionConfig{
		Version: prev.Version + 1,
		Classes: cfg.Classes,
	}
	s.current.Store(next)
	return next
}

// Changed reports whether the active threshold set differs from a
// previously observed one. The detector is reconfigured only when this
// returns true, avoiding an engine reload on a per-frame cadence.
func (s *ConfigStore) Changed(previous map[string]ClassThreshold) bool {
	return !ThresholdsEqual(previous, s.Current().Thresholds())
}

// ThresholdsEqual compares two per-class threshold maps by value
func ThresholdsEqual(a, b map[string]ClassThreshold) bool {
	if len(a) != len(b) {
		return false
	}
	for name, ta := range a {
		tb, ok := b[name]
		if !ok || ta != tb {
			return false
		}
	}
	return true
}
