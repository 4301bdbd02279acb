package pipeline

import (
	"sync/atomic"
)

// FrameGate enforces the single-in-flight policy: at most one frame is
// processed at a time per source, and frames arriving while one is in
// flight are dropped. No queueing — real-time detection tolerates dropped
// frames but not unbounded latency growth.
type FrameGate struct {
	busy      atomic.Bool
	submitted atomic.Uint64
	dropped   atomic.Uint64
}

// NewFrameGate creates a free gate
func NewFrameGate() *FrameGate {
	return &FrameGate{}
}

// TryAcquire attempts to take the gate for a new frame. Returns false if
// another frame is currently being processed; the caller must drop the
// frame with no side effect. Safe under concurrent arrival and
// completion events.
func (g *FrameGate) TryAcquire() bool {
	g.submitted.Add(1)
	if g.busy.CompareAndSwap(false, true) {
		return true
	}
	g.dropped.Add(1)
	return false
}

// Release frees the gate after the full classify, redact, annotate and
// package stage completes, whether it succeeded or failed. Release
// happens-after the corresponding TryAcquire for the same frame.
func (g *FrameGate) Release() {
	g.busy.Store(false)
}

// Busy reports whether a frame is currently in flight
func (g *FrameGate) Busy() bool {
	return g.busy.Load()
}

// Submitted returns the total number of frames offered to the gate
func (g *FrameGate) Submitted() uint64 {
	return g.submitted.Load()
}

// Dropped returns the number of frames shed while busy
func (g *FrameGate) Dropped() uint64 {
	return g.dropped.Load()
}
