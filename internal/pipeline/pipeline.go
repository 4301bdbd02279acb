package pipeline

import (
	"bytes"
	"context"
	"image/jpeg"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Pipeline drives a single source through the detection-to-delivery chain:
// gate → detect → classify → redact → annotate → deliver. Frames are
// processed strictly one at a time on a dedicated goroutine; arrivals
// during processing are shed by the gate.
type Pipeline struct {
	sourceID  string
	detector  Detector
	redactor  Redactor
	annotator Annotator
	deliverer Deliverer
	config    *ConfigStore
	gate      *FrameGate
	events    *EventBus

	// lastThresholds is only touched by the processing goroutine
	lastThresholds map[string]ClassThreshold

	frames  chan *Frame
	stopCh  chan struct{}
	done    chan struct{}
	stopped atomic.Bool
	started atomic.Bool
	stopMu  sync.Mutex

	processed atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
}

// New creates a pipeline with injected collaborators. The config store
// may be shared with the control surface that updates it.
func New(sourceID string, detector Detector, redactor Redactor, annotator Annotator, deliverer Deliverer, config *ConfigStore, events *EventBus) *Pipeline {
	if config == nil {
		config = NewConfigStore(nil)
	}
	if events == nil {
		events = NewEventBus()
	}
	return &Pipeline{
		sourceID:  sourceID,
		detector:  detector,
		redactor:  redactor,
		annotator: annotator,
		deliverer: deliverer,
		config:    config,
		gate:      NewFrameGate(),
		events:    events,
		// Capacity 1 is enough: the gate guarantees a single
		// in-flight frame, so sends never block.
		frames: make(chan *Frame, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Events returns the result bus for this pipeline
func (p *Pipeline) Events() *EventBus {
	return p.events
}

// Config returns the configuration store read by this pipeline
func (p *Pipeline) Config() *ConfigStore {
	return p.config
}

// Gate exposes the frame gate, mainly for stats
func (p *Pipeline) Gate() *FrameGate {
	return p.gate
}

// Start launches the processing goroutine
func (p *Pipeline) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run()
	log.Printf("[Pipeline] Started processing for source %s", p.sourceID)
}

// Stop ceases accepting frames immediately and waits for any in-flight
// frame to finish processing. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()

	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stopCh)
	if p.started.Load() {
		<-p.done
	}
	log.Printf("[Pipeline] Stopped processing for source %s", p.sourceID)
}

// OnFrame implements FrameConsumer. It returns false when the frame was
// shed because another frame is in flight, or because the pipeline is
// stopping. Never blocks the capture goroutine.
func (p *Pipeline) OnFrame(frame *Frame) bool {
	if frame == nil || p.stopped.Load() {
		return false
	}
	if !p.gate.TryAcquire() {
		return false
	}
	select {
	case p.frames <- frame:
		return true
	default:
		// Unreachable while the gate invariant holds, but never
		// block the capture path.
		p.gate.Release()
		return false
	}
}

// Running reports whether the pipeline is started and accepting frames
func (p *Pipeline) Running() bool {
	return p.started.Load() && !p.stopped.Load()
}

// Stats returns a snapshot of the pipeline counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		FramesSubmitted: p.gate.Submitted(),
		FramesDropped:   p.gate.Dropped(),
		FramesProcessed: p.processed.Load(),
		FramesSkipped:   p.skipped.Load(),
		FramesFailed:    p.failed.Load(),
	}
}

func (p *Pipeline) run() {
	defer close(p.done)

	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frames:
			p.processFrame(frame)
			p.gate.Release()
		}
	}
}

// processFrame runs the full per-frame stage. Errors are isolated to the
// frame: the gate is always released by the caller and the pipeline keeps
// running.
func (p *Pipeline) processFrame(frame *Frame) {
	cfg := p.config.Current()
	thresholds := cfg.Thresholds()

	// Reload the engine only when the thresholds actually changed
	if !ThresholdsEqual(p.lastThresholds, thresholds) {
		if err := p.detector.Reconfigure(context.Background(), thresholds); err != nil {
			log.Printf("[Pipeline] Detector reconfigure failed for source %s: %v", p.sourceID, err)
		}
		p.lastThresholds = thresholds
	}

	start := time.Now()
	detections, err := p.detector.Detect(context.Background(), frame, thresholds)
	inferenceMs := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		// Engine failure means "no detections this frame"
		log.Printf("[Pipeline] Detection error for source %s: %v", p.sourceID, err)
		p.failed.Add(1)
		return
	}

	width, height := p.frameDims(frame)
	classified := Classify(detections, cfg, width, height)

	if !classified.ShouldProcess {
		p.skipped.Add(1)
		return
	}

	// Privacy first: a frame whose sensitive regions cannot be covered
	// is never delivered.
	redacted, err := p.redactor.Redact(frame.Data, classified.Sensitive)
	if err != nil {
		log.Printf("[Pipeline] Redaction failed for source %s, frame %d dropped: %v", p.sourceID, frame.Seq, err)
		p.failed.Add(1)
		return
	}

	// Annotation is best effort; missing outlines are a quality issue,
	// not a privacy issue.
	annotated, err := p.annotator.Annotate(redacted, classified.Targets)
	if err != nil {
		log.Printf("[Pipeline] Annotation failed for source %s, delivering unannotated: %v", p.sourceID, err)
		annotated = redacted
	}

	p.deliverer.Deliver(annotated, classified.TargetDetections, frame.CapturedAt)
	p.processed.Add(1)

	p.events.Publish(&Result{
		SourceID:    p.sourceID,
		FrameSeq:    frame.Seq,
		CapturedAt:  frame.CapturedAt,
		Detections:  classified.TargetDetections,
		Redacted:    len(classified.Sensitive),
		InferenceMs: inferenceMs,
	})
}

// frameDims returns the frame's true dimensions from the JPEG header.
// The source's claimed dimensions are only a fallback: a stream can emit
// frames at its native resolution regardless of what the device was
// configured for, and redaction boxes scaled against the wrong size land
// in the wrong place.
func (p *Pipeline) frameDims(frame *Frame) (int, int) {
	if cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame.Data)); err == nil {
		return cfg.Width, cfg.Height
	}
	return frame.Width, frame.Height
}

// Ensure Pipeline implements FrameConsumer
var _ FrameConsumer = (*Pipeline)(nil)
