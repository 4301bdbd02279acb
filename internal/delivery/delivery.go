// Package delivery packages processed frames into blob pairs (image +
// metadata JSON), uploads them, and falls back to the durable backlog
// when upload fails. The drainer retries backlogged blobs until they
// leave the device.
package delivery

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"sitewatch/internal/journal"
	"sitewatch/internal/pipeline"
	"sitewatch/internal/storage"
)

// Journal counter names
const (
	CounterDelivered = "delivered"
	CounterProcessed = "processed"
)

// Uploader sends one named blob to the ingestion endpoint
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) error
}

// Counters are shared between the live delivery path and the drainer.
// Processed counts records that were uploaded or durably persisted; a
// record lost to both network and disk is not counted. Delivered is
// bumped only on confirmed upload success: once per record in the live
// path, once per blob file when drained.
type Counters struct {
	Processed atomic.Uint64
	Delivered atomic.Uint64
}

// Deliverer implements pipeline.Deliverer: fire-and-forget delivery with
// retry via durable persistence. Each blob of a record succeeds or fails
// independently; partial delivery is recoverable by the drainer.
type Deliverer struct {
	uploader   Uploader
	backlog    *storage.Backlog
	location   pipeline.LocationProvider
	journal    *journal.Journal // May be nil
	counters   *Counters
	timeout    time.Duration
	onFallback func() // Invoked after a record left blobs in the backlog

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Config holds delivery pipeline configuration
type Config struct {
	Timeout time.Duration // Per-record upload budget
}

// NewDeliverer creates the delivery pipeline. journal may be nil when no
// journal is configured; location must not be nil.
func NewDeliverer(uploader Uploader, backlog *storage.Backlog, location pipeline.LocationProvider, jnl *journal.Journal, counters *Counters, cfg Config) *Deliverer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if counters == nil {
		counters = &Counters{}
	}
	return &Deliverer{
		uploader: uploader,
		backlog:  backlog,
		location: location,
		journal:  jnl,
		counters: counters,
		timeout:  timeout,
	}
}

// SetFallbackHook registers a callback invoked whenever a record falls
// back to the backlog, so the drainer can be kicked early. Must be set
// before the pipeline starts.
func (d *Deliverer) SetFallbackHook(hook func()) {
	d.onFallback = hook
}

// Counters returns the shared delivery counters
func (d *Deliverer) Counters() *Counters {
	return d.counters
}

// Deliver packages and ships one processed frame. Fire and forget: the
// caller's goroutine is never blocked on encoding, GPS or network.
func (d *Deliverer) Deliver(image []byte, detections []pipeline.Detection, capturedAt time.Time) {
	if d.closed.Load() {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(image, detections, capturedAt)
	}()
}

// Close waits for in-flight deliveries to settle (uploaded or
// backlogged). No new records are accepted after Close.
func (d *Deliverer) Close() {
	d.closed.Store(true)
	d.wg.Wait()
}

func (d *Deliverer) deliver(image []byte, detections []pipeline.Detection, capturedAt time.Time) {
	base := BlobBase(capturedAt)
	imageName := base + ".jpg"
	metaName := base + ".json"

	// GPS is best effort: absent fix means empty fields, never waiting
	loc, hasFix := d.location.Current()
	metaBytes, err := buildMetadata(detections, capturedAt, loc, hasFix).Encode()
	if err != nil {
		// Should not happen for this schema; drop the metadata blob
		// but still try to ship the image.
		log.Printf("[Delivery] Failed to encode metadata for %s: %v", base, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	imageUp, imageStored, imgErr := d.uploadOrBacklog(ctx, imageName, image)
	metaUp, metaStored := false, false
	var metaErr error
	if metaBytes != nil {
		metaUp, metaStored, metaErr = d.uploadOrBacklog(ctx, metaName, metaBytes)
	}

	// A record only counts as processed once it is uploaded or durably
	// persisted; a record that vanished entirely must not inflate the
	// counters.
	settled := imageUp || imageStored || metaUp || metaStored

	outcome := journal.OutcomeLost
	switch {
	case imageUp && metaUp:
		outcome = journal.OutcomeDelivered
		d.counters.Delivered.Add(1)
	case imageUp || metaUp:
		outcome = journal.OutcomePartial
	case settled:
		outcome = journal.OutcomeBacklogged
	}
	if settled {
		d.counters.Processed.Add(1)
	}

	if (imageStored || metaStored) && d.onFallback != nil {
		d.onFallback()
	}

	d.recordAttempt(base, capturedAt, detections, outcome, settled, firstErr(imgErr, metaErr))
}

// uploadOrBacklog attempts upload and, on failure, persists the blob to
// durable storage under the same name. Reports whether the blob was
// uploaded and whether it was written to the backlog.
func (d *Deliverer) uploadOrBacklog(ctx context.Context, name string, data []byte) (uploaded, stored bool, err error) {
	err = d.uploader.Upload(ctx, name, data)
	if err == nil {
		return true, false, nil
	}
	log.Printf("[Delivery] Upload failed for %s, writing to backlog: %v", name, err)

	if putErr := d.backlog.Put(name, data); putErr != nil {
		// Both network and disk failed; the blob is lost. Per-frame
		// errors never abort the running pipeline.
		log.Printf("[Delivery] Backlog write failed for %s: %v", name, putErr)
		return false, false, putErr
	}
	return false, true, err
}

func (d *Deliverer) recordAttempt(base string, capturedAt time.Time, detections []pipeline.Detection, outcome string, settled bool, cause error) {
	if d.journal == nil {
		return
	}
	labels := make([]string, 0, len(detections))
	for _, det := range detections {
		labels = append(labels, det.Label)
	}
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	if err := d.journal.RecordAttempt(journal.Entry{
		Base:       base,
		CapturedAt: capturedAt,
		Labels:     labels,
		Outcome:    outcome,
		Error:      errText,
	}); err != nil {
		log.Printf("[Delivery] Journal write failed for %s: %v", base, err)
	}
	if outcome == journal.OutcomeDelivered {
		if err := d.journal.AddCounter(CounterDelivered, 1); err != nil {
			log.Printf("[Delivery] Journal counter update failed: %v", err)
		}
	}
	if settled {
		if err := d.journal.AddCounter(CounterProcessed, 1); err != nil {
			log.Printf("[Delivery] Journal counter update failed: %v", err)
		}
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Ensure Deliverer implements pipeline.Deliverer
var _ pipeline.Deliverer = (*Deliverer)(nil)
