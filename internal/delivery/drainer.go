package delivery

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"sitewatch/internal/journal"
	"sitewatch/internal/storage"
)

// Drainer periodically rescans the backlog and retries delivery of
// previously failed blobs. Each file's fate is independent: success
// deletes the file and bumps the delivered counter, failure leaves it
// for the next cycle. Retrying a file is idempotent, so a drain
// interrupted mid-scan loses nothing.
type Drainer struct {
	backlog  *storage.Backlog
	uploader Uploader
	counters *Counters
	journal  *journal.Journal // May be nil
	interval time.Duration

	kick   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewDrainer creates a drainer. interval <= 0 defaults to one minute.
func NewDrainer(backlog *storage.Backlog, uploader Uploader, counters *Counters, jnl *journal.Journal, interval time.Duration) *Drainer {
	if interval <= 0 {
		interval = time.Minute
	}
	if counters == nil {
		counters = &Counters{}
	}
	return &Drainer{
		backlog:  backlog,
		uploader: uploader,
		counters: counters,
		journal:  jnl,
		interval: interval,
		kick:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the drain loop: once at startup, then on every tick or
// kick
func (d *Drainer) Start() {
	d.wg.Add(1)
	go d.run()
	log.Printf("[Drainer] Started (interval: %s)", d.interval)
}

// Stop halts the drain loop. An in-progress scan finishes its current
// file and exits.
func (d *Drainer) Stop() {
	d.once.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

// Kick requests an early drain cycle, typically after a failed delivery
// wrote new backlog files. Coalesces when a kick is already pending.
func (d *Drainer) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Drainer) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.Drain()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.Drain()
		case <-d.kick:
			d.Drain()
		}
	}
}

// Drain attempts upload of every pending blob and returns the number of
// files drained. Files that vanish between scan and read were drained
// elsewhere or removed out of band; that is a benign outcome.
func (d *Drainer) Drain() int {
	names, err := d.backlog.List()
	if err != nil {
		log.Printf("[Drainer] Backlog scan failed: %v", err)
		return 0
	}
	if len(names) == 0 {
		return 0
	}

	drained := 0
	for _, name := range names {
		select {
		case <-d.stopCh:
			return drained
		default:
		}

		data, err := d.backlog.Read(name)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("[Drainer] Failed to read %s: %v", name, err)
			}
			continue
		}

		if err := d.uploader.Upload(context.Background(), name, data); err != nil {
			// Leave the file in place for the next cycle
			log.Printf("[Drainer] Retry failed for %s: %v", name, err)
			continue
		}

		if err := d.backlog.Remove(name); err != nil {
			log.Printf("[Drainer] Failed to remove drained blob %s: %v", name, err)
		}
		d.counters.Delivered.Add(1)
		if d.journal != nil {
			if err := d.journal.AddCounter(CounterDelivered, 1); err != nil {
				log.Printf("[Drainer] Journal counter update failed: %v", err)
			}
		}
		drained++
	}

	if drained > 0 {
		log.Printf("[Drainer] Drained %d of %d pending blobs", drained, len(names))
	}
	return drained
}
