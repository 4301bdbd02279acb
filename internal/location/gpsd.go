package location

import (
	"bufio"
	"encoding/json"
	"log"
	"net"
	"sync"
	"time"

	"sitewatch/internal/pipeline"
)

// maxFixAge is how long a cached fix stays usable. Older fixes are
// reported as "no fix" rather than attaching stale coordinates.
const maxFixAge = 30 * time.Second

// tpvReport is the subset of a gpsd TPV report the provider consumes
type tpvReport struct {
	Class string  `json:"class"`
	Mode  int     `json:"mode"` // 2 = 2D fix, 3 = 3D fix
	Time  string  `json:"time"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	EPX   float64 `json:"epx"` // Longitude error estimate, meters
	EPY   float64 `json:"epy"` // Latitude error estimate, meters
}

// GPSD reads position reports from a gpsd daemon over TCP and caches the
// latest fix. Current never touches the network; the reader goroutine
// maintains the cache and reconnects with backoff when the daemon drops.
type GPSD struct {
	addr string

	mu      sync.RWMutex
	fix     pipeline.Location
	hasFix  bool
	fixedAt time.Time

	connMu sync.Mutex
	conn   net.Conn

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewGPSD creates a gpsd-backed provider. addr defaults to the gpsd
// standard port on localhost.
func NewGPSD(addr string) *GPSD {
	if addr == "" {
		addr = "localhost:2947"
	}
	return &GPSD{addr: addr, stopCh: make(chan struct{})}
}

// Start launches the reader goroutine
func (g *GPSD) Start() {
	g.wg.Add(1)
	go g.run()
	log.Printf("[GPSD] Started reader for %s", g.addr)
}

// Stop halts the reader, closing any live daemon connection so a
// blocked read returns promptly
func (g *GPSD) Stop() {
	g.once.Do(func() { close(g.stopCh) })
	g.connMu.Lock()
	if g.conn != nil {
		g.conn.Close()
	}
	g.connMu.Unlock()
	g.wg.Wait()
}

// Current implements pipeline.LocationProvider. Returns the cached fix
// while it is fresh, (zero, false) otherwise.
func (g *GPSD) Current() (pipeline.Location, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasFix || time.Since(g.fixedAt) > maxFixAge {
		return pipeline.Location{}, false
	}
	return g.fix, true
}

func (g *GPSD) run() {
	defer g.wg.Done()

	backoff := time.Second
	for {
		select {
		case <-g.stopCh:
			return
		default:
		}

		if err := g.readFrom(g.addr); err != nil {
			log.Printf("[GPSD] Connection to %s lost: %v", g.addr, err)
		}

		select {
		case <-g.stopCh:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (g *GPSD) readFrom(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	g.connMu.Lock()
	g.conn = conn
	g.connMu.Unlock()
	defer func() {
		conn.Close()
		g.connMu.Lock()
		g.conn = nil
		g.connMu.Unlock()
	}()

	select {
	case <-g.stopCh:
		return nil
	default:
	}

	if _, err := conn.Write([]byte(`?WATCH={"enable":true,"json":true};` + "\n")); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() {
		select {
		case <-g.stopCh:
			return nil
		default:
		}

		var report tpvReport
		if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
			continue
		}
		if report.Class != "TPV" || report.Mode < 2 {
			continue
		}
		g.update(report)
	}
	return scanner.Err()
}

func (g *GPSD) update(report tpvReport) {
	ts := time.Now()
	if report.Time != "" {
		if parsed, err := time.Parse(time.RFC3339, report.Time); err == nil {
			ts = parsed
		}
	}

	accuracy := report.EPY
	if report.EPX > accuracy {
		accuracy = report.EPX
	}

	g.mu.Lock()
	g.fix = pipeline.Location{
		Latitude:  report.Lat,
		Longitude: report.Lon,
		Accuracy:  accuracy,
		Timestamp: ts,
	}
	g.hasFix = true
	g.fixedAt = time.Now()
	g.mu.Unlock()
}

var _ pipeline.LocationProvider = (*GPSD)(nil)
