// Package source implements the camera frame source: an FFmpeg child
// process (RTSP, HTTP stream or V4L2 device) or a polled HTTP still
// endpoint, decoded into individual JPEG frames and pushed to the
// pipeline. The consumer decides per frame whether to accept or shed;
// the capture goroutine never blocks on a slow consumer.
package source

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sitewatch/internal/pipeline"
)

// Stats contains frame capture statistics
type Stats struct {
	FramesCaptured uint64 `json:"frames_captured"`
	FramesAccepted uint64 `json:"frames_accepted"`
	FramesShed     uint64 `json:"frames_shed"`
	LastFrameTime  int64  `json:"last_frame_time"` // Unix timestamp
}

// Config describes the camera device and capture settings
type Config struct {
	ID     string // Source identifier
	Device string // rtsp:// or http(s):// URL, or a V4L2 device path
	FPS    int
	Width  int
	Height int
}

// Camera captures frames from a single device
type Camera struct {
	cfg      Config
	consumer pipeline.FrameConsumer

	running   atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	cmd       *exec.Cmd
	cmdMu     sync.Mutex
	ffmpegOut io.ReadCloser

	frameSeq atomic.Uint64
	captured atomic.Uint64
	accepted atomic.Uint64
	shed     atomic.Uint64
	lastTime atomic.Int64
}

// New creates a camera source
func New(cfg Config) *Camera {
	if cfg.FPS <= 0 {
		cfg.FPS = 5
	}
	return &Camera{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start begins frame capture, pushing frames to the consumer. Fails when
// the device is not configured or the capture process cannot start.
func (c *Camera) Start(consumer pipeline.FrameConsumer) error {
	if c.cfg.Device == "" {
		return fmt.Errorf("camera device not configured")
	}
	if consumer == nil {
		return fmt.Errorf("frame consumer is required")
	}
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("camera %s already started", c.cfg.ID)
	}

	c.consumer = consumer

	if !c.isHTTPImageEndpoint() {
		// Fail setup when ffmpeg cannot launch at all; a pipeline
		// without frames should not pretend to be running.
		if err := c.startFFmpeg(); err != nil {
			c.running.Store(false)
			return err
		}
		c.wg.Add(1)
		go c.readFFmpeg()
	} else {
		c.wg.Add(1)
		go c.pollHTTPImages()
	}

	log.Printf("[Camera] Started capture for source %s (device: %s, fps: %d)", c.cfg.ID, c.cfg.Device, c.cfg.FPS)
	return nil
}

// Stop halts capture. No OnFrame calls are made after Stop returns.
func (c *Camera) Stop() error {
	if !c.running.Load() {
		return nil
	}
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.cmdMu.Lock()
	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	c.cmdMu.Unlock()

	c.wg.Wait()
	c.running.Store(false)

	log.Printf("[Camera] Stopped capture for source %s", c.cfg.ID)
	return nil
}

// IsRunning returns true while the source is actively capturing
func (c *Camera) IsRunning() bool {
	return c.running.Load()
}

// Stats returns a snapshot of the capture counters
func (c *Camera) Stats() Stats {
	return Stats{
		FramesCaptured: c.captured.Load(),
		FramesAccepted: c.accepted.Load(),
		FramesShed:     c.shed.Load(),
		LastFrameTime:  c.lastTime.Load(),
	}
}

func (c *Camera) isHTTPImageEndpoint() bool {
	d := c.cfg.Device
	return (strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://")) &&
		(strings.Contains(d, ".jpg") || strings.Contains(d, ".jpeg") || strings.Contains(d, "image"))
}

// isV4L2Device reports whether the device is a local V4L2 capture device.
// Only that path passes -video_size to ffmpeg; RTSP and HTTP streams emit
// frames at the stream's native resolution, so the configured dimensions
// must not be claimed for them.
func (c *Camera) isV4L2Device() bool {
	d := c.cfg.Device
	return !strings.HasPrefix(d, "rtsp://") && !strings.HasPrefix(d, "http://") && !strings.HasPrefix(d, "https://")
}

func (c *Camera) pollHTTPImages() {
	defer c.wg.Done()

	client := &http.Client{Timeout: 10 * time.Second}
	interval := time.Second / time.Duration(c.cfg.FPS)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			resp, err := client.Get(c.cfg.Device)
			if err != nil {
				log.Printf("[Camera] Error fetching frame from %s: %v", c.cfg.Device, err)
				continue
			}

			frame, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				log.Printf("[Camera] Error reading frame: %v", err)
				continue
			}

			c.pushFrame(frame)
		}
	}
}

func (c *Camera) startFFmpeg() error {
	var args []string

	switch {
	case strings.HasPrefix(c.cfg.Device, "rtsp://"):
		args = []string{
			"-rtsp_transport", "tcp",
			"-i", c.cfg.Device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", c.cfg.FPS),
			"-q:v", "5",
			"-",
		}
	case strings.HasPrefix(c.cfg.Device, "http://"), strings.HasPrefix(c.cfg.Device, "https://"):
		args = []string{
			"-i", c.cfg.Device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", c.cfg.FPS),
			"-q:v", "5",
			"-",
		}
	default:
		// V4L2 device (USB camera)
		args = []string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", c.cfg.Width, c.cfg.Height),
			"-framerate", fmt.Sprintf("%d", c.cfg.FPS),
			"-i", c.cfg.Device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		}
	}

	cmd := exec.Command("ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	// Consume stderr silently
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	c.cmdMu.Lock()
	c.cmd = cmd
	c.cmdMu.Unlock()
	c.ffmpegOut = stdout
	return nil
}

func (c *Camera) readFFmpeg() {
	defer c.wg.Done()

	frameBuffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)

	for {
		select {
		case <-c.stopCh:
			return
		default:
			n, err := c.ffmpegOut.Read(chunk)
			if err != nil {
				if err != io.EOF {
					log.Printf("[Camera] Error reading frame: %v", err)
				}
				return
			}

			frameBuffer = append(frameBuffer, chunk[:n]...)

			// Extract complete JPEG frames
			for {
				frame := extractJPEGFrame(&frameBuffer)
				if frame == nil {
					break
				}
				c.pushFrame(frame)
			}
		}
	}
}

func (c *Camera) pushFrame(data []byte) {
	seq := c.frameSeq.Add(1)
	now := time.Now()

	c.captured.Add(1)
	c.lastTime.Store(now.Unix())

	// Configured dimensions are only trustworthy when ffmpeg enforces
	// them on the device
	width, height := 0, 0
	if c.isV4L2Device() {
		width, height = c.cfg.Width, c.cfg.Height
	}

	accepted := c.consumer.OnFrame(&pipeline.Frame{
		SourceID:   c.cfg.ID,
		Data:       data,
		Seq:        seq,
		CapturedAt: now,
		Width:      width,
		Height:     height,
	})
	if accepted {
		c.accepted.Add(1)
	} else {
		c.shed.Add(1)
	}

	// Log progress every 100 frames
	if seq%100 == 0 {
		log.Printf("[Camera] Source %s: frame %d (%d accepted, %d shed)", c.cfg.ID, seq, c.accepted.Load(), c.shed.Load())
	}
}

// extractJPEGFrame extracts a complete JPEG frame from buffer
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	// Find JPEG start marker (FFD8)
	startIdx := -1
	for i := 0; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	// Find JPEG end marker (FFD9)
	endIdx := -1
	for i := startIdx + 2; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}

// Ensure Camera implements pipeline.FrameSource
var _ pipeline.FrameSource = (*Camera)(nil)
