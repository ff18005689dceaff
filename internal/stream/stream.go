// Package stream implements the stream controller: the configuration surface
// and lifecycle of one synthetic output stream.
package stream

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/cadence"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/driver"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/queue"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/slot"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/testframe"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/timing"
)

// Config configures a Controller. Zero values select defaults.
type Config struct {
	// QueueCapacity bounds the sample queue (default 30)
	QueueCapacity int
	// DriftThreshold in frame durations before pts resync (default 2)
	DriftThreshold int
	// CadenceWindow is the number of emissions used for cadence stats
	CadenceWindow int

	// TestFrame is the fallback image pipeline (default: built-in color bars)
	TestFrame *testframe.Pipeline
	HostClock timing.HostClock
	Scheduler driver.Scheduler
}

// Stats is a snapshot of the stream counters
type Stats struct {
	Running      bool    `json:"running" msgpack:"running"`
	Broadcasting bool    `json:"broadcasting" msgpack:"broadcasting"`
	Format       string  `json:"format" msgpack:"format"`
	FrameRate    float64 `json:"frame_rate" msgpack:"frame_rate"`

	Emitted         uint64 `json:"emitted" msgpack:"emitted"`
	QueueDrops      uint64 `json:"queue_drops" msgpack:"queue_drops"`
	SkippedTicks    uint64 `json:"skipped_ticks" msgpack:"skipped_ticks"`
	EmptyTicks      uint64 `json:"empty_ticks" msgpack:"empty_ticks"`
	Discontinuities uint64 `json:"discontinuities" msgpack:"discontinuities"`
	Sequence        uint64 `json:"sequence" msgpack:"sequence"`

	FramesAccepted uint64 `json:"frames_accepted" msgpack:"frames_accepted"`
	FramesDropped  uint64 `json:"frames_dropped" msgpack:"frames_dropped"`

	QueueLen      int     `json:"queue_len" msgpack:"queue_len"`
	QueueCap      int     `json:"queue_cap" msgpack:"queue_cap"`
	QueueFullness float64 `json:"queue_fullness" msgpack:"queue_fullness"`

	Cadence cadence.Stats `json:"cadence" msgpack:"cadence"`
}

// Controller owns one output stream: its configuration, the current-frame
// slot, the sample queue and the periodic driver.
//
// Setters are expected from a single configuration goroutine, but may race
// FrameReady (producer) and driver ticks; all shared state is synchronized.
type Controller struct {
	slot      *slot.CurrentFrameSlot
	queue     *queue.BoundedFrameQueue
	driver    *driver.Driver
	testFrame *testframe.Pipeline

	// regenMu serializes test-frame regeneration so generations install in order
	regenMu sync.Mutex

	mu         sync.Mutex
	opts       frame.Options
	formats    []frame.VideoFormat
	fps        float64
	generation uint64

	framesTransformFailed uint64
}

// New creates a stopped controller with default configuration
// (fast scaling, ignore aspect ratio, no mirror, not broadcasting).
func New(cfg Config) (*Controller, error) {
	if cfg.TestFrame == nil {
		cfg.TestFrame = testframe.New(nil)
	}

	c := &Controller{
		slot:      slot.New(),
		queue:     queue.New(cfg.QueueCapacity),
		testFrame: cfg.TestFrame,
		opts: frame.Options{
			Scaling: frame.ScalingFast,
			Aspect:  frame.AspectIgnore,
		},
	}

	d, err := driver.New(driver.Config{
		Source:         c.slot,
		Queue:          c.queue,
		HostClock:      cfg.HostClock,
		Scheduler:      cfg.Scheduler,
		DriftThreshold: cfg.DriftThreshold,
		CadenceWindow:  cfg.CadenceWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("vcam: stream: %w", err)
	}
	c.driver = d
	return c, nil
}

// SetFormats records the supported formats and selects the first one
func (c *Controller) SetFormats(formats []frame.VideoFormat) bool {
	if len(formats) == 0 {
		return false
	}
	c.mu.Lock()
	c.formats = append([]frame.VideoFormat(nil), formats...)
	c.mu.Unlock()
	return c.SetFormat(formats[0])
}

// SetFormat selects the output format and adopts its first frame rate.
// The slot is reset to the regenerated test frame so it never holds a frame
// of the previous format.
func (c *Controller) SetFormat(vf frame.VideoFormat) bool {
	if !vf.Valid() {
		slog.Warn("vcam: invalid format rejected", "format", vf.String())
		return false
	}

	c.mu.Lock()
	c.opts.Format = vf
	fps := c.fps
	if len(vf.FrameRates) > 0 && vf.FrameRates[0] > 0 {
		fps = vf.FrameRates[0]
	}
	c.fps = fps
	c.mu.Unlock()

	if fps > 0 {
		c.driver.SetFrameRate(fps)
	}
	c.refreshTestFrame(true, false)

	slog.Info("vcam: format set", "format", vf.String(), "fps", fps)
	return true
}

// SetFrameRate changes the emission rate; applied immediately when running
func (c *Controller) SetFrameRate(fps float64) bool {
	if !timing.FrameDuration(fps).Valid() {
		return false
	}
	c.mu.Lock()
	c.fps = fps
	c.mu.Unlock()
	return c.driver.SetFrameRate(fps)
}

// SetMirror sets horizontal and vertical mirroring
func (c *Controller) SetMirror(horizontal, vertical bool) {
	c.mu.Lock()
	if c.opts.HMirror == horizontal && c.opts.VMirror == vertical {
		c.mu.Unlock()
		return
	}
	c.opts.HMirror, c.opts.VMirror = horizontal, vertical
	c.mu.Unlock()
	c.refreshTestFrame(false, false)
}

// SetScaling sets the resampling mode
func (c *Controller) SetScaling(s frame.Scaling) {
	c.mu.Lock()
	if c.opts.Scaling == s {
		c.mu.Unlock()
		return
	}
	c.opts.Scaling = s
	c.mu.Unlock()
	c.refreshTestFrame(false, false)
}

// SetAspectRatio sets the aspect ratio policy
func (c *Controller) SetAspectRatio(a frame.AspectRatio) {
	c.mu.Lock()
	if c.opts.Aspect == a {
		c.mu.Unlock()
		return
	}
	c.opts.Aspect = a
	c.mu.Unlock()
	c.refreshTestFrame(false, false)
}

// SetBroadcasting switches between producer frames and the test frame
func (c *Controller) SetBroadcasting(on bool) {
	c.slot.SetBroadcasting(on)
	slog.Debug("vcam: broadcasting changed", "broadcasting", on)
}

// SetQueueAltered registers the consumer notification
func (c *Controller) SetQueueAltered(fn queue.QueueAltered) {
	c.queue.SetQueueAltered(fn)
}

// SetClockListener registers the host clock boundary
func (c *Controller) SetClockListener(l driver.ClockListener) {
	c.driver.SetListener(l)
}

// Start seeds the slot with the test frame and starts the driver.
// Returns false if already running or no valid format/frame rate is set.
func (c *Controller) Start() bool {
	if c.driver.Running() {
		return false
	}

	c.mu.Lock()
	format, fps := c.opts.Format, c.fps
	c.mu.Unlock()

	if !format.Valid() || fps <= 0 {
		slog.Warn("vcam: start rejected, no format negotiated",
			"format", format.String(),
			"fps", fps,
		)
		return false
	}

	c.refreshTestFrame(true, true)
	if !c.driver.Start(fps) {
		c.slot.Clear()
		c.testFrame.Clear()
		return false
	}

	slog.Info("vcam: stream started", "format", format.String(), "fps", fps)
	return true
}

// Stop stops the driver, clears the slot and the test-frame cache and flushes
// undelivered samples, so a restarted stream never queues sequence 0 behind
// samples of the previous run. Returns false if the stream was not running.
func (c *Controller) Stop() bool {
	if !c.driver.Stop() {
		return false
	}
	c.slot.Clear()
	c.testFrame.Clear()
	flushed := c.queue.Flush()

	slog.Info("vcam: stream stopped", "flushed", flushed)
	return true
}

// FrameReady hands a producer frame to the stream. No-op while stopped or
// not broadcasting. The transform runs on the caller's goroutine, outside
// any lock the driver takes.
func (c *Controller) FrameReady(f frame.VideoFrame) {
	if !c.driver.Running() || !c.slot.Broadcasting() {
		return
	}

	c.mu.Lock()
	opts, gen := c.opts, c.generation
	c.mu.Unlock()

	out := opts.Apply(f)
	if out.IsEmpty() {
		atomic.AddUint64(&c.framesTransformFailed, 1)
		slog.Debug("vcam: producer frame dropped, transform produced no output",
			"input", f.String(),
			"target", opts.Format.String(),
		)
		return
	}
	c.slot.Submit(out, gen)
}

// refreshTestFrame re-derives the test frame for the current configuration.
// It is installed in the slot when running (or starting); resetCurrent also
// replaces a producer frame held by the slot.
func (c *Controller) refreshTestFrame(resetCurrent, starting bool) {
	c.regenMu.Lock()
	defer c.regenMu.Unlock()

	c.mu.Lock()
	c.generation++
	opts, gen := c.opts, c.generation
	c.mu.Unlock()

	adapted := c.testFrame.Update(opts)
	if starting || c.driver.Running() {
		c.slot.SetFallback(adapted, gen, resetCurrent)
	}
}

// Queue returns the consumer side of the sample queue
func (c *Controller) Queue() *queue.BoundedFrameQueue { return c.queue }

// Running reports whether the driver is ticking
func (c *Controller) Running() bool { return c.driver.Running() }

// Broadcasting reports whether producer frames are accepted
func (c *Controller) Broadcasting() bool { return c.slot.Broadcasting() }

// Format returns the active output format
func (c *Controller) Format() frame.VideoFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.Format
}

// Formats returns the supported formats
func (c *Controller) Formats() []frame.VideoFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame.VideoFormat(nil), c.formats...)
}

// FrameRate returns the configured frame rate
func (c *Controller) FrameRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

// Mirror returns the horizontal and vertical mirror flags
func (c *Controller) Mirror() (horizontal, vertical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.HMirror, c.opts.VMirror
}

// Scaling returns the resampling mode
func (c *Controller) Scaling() frame.Scaling {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.Scaling
}

// AspectRatio returns the aspect ratio policy
func (c *Controller) AspectRatio() frame.AspectRatio {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.Aspect
}

// TestFrame returns the cached adapted test frame
func (c *Controller) TestFrame() frame.VideoFrame {
	return c.testFrame.Frame()
}

// CurrentFrame returns the frame the next tick would emit
func (c *Controller) CurrentFrame() frame.VideoFrame {
	return c.slot.Snapshot()
}

// Stats returns current stream statistics
func (c *Controller) Stats() Stats {
	ds := c.driver.Stats()
	accepted, rejected := c.slot.Counters()

	c.mu.Lock()
	format, fps := c.opts.Format, c.fps
	c.mu.Unlock()

	return Stats{
		Running:         c.driver.Running(),
		Broadcasting:    c.slot.Broadcasting(),
		Format:          format.String(),
		FrameRate:       fps,
		Emitted:         ds.Emitted,
		QueueDrops:      ds.QueueDrops,
		SkippedTicks:    ds.SkippedTicks,
		EmptyTicks:      ds.EmptyFrames,
		Discontinuities: ds.Discontinuities,
		Sequence:        ds.Sequence,
		FramesAccepted:  accepted,
		FramesDropped:   rejected + atomic.LoadUint64(&c.framesTransformFailed),
		QueueLen:        c.queue.Len(),
		QueueCap:        c.queue.Cap(),
		QueueFullness:   c.queue.Fullness(),
		Cadence:         ds.Cadence,
	}
}

// Close stops the stream and disposes the queue
func (c *Controller) Close() {
	c.Stop()
	c.queue.Dispose()
}
