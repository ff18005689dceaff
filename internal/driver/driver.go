// Package driver implements the periodic driver: one tick per frame
// interval turns the current slot frame into a timed sample and enqueues it.
package driver

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/cadence"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/queue"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/timing"
)

// FrameSource provides the frame to emit on each tick
type FrameSource interface {
	Snapshot() frame.VideoFrame
}

// SampleQueue is the consumer-facing queue the driver feeds.
// Offer stores a sample; Notify runs the consumer callback and is called
// after the driver lock is released.
type SampleQueue interface {
	Offer(s *queue.Sample) bool
	Notify(s *queue.Sample)
	Fullness() float64
}

// ClockListener receives one timing event per emitted sample.
// Called on the tick goroutine after the driver lock is released; it may
// call back into the stream but must not block.
type ClockListener interface {
	PostTimingEvent(pts, host timing.Time, resync bool)
}

// Config configures a Driver
type Config struct {
	Source    FrameSource
	Queue     SampleQueue
	HostClock timing.HostClock
	Scheduler Scheduler
	Listener  ClockListener

	// DriftThreshold in frame durations (0 selects timing.DefaultDriftThreshold)
	DriftThreshold int
	// CadenceWindow is the number of emissions tracked for cadence stats
	CadenceWindow int
}

// Stats is a snapshot of driver counters
type Stats struct {
	Ticks           uint64
	Emitted         uint64
	QueueDrops      uint64
	SkippedTicks    uint64
	EmptyFrames     uint64
	Discontinuities uint64
	Sequence        uint64
	LastPTS         timing.Time
	Cadence         cadence.Stats
}

// Driver turns slot snapshots into timed samples at the configured rate.
//
// Lifecycle: Stopped ⇄ Running. The lifecycle lock covers the tick up to
// the enqueue; consumer and clock notifications run after it is released.
// Stop waits for the in-flight tick, so no notification follows its return.
// Lock order is driver lock → slot lock, never the reverse. Running is read
// lock-free so producers and callbacks never wait on a tick.
type Driver struct {
	source    FrameSource
	queue     SampleQueue
	hostClock timing.HostClock
	scheduler Scheduler
	cadence   *cadence.Tracker

	mu       sync.Mutex
	running  atomic.Bool
	epoch    uint64
	fps      float64
	timer    Timer
	pts      *timing.PTSClock
	listener ClockListener

	// Statistics (atomic, read without the lifecycle lock)
	ticks           uint64
	emitted         uint64
	queueDrops      uint64
	skipped         uint64
	emptyFrames     uint64
	discontinuities uint64
	sequence        uint64
	lastPTS         atomic.Value // timing.Time
}

// New creates a stopped driver.
// Source and Queue are required; a nil HostClock or Scheduler selects the
// system clock and the ticker scheduler.
func New(cfg Config) (*Driver, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("vcam: driver: frame source is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("vcam: driver: queue is required")
	}
	if cfg.HostClock == nil {
		cfg.HostClock = timing.NewSystemClock()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = TickerScheduler{}
	}

	d := &Driver{
		source:    cfg.Source,
		queue:     cfg.Queue,
		hostClock: cfg.HostClock,
		scheduler: cfg.Scheduler,
		cadence:   cadence.NewTracker(cfg.CadenceWindow),
		pts:       timing.NewPTSClock(0, cfg.DriftThreshold),
		listener:  cfg.Listener,
	}
	d.lastPTS.Store(timing.Invalid)
	return d, nil
}

// SetListener replaces the clock listener (nil disables notifications)
func (d *Driver) SetListener(l ClockListener) {
	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()
}

// Start resets the timing state and starts ticking at fps.
// Returns false if already running or fps is not positive.
func (d *Driver) Start(fps float64) bool {
	duration := timing.FrameDuration(fps)
	if !duration.Valid() {
		slog.Warn("vcam: driver start rejected, invalid frame rate", "fps", fps)
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return false
	}

	d.fps = fps
	d.pts.SetFrameRate(fps)
	d.pts.Reset()
	atomic.StoreUint64(&d.sequence, 0)
	d.lastPTS.Store(timing.Invalid)
	d.cadence.Reset()

	d.running.Store(true)
	d.epoch++
	d.timer = d.schedule(duration)

	slog.Info("vcam: driver started",
		"fps", fps,
		"frame_duration", duration.String(),
	)
	return true
}

// Stop stops ticking. Safe from any state; after it returns no tick runs.
// Returns false if the driver was not running.
func (d *Driver) Stop() bool {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return false
	}
	d.running.Store(false)
	d.epoch++
	timer := d.timer
	d.timer = nil
	d.mu.Unlock()

	// The timer goroutine may be waiting on d.mu; it observes running=false
	// and returns, so waiting for it here cannot deadlock.
	if timer != nil {
		timer.Stop()
	}

	slog.Info("vcam: driver stopped",
		"emitted", atomic.LoadUint64(&d.emitted),
		"queue_drops", atomic.LoadUint64(&d.queueDrops),
	)
	return true
}

// Running reports whether the driver is ticking
func (d *Driver) Running() bool {
	return d.running.Load()
}

// SetFrameRate changes the tick rate. A running driver is rescheduled
// without resetting its timing state.
func (d *Driver) SetFrameRate(fps float64) bool {
	duration := timing.FrameDuration(fps)
	if !duration.Valid() {
		return false
	}

	d.mu.Lock()
	d.fps = fps
	d.pts.SetFrameRate(fps)
	var old Timer
	if d.running.Load() {
		d.epoch++
		old = d.timer
		d.timer = d.schedule(duration)
	}
	d.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return true
}

// FrameRate returns the configured tick rate
func (d *Driver) FrameRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fps
}

// schedule must be called with d.mu held
func (d *Driver) schedule(duration timing.Time) Timer {
	epoch := d.epoch
	return d.scheduler.Schedule(duration.Duration(), func() { d.tick(epoch) })
}

// tick emits at most one sample.
//
// Order: fullness check → snapshot → pts → package → enqueue → commit, under
// the driver lock; then consumer notification and timing event outside it.
// A rejected tick leaves the pts and the sequence untouched.
func (d *Driver) tick(epoch uint64) {
	s, listener := d.emit(epoch)
	if s == nil {
		return
	}

	d.queue.Notify(s)
	if listener != nil {
		listener.PostTimingEvent(s.PTS, s.HostTime, s.Discontinuity)
	}
}

// emit runs the locked part of a tick and returns the enqueued sample
func (d *Driver) emit(epoch uint64) (*queue.Sample, ClockListener) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() || epoch != d.epoch {
		return nil, nil
	}
	atomic.AddUint64(&d.ticks, 1)

	if d.queue.Fullness() >= 1 {
		atomic.AddUint64(&d.queueDrops, 1)
		slog.Debug("vcam: queue full, dropping tick", "sequence", d.pts.Sequence())
		return nil, nil
	}

	f := d.source.Snapshot()
	if f.IsEmpty() {
		atomic.AddUint64(&d.emptyFrames, 1)
		slog.Debug("vcam: no frame in slot, skipping tick")
		return nil, nil
	}

	host := d.hostClock.Now()
	pts, resync, ok := d.pts.Next(host)
	if !ok {
		atomic.AddUint64(&d.skipped, 1)
		slog.Debug("vcam: host time equals last pts, skipping tick", "host", host.String())
		return nil, nil
	}

	format := f.VideoFormat()
	format.FrameRates = []float64{d.fps}
	s := &queue.Sample{
		ID:            uuid.New(),
		Sequence:      d.pts.Sequence(),
		PTS:           pts,
		Duration:      d.pts.FrameDuration(),
		HostTime:      host,
		Discontinuity: resync,
		Format:        format,
		Data:          bytes.Clone(f.Data()),
	}

	if !d.queue.Offer(s) {
		atomic.AddUint64(&d.queueDrops, 1)
		slog.Debug("vcam: queue rejected sample", "sequence", s.Sequence)
		return nil, nil
	}

	d.pts.Commit(pts)
	atomic.StoreUint64(&d.sequence, d.pts.Sequence())
	d.lastPTS.Store(pts)
	atomic.AddUint64(&d.emitted, 1)
	d.cadence.Record(host.Duration())

	if resync {
		atomic.AddUint64(&d.discontinuities, 1)
		slog.Debug("vcam: pts resynchronized to host time",
			"pts", pts.String(),
			"sequence", s.Sequence,
		)
	}
	return s, d.listener
}

// Stats returns current counters.
// Thread-safe - uses atomic operations for counters.
func (d *Driver) Stats() Stats {
	return Stats{
		Ticks:           atomic.LoadUint64(&d.ticks),
		Emitted:         atomic.LoadUint64(&d.emitted),
		QueueDrops:      atomic.LoadUint64(&d.queueDrops),
		SkippedTicks:    atomic.LoadUint64(&d.skipped),
		EmptyFrames:     atomic.LoadUint64(&d.emptyFrames),
		Discontinuities: atomic.LoadUint64(&d.discontinuities),
		Sequence:        atomic.LoadUint64(&d.sequence),
		LastPTS:         d.lastPTS.Load().(timing.Time),
		Cadence:         d.cadence.Stats(),
	}
}
