package driver

import (
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/queue"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/slot"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/timing"
)

const interval30 = 33_333_333 * time.Nanosecond

type timingEvent struct {
	pts, host timing.Time
	resync    bool
}

type recordingListener struct {
	mu     sync.Mutex
	events []timingEvent
}

func (r *recordingListener) PostTimingEvent(pts, host timing.Time, resync bool) {
	r.mu.Lock()
	r.events = append(r.events, timingEvent{pts, host, resync})
	r.mu.Unlock()
}

type harness struct {
	driver    *Driver
	slot      *slot.CurrentFrameSlot
	queue     *queue.BoundedFrameQueue
	clock     *timing.ManualClock
	scheduler *ManualScheduler
	listener  *recordingListener
}

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()
	h := &harness{
		slot:      slot.New(),
		queue:     queue.New(capacity),
		clock:     timing.NewManualClock(time.Second),
		scheduler: NewManualScheduler(),
		listener:  &recordingListener{},
	}
	d, err := New(Config{
		Source:    h.slot,
		Queue:     h.queue,
		HostClock: h.clock,
		Scheduler: h.scheduler,
		Listener:  h.listener,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	h.driver = d

	data := make([]byte, frame.FormatRGB24.ByteSize(8, 8))
	f, _ := frame.New(frame.FormatRGB24, 8, 8, data)
	h.slot.SetFallback(f, 0, true)
	return h
}

// tick advances the host clock by one frame interval and fires the timer
func (h *harness) tick(t *testing.T) {
	t.Helper()
	h.clock.Advance(interval30)
	if !h.scheduler.Tick() {
		t.Fatal("no tick scheduled")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Queue: queue.New(1)}); err == nil {
		t.Error("expected error without source")
	}
	if _, err := New(Config{Source: slot.New()}); err == nil {
		t.Error("expected error without queue")
	}
}

func TestLifecycle(t *testing.T) {
	h := newHarness(t, 30)

	if h.driver.Stop() {
		t.Error("Stop on stopped driver returned true")
	}
	if h.driver.Start(0) {
		t.Error("Start with fps 0 returned true")
	}
	if !h.driver.Start(30) {
		t.Fatal("Start returned false")
	}
	if h.driver.Start(30) {
		t.Error("second Start returned true")
	}
	if !h.driver.Running() {
		t.Error("Running() = false after Start")
	}
	if got := h.scheduler.Interval(); got != interval30 {
		t.Errorf("scheduled interval = %v, want %v", got, interval30)
	}
	if !h.driver.Stop() {
		t.Error("Stop returned false")
	}
	if h.driver.Stop() {
		t.Error("second Stop returned true")
	}
	if h.scheduler.Active() {
		t.Error("timer still scheduled after Stop")
	}
}

// TestSequenceContiguity: every emitted sample carries seq = previous + 1
// and pts = previous + one frame duration in steady state
func TestSequenceContiguity(t *testing.T) {
	h := newHarness(t, 100)
	h.driver.Start(30)
	defer h.driver.Stop()

	for i := 0; i < 60; i++ {
		h.tick(t)
	}

	var prev *queue.Sample
	for i := 0; i < 60; i++ {
		s, ok := h.queue.TryDequeue()
		if !ok {
			t.Fatalf("sample %d missing", i)
		}
		if s.Sequence != uint64(i) {
			t.Fatalf("sample %d has sequence %d", i, s.Sequence)
		}
		if i == 0 && !s.Discontinuity {
			t.Error("first sample must be flagged as discontinuity")
		}
		if prev != nil {
			if s.Discontinuity {
				t.Errorf("sample %d: unexpected discontinuity", i)
			}
			if s.PTS.Compare(prev.PTS.Add(timing.Time{Value: 1, Scale: 30})) != 0 {
				t.Errorf("sample %d: pts %s, want %s + 1/30", i, s.PTS, prev.PTS)
			}
		}
		if s.Duration != (timing.Time{Value: 1, Scale: 30}) {
			t.Errorf("sample %d: duration %s", i, s.Duration)
		}
		prev = s
	}

	stats := h.driver.Stats()
	if stats.Emitted != 60 || stats.Sequence != 60 || stats.Discontinuities != 1 {
		t.Errorf("stats = %+v", stats)
	}
	t.Logf("✅ 60 samples, contiguous sequence, steady pts")
}

// TestSkipOnEqualHostTime: a tick at the same host time as the last pts emits nothing
func TestSkipOnEqualHostTime(t *testing.T) {
	h := newHarness(t, 30)
	h.driver.Start(30)
	defer h.driver.Stop()

	h.scheduler.Tick()
	h.scheduler.Tick() // clock not advanced

	if h.queue.Len() != 1 {
		t.Errorf("queue len = %d, want 1", h.queue.Len())
	}
	if s := h.driver.Stats(); s.SkippedTicks != 1 || s.Sequence != 1 {
		t.Errorf("skipped=%d sequence=%d, want 1/1", s.SkippedTicks, s.Sequence)
	}
}

// TestConsumerStall: 40 ticks against a stalled consumer with capacity 30.
// 30 samples are queued, 10 ticks dropped; after draining, emission resumes
// with the next sequence number and a discontinuity (host ran ahead).
func TestConsumerStall(t *testing.T) {
	h := newHarness(t, 30)
	h.driver.Start(30)
	defer h.driver.Stop()

	for i := 0; i < 40; i++ {
		h.tick(t)
	}

	stats := h.driver.Stats()
	if h.queue.Len() != 30 {
		t.Fatalf("queue len = %d, want 30", h.queue.Len())
	}
	if stats.Emitted != 30 || stats.QueueDrops != 10 {
		t.Fatalf("emitted=%d drops=%d, want 30/10", stats.Emitted, stats.QueueDrops)
	}

	for i := 0; i < 30; i++ {
		h.queue.TryDequeue()
	}

	h.tick(t)
	s, ok := h.queue.TryDequeue()
	if !ok {
		t.Fatal("no sample after drain")
	}
	if s.Sequence != 30 {
		t.Errorf("resumed sequence = %d, want 30", s.Sequence)
	}
	if !s.Discontinuity {
		t.Error("resumed sample must be a discontinuity (host ran 11 frames ahead)")
	}
	if s.PTS.Compare(s.HostTime) != 0 {
		t.Errorf("resynced pts %s != host %s", s.PTS, s.HostTime)
	}

	t.Logf("✅ stall: 30 queued, 10 dropped, resumed at seq %d with discontinuity", s.Sequence)
}

// TestHostTimeJump: a 5s host jump produces one discontinuity, then steady state
func TestHostTimeJump(t *testing.T) {
	h := newHarness(t, 100)
	h.driver.Start(30)
	defer h.driver.Stop()

	for i := 0; i < 5; i++ {
		h.tick(t)
	}
	h.clock.Advance(5 * time.Second)
	for i := 0; i < 5; i++ {
		h.tick(t)
	}

	h.listener.mu.Lock()
	events := append([]timingEvent(nil), h.listener.events...)
	h.listener.mu.Unlock()

	if len(events) != 10 {
		t.Fatalf("listener saw %d events, want 10", len(events))
	}
	for i, ev := range events {
		want := i == 0 || i == 5
		if ev.resync != want {
			t.Errorf("event %d: resync=%v, want %v", i, ev.resync, want)
		}
	}
	if events[5].pts.Compare(events[5].host) != 0 {
		t.Errorf("jump pts %s != host %s", events[5].pts, events[5].host)
	}
	if s := h.driver.Stats(); s.Discontinuities != 2 {
		t.Errorf("discontinuities = %d, want 2", s.Discontinuities)
	}
}

func TestEmptySlotSkips(t *testing.T) {
	h := newHarness(t, 30)
	h.slot.Clear()
	h.driver.Start(30)
	defer h.driver.Stop()

	h.tick(t)
	if h.queue.Len() != 0 {
		t.Error("empty slot produced a sample")
	}
	if s := h.driver.Stats(); s.EmptyFrames != 1 || s.Sequence != 0 {
		t.Errorf("stats = %+v", s)
	}
}

// TestSampleOwnsData: samples carry a private copy of the slot frame
func TestSampleOwnsData(t *testing.T) {
	h := newHarness(t, 30)
	h.driver.Start(30)
	defer h.driver.Stop()

	h.tick(t)
	s, _ := h.queue.TryDequeue()
	f := h.slot.Snapshot()

	if &s.Data[0] == &f.Data()[0] {
		t.Error("sample shares the slot frame buffer")
	}
	if !s.Format.Equal(f.VideoFormat()) {
		t.Errorf("sample format %s, want %s", s.Format, f.VideoFormat())
	}
	if len(s.Format.FrameRates) != 1 || s.Format.FrameRates[0] != 30 {
		t.Errorf("sample frame rates = %v", s.Format.FrameRates)
	}
}

func TestStartResetsTiming(t *testing.T) {
	h := newHarness(t, 100)
	h.driver.Start(30)
	h.tick(t)
	h.tick(t)
	h.driver.Stop()
	h.queue.Flush()

	h.driver.Start(30)
	defer h.driver.Stop()
	h.tick(t)

	s, _ := h.queue.TryDequeue()
	if s.Sequence != 0 || !s.Discontinuity {
		t.Errorf("after restart: sequence=%d discont=%v, want 0/true", s.Sequence, s.Discontinuity)
	}
}

func TestSetFrameRate_Reschedules(t *testing.T) {
	h := newHarness(t, 30)
	h.driver.Start(30)
	defer h.driver.Stop()

	if !h.driver.SetFrameRate(25) {
		t.Fatal("SetFrameRate returned false")
	}
	if got := h.scheduler.Interval(); got != 40*time.Millisecond {
		t.Errorf("interval = %v, want 40ms", got)
	}
	if h.driver.SetFrameRate(-1) {
		t.Error("SetFrameRate(-1) returned true")
	}
}

// TestStop_NoTickAfterReturn uses the real ticker scheduler
func TestStop_NoTickAfterReturn(t *testing.T) {
	s := slot.New()
	data := make([]byte, frame.FormatRGB24.ByteSize(4, 4))
	f, _ := frame.New(frame.FormatRGB24, 4, 4, data)
	s.SetFallback(f, 0, true)

	q := queue.New(1000)
	d, err := New(Config{Source: s, Queue: q})
	if err != nil {
		t.Fatal(err)
	}

	d.Start(200)
	time.Sleep(100 * time.Millisecond)
	d.Stop()

	emitted := d.Stats().Emitted
	time.Sleep(50 * time.Millisecond)

	if got := d.Stats().Emitted; got != emitted {
		t.Errorf("emitted changed after Stop: %d → %d", emitted, got)
	}
	if emitted == 0 {
		t.Error("ticker never fired")
	}
	t.Logf("✅ %d samples before Stop, none after", emitted)
}

type reentrantListener struct {
	driver  *Driver
	running []bool
}

func (r *reentrantListener) PostTimingEvent(pts, host timing.Time, resync bool) {
	r.running = append(r.running, r.driver.Running())
	_ = r.driver.Stats()
}

// TestNotifications_OutsideDriverLock: consumer and clock callbacks may call
// back into the driver without deadlocking the tick
func TestNotifications_OutsideDriverLock(t *testing.T) {
	h := newHarness(t, 10)
	listener := &reentrantListener{driver: h.driver}
	h.driver.SetListener(listener)

	var frameRates []float64
	h.queue.SetQueueAltered(func(*queue.Sample) {
		frameRates = append(frameRates, h.driver.FrameRate())
	})

	h.driver.Start(30)
	defer h.driver.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			h.clock.Advance(interval30)
			h.scheduler.Tick()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick blocked on a re-entrant callback")
	}

	if len(frameRates) != 3 || len(listener.running) != 3 || !listener.running[2] {
		t.Errorf("notifications: altered=%v listener=%v", frameRates, listener.running)
	}
	t.Logf("✅ %d ticks with re-entrant callbacks", len(frameRates))
}
