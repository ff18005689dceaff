package driver

import (
	"sync"
	"time"
)

// Timer is a scheduled periodic callback
type Timer interface {
	// Stop cancels the timer and waits for an in-flight callback to return.
	// Idempotent.
	Stop()
}

// Scheduler runs fn every interval until the returned Timer is stopped
type Scheduler interface {
	Schedule(interval time.Duration, fn func()) Timer
}

// TickerScheduler runs callbacks on a dedicated goroutine driven by time.Ticker.
// Ticks that fire while a callback is still running are coalesced.
type TickerScheduler struct{}

// Schedule implements Scheduler
func (TickerScheduler) Schedule(interval time.Duration, fn func()) Timer {
	t := &tickerTimer{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run(fn)
	return t
}

type tickerTimer struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (t *tickerTimer) run(fn func()) {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			fn()
		}
	}
}

func (t *tickerTimer) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
	t.wg.Wait()
}

// ManualScheduler fires callbacks only when Tick is called.
// Used for deterministic tests of the driver and the stream controller.
type ManualScheduler struct {
	mu       sync.Mutex
	fn       func()
	interval time.Duration
	active   *manualTimer
}

// NewManualScheduler creates an idle manual scheduler
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule implements Scheduler; it replaces any previously scheduled callback
func (m *ManualScheduler) Schedule(interval time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{owner: m}
	m.fn = fn
	m.interval = interval
	m.active = t
	return t
}

// Tick runs the scheduled callback once on the caller's goroutine.
// Returns false when nothing is scheduled.
func (m *ManualScheduler) Tick() bool {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Interval returns the interval of the scheduled callback (0 when idle)
func (m *ManualScheduler) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Active reports whether a callback is scheduled
func (m *ManualScheduler) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fn != nil
}

type manualTimer struct {
	owner *ManualScheduler
}

func (t *manualTimer) Stop() {
	m := t.owner
	m.mu.Lock()
	if m.active == t {
		m.fn = nil
		m.interval = 0
		m.active = nil
	}
	m.mu.Unlock()
}
