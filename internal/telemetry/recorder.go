// Package telemetry implements the host clock boundary of the stream and
// publishes timing events and periodic statistics over MQTT.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/timing"
)

// TimingEvent is one pts/host-time pair reported by the driver
type TimingEvent struct {
	InstanceID string `json:"instance_id" msgpack:"instance_id"`
	PTSValue   int64  `json:"pts_value" msgpack:"pts_value"`
	PTSScale   int64  `json:"pts_scale" msgpack:"pts_scale"`
	HostNS     int64  `json:"host_ns" msgpack:"host_ns"`
	Resync     bool   `json:"resync" msgpack:"resync"`
	Timestamp  int64  `json:"timestamp_ms" msgpack:"timestamp_ms"`
}

// TimingPublisher publishes timing events
type TimingPublisher interface {
	PublishTiming(ev TimingEvent) error
}

// TimingState is a snapshot of the recorder
type TimingState struct {
	LastPTS         timing.Time
	LastHost        timing.Time
	Events          uint64
	Discontinuities uint64
	Dropped         uint64
}

// TimingRecorder implements the driver's clock listener.
//
// PostTimingEvent runs on the driver's tick goroutine, which must stay on
// schedule, so it only records state and hands discontinuities to a bounded channel; Run
// publishes them on its own goroutine. Events are dropped when the channel
// is full.
type TimingRecorder struct {
	instanceID string
	publisher  TimingPublisher
	pending    chan TimingEvent

	mu       sync.Mutex
	lastPTS  timing.Time
	lastHost timing.Time

	events          uint64
	discontinuities uint64
	dropped         uint64
}

// NewTimingRecorder creates a recorder. A nil publisher only records state.
func NewTimingRecorder(instanceID string, publisher TimingPublisher, buffer int) *TimingRecorder {
	if buffer <= 0 {
		buffer = 64
	}
	return &TimingRecorder{
		instanceID: instanceID,
		publisher:  publisher,
		pending:    make(chan TimingEvent, buffer),
	}
}

// PostTimingEvent implements driver.ClockListener
func (r *TimingRecorder) PostTimingEvent(pts, host timing.Time, resync bool) {
	r.mu.Lock()
	r.lastPTS, r.lastHost = pts, host
	r.mu.Unlock()

	atomic.AddUint64(&r.events, 1)
	if !resync {
		return
	}
	atomic.AddUint64(&r.discontinuities, 1)

	if r.publisher == nil {
		return
	}
	ev := TimingEvent{
		InstanceID: r.instanceID,
		PTSValue:   pts.Value,
		PTSScale:   pts.Scale,
		HostNS:     int64(host.Duration()),
		Resync:     resync,
		Timestamp:  time.Now().UnixMilli(),
	}
	select {
	case r.pending <- ev:
	default:
		atomic.AddUint64(&r.dropped, 1)
	}
}

// Run publishes pending discontinuity events until ctx is done
func (r *TimingRecorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.pending:
			if r.publisher == nil {
				continue
			}
			if err := r.publisher.PublishTiming(ev); err != nil {
				slog.Debug("telemetry: timing event not published", "error", err)
			}
		}
	}
}

// State returns the current recorder state
func (r *TimingRecorder) State() TimingState {
	r.mu.Lock()
	pts, host := r.lastPTS, r.lastHost
	r.mu.Unlock()

	return TimingState{
		LastPTS:         pts,
		LastHost:        host,
		Events:          atomic.LoadUint64(&r.events),
		Discontinuities: atomic.LoadUint64(&r.discontinuities),
		Dropped:         atomic.LoadUint64(&r.dropped),
	}
}
