package vcam

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrDeviceClosed is returned by AddStream after Close
var ErrDeviceClosed = errors.New("vcam: device closed")

// Registrar is the host registration boundary: it publishes streams to
// whatever exposes them (a capture subsystem, a service registry).
type Registrar interface {
	Register(id uuid.UUID, s Stream) error
	Unregister(id uuid.UUID)
}

// NopRegistrar registers nothing
type NopRegistrar struct{}

func (NopRegistrar) Register(uuid.UUID, Stream) error { return nil }
func (NopRegistrar) Unregister(uuid.UUID)             {}

// Device owns a set of streams. Streams never control the device lifetime:
// closing the device stops and unregisters every stream.
type Device struct {
	registrar Registrar

	mu      sync.Mutex
	streams map[uuid.UUID]Stream
	closed  bool
}

// NewDevice creates a device. A nil registrar selects NopRegistrar.
func NewDevice(registrar Registrar) *Device {
	if registrar == nil {
		registrar = NopRegistrar{}
	}
	return &Device{
		registrar: registrar,
		streams:   make(map[uuid.UUID]Stream),
	}
}

// AddStream creates a stream and registers it
func (d *Device) AddStream(cfg Config) (Stream, error) {
	s, err := NewStream(cfg)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		closeStream(s)
		return nil, ErrDeviceClosed
	}

	if err := d.registrar.Register(s.ID(), s); err != nil {
		closeStream(s)
		return nil, fmt.Errorf("vcam: register stream: %w", err)
	}
	d.streams[s.ID()] = s

	slog.Info("vcam: stream added", "stream_id", s.ID().String())
	return s, nil
}

// RemoveStream stops, unregisters and disposes a stream.
// Returns false if the id is unknown.
func (d *Device) RemoveStream(id uuid.UUID) bool {
	d.mu.Lock()
	s, ok := d.streams[id]
	delete(d.streams, id)
	d.mu.Unlock()

	if !ok {
		return false
	}
	d.registrar.Unregister(id)
	closeStream(s)

	slog.Info("vcam: stream removed", "stream_id", id.String())
	return true
}

// Stream returns the stream with the given id
func (d *Device) Stream(id uuid.UUID) (Stream, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[id]
	return s, ok
}

// Streams returns all streams ordered by id
func (d *Device) Streams() []Stream {
	d.mu.Lock()
	out := make([]Stream, 0, len(d.streams))
	for _, s := range d.streams {
		out = append(out, s)
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

// Close stops and unregisters every stream. Idempotent.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	streams := d.streams
	d.streams = make(map[uuid.UUID]Stream)
	d.mu.Unlock()

	for id, s := range streams {
		d.registrar.Unregister(id)
		closeStream(s)
	}
	slog.Info("vcam: device closed", "streams", len(streams))
}

// closeStream stops the stream and disposes its queue
func closeStream(s Stream) {
	if c, ok := s.(interface{ Close() }); ok {
		c.Close()
		return
	}
	s.Stop()
}
