package vcam

import (
	"fmt"
	"image"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/stream"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/testframe"
)

// Stream defines the contract of one synthetic output stream
//
// Implementations guarantee:
//   - Setters are safe to call while the stream runs and while a producer
//     calls FrameReady concurrently
//   - Start/Stop are idempotent and report whether they changed anything
//   - No sample is enqueued after Stop returns
//   - Stats is thread-safe
type Stream interface {
	// ID identifies the stream within its Device
	ID() uuid.UUID

	// SetFormats records the supported formats and selects the first one.
	// Returns false when formats is empty or the first format is invalid.
	SetFormats(formats []VideoFormat) bool

	// SetFormat selects the output format and adopts its first frame rate.
	//
	// Allowed while running: the current frame is replaced by the test frame
	// regenerated in the new format, so no sample of the previous format is
	// emitted afterwards.
	SetFormat(vf VideoFormat) bool

	// SetFrameRate changes the emission rate without restarting the stream
	SetFrameRate(fps float64) bool

	SetMirror(horizontal, vertical bool)
	SetScaling(s Scaling)
	SetAspectRatio(a AspectRatio)

	// SetBroadcasting switches between producer frames (true) and the test
	// frame (false). Turning it off restores the test frame immediately.
	SetBroadcasting(on bool)

	// SetQueueAltered registers the consumer notification. The callback runs
	// on the timer goroutine and must not block.
	SetQueueAltered(fn QueueAltered)

	// SetClockListener registers the host clock boundary. The listener runs
	// on the timer goroutine and must not block.
	SetClockListener(l ClockListener)

	// Start seeds the current frame with the test frame and starts emitting.
	//
	// Returns false if already running or no format has been negotiated.
	Start() bool

	// Stop stops emitting and releases the current frame.
	//
	// Returns false if the stream was not running.
	Stop() bool

	// FrameReady hands a producer frame to the stream. The frame is mirrored,
	// scaled and converted to the output format on the caller's goroutine.
	// Ignored while stopped or not broadcasting.
	FrameReady(f VideoFrame)

	// Queue returns the consumer side of the sample queue
	Queue() *Queue

	Running() bool
	Broadcasting() bool
	Format() VideoFormat
	Formats() []VideoFormat
	FrameRate() float64
	Mirror() (horizontal, vertical bool)
	Scaling() Scaling
	AspectRatio() AspectRatio

	// CurrentFrame returns the frame the next tick would emit
	CurrentFrame() VideoFrame

	// Stats returns current stream statistics
	Stats() Stats
}

// Config contains configuration for a stream. Zero values select defaults.
type Config struct {
	// QueueCapacity bounds the sample queue (default 30)
	QueueCapacity int
	// DriftThreshold is the pts/host drift, in frame durations, that forces a resync (default 2)
	DriftThreshold int
	// CadenceWindow is the number of recent emissions used for cadence stats (default 120)
	CadenceWindow int
	// TestFrame is the image emitted when no producer frame is available
	// (default: built-in color bars)
	TestFrame image.Image
	// HostClock overrides the monotonic host clock (tests)
	HostClock HostClock
	// Scheduler overrides the periodic timer (tests)
	Scheduler Scheduler
}

type streamHandle struct {
	*stream.Controller
	id uuid.UUID
}

func (s *streamHandle) ID() uuid.UUID { return s.id }

// NewStream creates a stopped stream that is not attached to a Device
func NewStream(cfg Config) (Stream, error) {
	var pipeline *testframe.Pipeline
	if cfg.TestFrame != nil {
		pipeline = testframe.New(cfg.TestFrame)
	}

	ctrl, err := stream.New(stream.Config{
		QueueCapacity:  cfg.QueueCapacity,
		DriftThreshold: cfg.DriftThreshold,
		CadenceWindow:  cfg.CadenceWindow,
		TestFrame:      pipeline,
		HostClock:      cfg.HostClock,
		Scheduler:      cfg.Scheduler,
	})
	if err != nil {
		return nil, fmt.Errorf("vcam: %w", err)
	}
	return &streamHandle{Controller: ctrl, id: uuid.New()}, nil
}
