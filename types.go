package vcam

import (
	"image"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/cadence"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/driver"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/queue"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/stream"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/timing"
)

type (
	// PixelFormat is a FourCC pixel layout
	PixelFormat = frame.PixelFormat
	// VideoFormat is pixel format, dimensions and supported frame rates
	VideoFormat = frame.VideoFormat
	// VideoFrame is an immutable raw frame
	VideoFrame = frame.VideoFrame
	// Scaling selects the resampling filter
	Scaling = frame.Scaling
	// AspectRatio selects how the source aspect is mapped onto the output
	AspectRatio = frame.AspectRatio

	// Time is a rational timestamp (Value/Scale seconds)
	Time = timing.Time
	// HostClock is the monotonic host time source
	HostClock = timing.HostClock

	// Sample is one timed frame delivered to the consumer
	Sample = queue.Sample
	// Queue is the bounded sample queue
	Queue = queue.BoundedFrameQueue
	// QueueAltered is called after every accepted sample
	QueueAltered = queue.QueueAltered

	// Scheduler runs the periodic emission callback
	Scheduler = driver.Scheduler
	// ClockListener receives pts/host-time pairs
	ClockListener = driver.ClockListener

	// Stats is a snapshot of the stream counters
	Stats = stream.Stats
	// CadenceStats describes the measured emission cadence
	CadenceStats = cadence.Stats
)

// Pixel formats
var (
	FormatRGB24  = frame.FormatRGB24
	FormatBGR24  = frame.FormatBGR24
	FormatRGBA32 = frame.FormatRGBA32
	FormatBGRA32 = frame.FormatBGRA32
	FormatYUY2   = frame.FormatYUY2
	FormatUYVY   = frame.FormatUYVY
	FormatNV12   = frame.FormatNV12
	FormatI420   = frame.FormatI420
)

// Scaling modes and aspect ratio policies
const (
	ScalingFast   = frame.ScalingFast
	ScalingLinear = frame.ScalingLinear

	AspectIgnore    = frame.AspectIgnore
	AspectKeep      = frame.AspectKeep
	AspectExpanding = frame.AspectExpanding
)

// NewFrame copies data into a new frame. Fails when data is shorter than
// the format requires.
func NewFrame(format PixelFormat, width, height int, data []byte) (VideoFrame, error) {
	return frame.New(format, width, height, data)
}

// FrameFromImage converts an image into a frame of the given pixel format
func FrameFromImage(img image.Image, format PixelFormat) VideoFrame {
	return frame.FromImage(img, format)
}
