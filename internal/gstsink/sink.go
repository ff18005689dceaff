// Package gstsink is the production consumer of the sample queue: it pushes
// timed samples into a GStreamer appsrc pipeline.
package gstsink

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/queue"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/timing"
)

// SampleSource is the consumer side of the sample queue
type SampleSource interface {
	TryDequeue() (*queue.Sample, bool)
}

// Config configures a Sink
type Config struct {
	// Element is the output element factory name (v4l2sink, fakesink, ...)
	Element    string
	Properties map[string]string
	Reconnect  ReconnectConfig
}

// Stats contains sink statistics
type Stats struct {
	Pushed     uint64
	Failed     uint64
	Discont    uint64
	CapsSet    uint64
	Reconnects uint64
	Errors     map[string]uint64
}

// Sink drains the sample queue into a GStreamer pipeline
type Sink struct {
	cfg  Config
	wake chan struct{}

	pushed     uint64
	failed     uint64
	discont    uint64
	capsSet    uint64
	reconnects uint64
	errCounts  [ErrCategoryUnknown + 1]uint64
}

// New creates a Sink
func New(cfg Config) (*Sink, error) {
	if cfg.Element == "" {
		return nil, fmt.Errorf("gstsink: element is required")
	}
	if cfg.Reconnect.MaxRetries <= 0 {
		cfg.Reconnect = DefaultReconnectConfig()
	}
	return &Sink{
		cfg:  cfg,
		wake: make(chan struct{}, 1),
	}, nil
}

// Notify is the queue.QueueAltered callback. It runs on the driver tick
// and only posts a wake-up signal.
func (s *Sink) Notify(*queue.Sample) {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drains src until ctx is done, rebuilding the pipeline on errors.
// The pipeline is built lazily from the first sample's format.
func (s *Sink) Run(ctx context.Context, src SampleSource) error {
	slog.Info("gstsink: starting", "element", s.cfg.Element)

	err := runWithReconnect(ctx, func(ctx context.Context) (bool, error) {
		return s.session(ctx, src)
	}, s.cfg.Reconnect, func(int) {
		atomic.AddUint64(&s.reconnects, 1)
	})

	slog.Info("gstsink: stopped",
		"pushed", atomic.LoadUint64(&s.pushed),
		"failed", atomic.LoadUint64(&s.failed),
	)
	return err
}

// session builds one pipeline and pushes samples until an error occurs
func (s *Sink) session(ctx context.Context, src SampleSource) (bool, error) {
	first, err := s.waitSample(ctx, src)
	if err != nil || first == nil {
		return false, err
	}

	writer := newBufferWriter()
	caps := buildCaps(first.Format, first.Duration)

	elements, err := createPipeline(s.cfg.Element, s.cfg.Properties, caps)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := destroyPipeline(elements); err != nil {
			slog.Warn("gstsink: pipeline cleanup failed", "error", err)
		}
	}()
	writer.caps = caps
	atomic.AddUint64(&s.capsSet, 1)

	if err := elements.pipeline.SetState(gst.StatePlaying); err != nil {
		return false, fmt.Errorf("failed to start pipeline: %w", err)
	}

	busCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var playing atomic.Bool
	busErr := make(chan error, 1)
	go func() {
		busErr <- s.monitorBus(busCtx, elements.pipeline, &playing)
	}()

	sample := first
	for {
		if sample != nil {
			if err := s.push(elements, writer, sample); err != nil {
				return playing.Load(), err
			}
		}

		next, ok := src.TryDequeue()
		if ok {
			sample = next
			continue
		}
		sample = nil

		select {
		case <-ctx.Done():
			elements.src.EndStream()
			return playing.Load(), nil
		case err := <-busErr:
			return playing.Load(), err
		case <-s.wake:
		case <-time.After(time.Second):
			// Missed wake-ups only delay draining
		}
	}
}

// waitSample blocks until a sample is available or ctx is done
func (s *Sink) waitSample(ctx context.Context, src SampleSource) (*queue.Sample, error) {
	for {
		if sample, ok := src.TryDequeue(); ok {
			return sample, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-s.wake:
		case <-time.After(time.Second):
		}
	}
}

func (s *Sink) push(elements *pipelineElements, w *bufferWriter, sample *queue.Sample) error {
	if caps := buildCaps(sample.Format, sample.Duration); caps != w.caps {
		elements.src.SetCaps(gst.NewCapsFromString(caps))
		w.caps = caps
		atomic.AddUint64(&s.capsSet, 1)
		slog.Info("gstsink: caps updated", "caps", caps)
	}

	pts, discont := w.timestamp(sample)

	buf := gst.NewBufferFromBytes(sample.Data)
	buf.SetPresentationTimestamp(pts)
	if sample.Duration.Valid() {
		buf.SetDuration(sample.Duration.Duration())
	}
	if discont {
		buf.SetFlags(gst.BufferFlagDiscont)
		atomic.AddUint64(&s.discont, 1)
	}

	if ret := elements.src.PushBuffer(buf); ret != gst.FlowOK {
		atomic.AddUint64(&s.failed, 1)
		if ret == gst.FlowFlushing {
			return nil
		}
		return fmt.Errorf("push buffer: %v", ret)
	}
	atomic.AddUint64(&s.pushed, 1)
	return nil
}

// monitorBus polls the pipeline bus until an error/EOS or ctx is done
func (s *Sink) monitorBus(ctx context.Context, pipeline *gst.Pipeline, playing *atomic.Bool) error {
	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			return fmt.Errorf("end of stream")

		case gst.MessageError:
			gerr := msg.ParseError()
			category := classifyGError(gerr)
			atomic.AddUint64(&s.errCounts[category], 1)

			slog.Error("gstsink: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"element", s.cfg.Element,
			)
			return fmt.Errorf("pipeline error [%s]: %s", category, gerr.Error())

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				_, newState := msg.ParseStateChanged()
				if newState == gst.StatePlaying {
					playing.Store(true)
					slog.Info("gstsink: pipeline playing")
				}
			}
		}
	}
}

// Stats returns sink statistics
func (s *Sink) Stats() Stats {
	errs := make(map[string]uint64, len(s.errCounts))
	for i := range s.errCounts {
		errs[ErrorCategory(i).String()] = atomic.LoadUint64(&s.errCounts[i])
	}
	return Stats{
		Pushed:     atomic.LoadUint64(&s.pushed),
		Failed:     atomic.LoadUint64(&s.failed),
		Discont:    atomic.LoadUint64(&s.discont),
		CapsSet:    atomic.LoadUint64(&s.capsSet),
		Reconnects: atomic.LoadUint64(&s.reconnects),
		Errors:     errs,
	}
}

// bufferWriter maps sample timestamps onto the pipeline's running time.
// The first sample of a session maps to zero.
type bufferWriter struct {
	base timing.Time
	last time.Duration
	caps string
}

func newBufferWriter() *bufferWriter {
	return &bufferWriter{base: timing.Invalid}
}

// timestamp returns the buffer pts and whether it must carry DISCONT.
// Samples flagged as discontinuities, the first buffer, and any pts that
// would not increase are marked; the latter are rebased after the last pts.
func (w *bufferWriter) timestamp(sample *queue.Sample) (time.Duration, bool) {
	if !w.base.Valid() {
		w.base = sample.PTS
		w.last = 0
		return 0, true
	}

	pts := sample.PTS.Sub(w.base).Duration()
	discont := sample.Discontinuity
	if pts <= w.last {
		step := time.Nanosecond
		if sample.Duration.Valid() {
			step = sample.Duration.Duration()
		}
		pts = w.last + step
		w.base = sample.PTS.Sub(timing.FromDuration(pts))
		discont = true
	}
	w.last = pts
	return pts, discont
}
