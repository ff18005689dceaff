// Package core wires the stream, its consumer, telemetry and the control
// surfaces into the vcam-source service.
package core

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/vcam"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/control"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/gstsink"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/telemetry"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/testframe"
)

// Source is the main service orchestrator
type Source struct {
	cfg *config.Config

	device   *vcam.Device
	stream   vcam.Stream
	recorder *telemetry.TimingRecorder

	emitter        *telemetry.MQTTEmitter
	controlHandler *control.Handler
	sink           *gstsink.Sink

	started   time.Time
	mu        sync.Mutex
	wg        sync.WaitGroup
	isRunning bool
	consumed  uint64
}

// NewSource loads the configuration and creates the service
func NewSource(configPath string) (*Source, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewSourceFromConfig(cfg)
}

// NewSourceFromConfig creates the service from a validated configuration
func NewSourceFromConfig(cfg *config.Config) (*Source, error) {
	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"formats", len(cfg.Stream.Formats),
	)

	var testImage image.Image
	if cfg.Stream.TestFrame != "" {
		img, err := loadImage(cfg.Stream.TestFrame)
		if err != nil {
			return nil, fmt.Errorf("failed to load test frame: %w", err)
		}
		testImage = img
	}

	device := vcam.NewDevice(nil)
	stream, err := device.AddStream(vcam.Config{
		QueueCapacity:  cfg.Stream.QueueCapacity,
		DriftThreshold: cfg.Stream.DriftThreshold,
		CadenceWindow:  cfg.Stream.CadenceWindow,
		TestFrame:      testImage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	if !stream.SetFormats(cfg.Stream.VideoFormats()) {
		device.Close()
		return nil, fmt.Errorf("no usable stream format")
	}
	stream.SetMirror(cfg.Stream.HMirror, cfg.Stream.VMirror)
	stream.SetScaling(cfg.Stream.ScalingMode())
	stream.SetAspectRatio(cfg.Stream.AspectRatioMode())

	s := &Source{
		cfg:    cfg,
		device: device,
		stream: stream,
	}

	if cfg.MQTT.Broker != "" {
		s.emitter = telemetry.NewMQTTEmitter(telemetry.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.InstanceID,
			TimingTopic: cfg.MQTT.Topics.Timing,
			StatsTopic:  cfg.MQTT.Topics.Stats,
			QoS:         cfg.MQTT.QoS,
		})
		s.recorder = telemetry.NewTimingRecorder(cfg.InstanceID, s.emitter, 0)
	} else {
		s.recorder = telemetry.NewTimingRecorder(cfg.InstanceID, nil, 0)
	}
	stream.SetClockListener(s.recorder)

	if cfg.Sink.Enabled {
		sink, err := gstsink.New(gstsink.Config{
			Element:    cfg.Sink.Element,
			Properties: cfg.Sink.Properties,
			Reconnect: gstsink.ReconnectConfig{
				MaxRetries:    cfg.Sink.MaxRetries,
				RetryDelay:    time.Duration(cfg.Sink.RetryDelayMS) * time.Millisecond,
				MaxRetryDelay: time.Duration(cfg.Sink.MaxRetryDelayMS) * time.Millisecond,
			},
		})
		if err != nil {
			device.Close()
			return nil, fmt.Errorf("failed to create sink: %w", err)
		}
		s.sink = sink
		stream.SetQueueAltered(sink.Notify)
	}

	return s, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return testframe.Decode(f)
}

// Stream returns the managed stream
func (s *Source) Stream() vcam.Stream {
	return s.stream
}

// Summary returns slog attributes describing the configured service
func (s *Source) Summary() []any {
	sink := "drain"
	if s.sink != nil {
		sink = s.cfg.Sink.Element
	}
	return []any{
		"instance_id", s.cfg.InstanceID,
		"stream_id", s.stream.ID().String(),
		"format", s.stream.Format().String(),
		"fps", s.stream.FrameRate(),
		"formats", len(s.stream.Formats()),
		"sink", sink,
		"producer", s.cfg.Producer.Enabled,
		"mqtt_broker", s.cfg.MQTT.Broker,
		"http", s.cfg.HTTP.Listen,
	}
}

// Run starts the service and blocks until ctx is cancelled
func (s *Source) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.isRunning = true
	s.started = time.Now()
	s.mu.Unlock()

	slog.Info("vcam-source starting", "instance_id", s.cfg.InstanceID)

	// Connect MQTT before the stream starts so the first resync is published
	if s.emitter != nil {
		if err := s.emitter.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect mqtt: %w", err)
		}

		s.controlHandler = control.NewHandler(control.HandlerConfig{
			Topic: s.cfg.MQTT.Topics.Control,
			QoS:   s.cfg.MQTT.QoS["control"],
		}, s.emitter.Client(), s.stream)
		if err := s.controlHandler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}

		s.goRun(func() { s.recorder.Run(ctx) })
		interval := time.Duration(s.cfg.MQTT.StatsIntervalS) * time.Second
		s.goRun(func() { s.emitter.RunStats(ctx, interval, s.stream.Stats) })
	}

	if s.cfg.HTTP.Listen != "" {
		server := control.NewServer(s.cfg.HTTP.Listen, s.stream)
		s.goRun(func() {
			if err := server.Run(ctx); err != nil {
				slog.Error("http api failed", "error", err)
			}
		})
	}

	// Consumer: GStreamer sink, or a drain loop that discards samples
	if s.sink != nil {
		s.goRun(func() {
			if err := s.sink.Run(ctx, s.stream.Queue()); err != nil {
				slog.Error("sink stopped", "error", err)
			}
		})
	} else {
		s.goRun(func() { s.drain(ctx) })
	}

	if !s.stream.Start() {
		return fmt.Errorf("failed to start stream")
	}
	s.stream.SetBroadcasting(s.cfg.Stream.Broadcasting)

	if s.cfg.Producer.Enabled {
		p := NewProducer(s.cfg.Producer.FPS, s.cfg.Producer.Width, s.cfg.Producer.Height)
		s.goRun(func() { p.Run(ctx, s.stream) })
	}

	s.goRun(func() { s.logStats(ctx, 10*time.Second) })

	slog.Info("vcam-source running",
		"format", s.stream.Format().String(),
		"fps", s.stream.FrameRate(),
		"sink", s.sink != nil,
		"mqtt", s.emitter != nil,
		"http", s.cfg.HTTP.Listen,
	)

	<-ctx.Done()
	slog.Info("vcam-source run loop exiting")
	return nil
}

func (s *Source) goRun(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// drain consumes samples when no sink is configured
func (s *Source) drain(ctx context.Context) {
	q := s.stream.Queue()
	for {
		if _, err := q.Dequeue(ctx); err != nil {
			return
		}
		s.mu.Lock()
		s.consumed++
		s.mu.Unlock()
	}
}

func (s *Source) logStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.stream.Stats()
			timing := s.recorder.State()
			slog.Info("vcam: stream stats",
				"emitted", st.Emitted,
				"queue_drops", st.QueueDrops,
				"skipped_ticks", st.SkippedTicks,
				"discontinuities", st.Discontinuities,
				"queue_fullness", st.QueueFullness,
				"fps_mean", st.Cadence.FPSMean,
				"jitter_ms", st.Cadence.JitterMean*1000,
				"cadence_stable", st.Cadence.IsStable,
				"last_pts", timing.LastPTS.String(),
			)
		}
	}
}

// Shutdown stops every component in dependency order
func (s *Source) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		s.device.Close()
		return nil
	}
	s.mu.Unlock()

	slog.Info("shutting down vcam-source")

	// 1. Stop emitting, then dispose the queue (wakes the consumer)
	s.device.Close()

	// 2. Stop control plane
	if s.controlHandler != nil {
		s.controlHandler.Stop()
	}

	// 3. Wait for goroutines (they exit on ctx cancellation)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}

	// 4. Disconnect MQTT
	if s.emitter != nil {
		s.emitter.Disconnect()
	}

	s.mu.Lock()
	uptime := time.Since(s.started)
	s.isRunning = false
	consumed := s.consumed
	s.mu.Unlock()

	slog.Info("vcam-source shutdown complete", "uptime", uptime, "drained", consumed)
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (s *Source) ShutdownTimeout() time.Duration {
	return time.Duration(s.cfg.ShutdownTimeoutS) * time.Second
}
