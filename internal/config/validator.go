package config

import (
	"fmt"
	"regexp"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/queue"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/timing"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateStream(&cfg.Stream); err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	if cfg.Producer.Enabled {
		if cfg.Producer.FPS <= 0 {
			cfg.Producer.FPS = 30
		}
		if cfg.Producer.Width <= 0 || cfg.Producer.Height <= 0 {
			cfg.Producer.Width, cfg.Producer.Height = 1280, 720
		}
	}

	if cfg.Sink.Element == "" {
		cfg.Sink.Element = "fakesink"
	}
	if cfg.Sink.MaxRetries <= 0 {
		cfg.Sink.MaxRetries = 5
	}
	if cfg.Sink.RetryDelayMS <= 0 {
		cfg.Sink.RetryDelayMS = 1000
	}
	if cfg.Sink.MaxRetryDelayMS <= 0 {
		cfg.Sink.MaxRetryDelayMS = 30000
	}

	// MQTT is optional; topics and QoS are only defaulted when a broker is set
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("vcam/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Timing == "" {
			cfg.MQTT.Topics.Timing = fmt.Sprintf("vcam/timing/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Stats == "" {
			cfg.MQTT.Topics.Stats = fmt.Sprintf("vcam/stats/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"control": 1,
				"timing":  0,
				"stats":   0,
			}
		}
		if cfg.MQTT.StatsIntervalS <= 0 {
			cfg.MQTT.StatsIntervalS = 10
		}
	}

	return nil
}

func validateStream(s *StreamConfig) error {
	if len(s.Formats) == 0 {
		return fmt.Errorf("at least one format is required")
	}
	for i, f := range s.Formats {
		if _, err := f.VideoFormat(); err != nil {
			return fmt.Errorf("format %d: %w", i, err)
		}
	}

	if s.Scaling == "" {
		s.Scaling = frame.ScalingFast.String()
	}
	if _, err := frame.ParseScaling(s.Scaling); err != nil {
		return err
	}
	if s.AspectRatio == "" {
		s.AspectRatio = frame.AspectIgnore.String()
	}
	if _, err := frame.ParseAspectRatio(s.AspectRatio); err != nil {
		return err
	}

	if s.QueueCapacity <= 0 {
		s.QueueCapacity = queue.DefaultCapacity
	}
	if s.DriftThreshold <= 0 {
		s.DriftThreshold = timing.DefaultDriftThreshold
	}
	return nil
}

// VideoFormat converts the entry into a frame.VideoFormat
func (f FormatConfig) VideoFormat() (frame.VideoFormat, error) {
	pf, err := frame.ParsePixelFormat(f.PixelFormat)
	if err != nil {
		return frame.VideoFormat{}, err
	}
	if f.Width <= 0 || f.Height <= 0 {
		return frame.VideoFormat{}, fmt.Errorf("invalid dimensions %dx%d", f.Width, f.Height)
	}
	if len(f.FrameRates) == 0 {
		return frame.VideoFormat{}, fmt.Errorf("%s %dx%d: frame_rates is required", pf, f.Width, f.Height)
	}
	for _, r := range f.FrameRates {
		if !timing.FrameDuration(r).Valid() {
			return frame.VideoFormat{}, fmt.Errorf("invalid frame rate %v", r)
		}
	}
	return frame.VideoFormat{
		PixelFormat: pf,
		Width:       f.Width,
		Height:      f.Height,
		FrameRates:  append([]float64(nil), f.FrameRates...),
	}, nil
}

// VideoFormats converts every configured format (already validated)
func (s StreamConfig) VideoFormats() []frame.VideoFormat {
	out := make([]frame.VideoFormat, 0, len(s.Formats))
	for _, f := range s.Formats {
		if vf, err := f.VideoFormat(); err == nil {
			out = append(out, vf)
		}
	}
	return out
}

// ScalingMode returns the parsed scaling mode (fast on error)
func (s StreamConfig) ScalingMode() frame.Scaling {
	m, _ := frame.ParseScaling(s.Scaling)
	return m
}

// AspectRatioMode returns the parsed aspect ratio policy (ignore on error)
func (s StreamConfig) AspectRatioMode() frame.AspectRatio {
	m, _ := frame.ParseAspectRatio(s.AspectRatio)
	return m
}
