package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete vcam-source configuration
type Config struct {
	InstanceID       string         `yaml:"instance_id"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Stream           StreamConfig   `yaml:"stream"`
	Producer         ProducerConfig `yaml:"producer"`
	Sink             SinkConfig     `yaml:"sink"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	HTTP             HTTPConfig     `yaml:"http"`
}

// StreamConfig contains the output stream settings
type StreamConfig struct {
	Formats        []FormatConfig `yaml:"formats"`         // first entry is the active format
	HMirror        bool           `yaml:"horizontal_mirror"`
	VMirror        bool           `yaml:"vertical_mirror"`
	Scaling        string         `yaml:"scaling"`         // fast, linear
	AspectRatio    string         `yaml:"aspect_ratio"`    // ignore, keep, expanding
	Broadcasting   bool           `yaml:"broadcasting"`
	QueueCapacity  int            `yaml:"queue_capacity"`  // default 30
	DriftThreshold int            `yaml:"drift_threshold"` // frame durations, default 2
	CadenceWindow  int            `yaml:"cadence_window"`  // emissions, default 120
	TestFrame      string         `yaml:"test_frame"`      // BMP/PNG/JPEG path, empty = built-in bars
}

// FormatConfig describes one supported output format
type FormatConfig struct {
	PixelFormat string    `yaml:"pixel_format"` // YUY2, RGB24, NV12, ... or a FourCC
	Width       int       `yaml:"width"`
	Height      int       `yaml:"height"`
	FrameRates  []float64 `yaml:"frame_rates"`
}

// ProducerConfig configures the built-in demo producer feeding FrameReady
type ProducerConfig struct {
	Enabled bool    `yaml:"enabled"`
	FPS     float64 `yaml:"fps"`
	Width   int     `yaml:"width"`
	Height  int     `yaml:"height"`
}

// SinkConfig configures the GStreamer consumer
type SinkConfig struct {
	Enabled         bool              `yaml:"enabled"`
	Element         string            `yaml:"element"`    // v4l2sink, fakesink, autovideosink, ...
	Properties      map[string]string `yaml:"properties"` // element properties (e.g. device: /dev/video10)
	MaxRetries      int               `yaml:"max_retries"`
	RetryDelayMS    int               `yaml:"retry_delay_ms"`
	MaxRetryDelayMS int               `yaml:"max_retry_delay_ms"`
}

// MQTTConfig contains MQTT broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker         string          `yaml:"broker"`
	Topics         MQTTTopics      `yaml:"topics"`
	QoS            map[string]byte `yaml:"qos"`
	StatsIntervalS int             `yaml:"stats_interval_s"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Control string `yaml:"control"`
	Timing  string `yaml:"timing"`
	Stats   string `yaml:"stats"`
}

// HTTPConfig configures the HTTP control API. An empty listen address disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML configuration data
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
