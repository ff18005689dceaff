package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/stream"
)

// StatsReport is the periodic stream statistics message
type StatsReport struct {
	InstanceID string       `json:"instance_id" msgpack:"instance_id"`
	Timestamp  int64        `json:"timestamp_ms" msgpack:"timestamp_ms"`
	UptimeS    float64      `json:"uptime_s" msgpack:"uptime_s"`
	Stream     stream.Stats `json:"stream" msgpack:"stream"`
}

// Config configures the MQTT emitter
type Config struct {
	Broker      string
	ClientID    string
	TimingTopic string
	StatsTopic  string
	QoS         map[string]byte
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// MQTTEmitter publishes msgpack-encoded telemetry to an MQTT broker
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates an emitter; call Connect before publishing
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// newMQTTEmitterWithClient wires an already connected client
func newMQTTEmitterWithClient(cfg Config, client mqtt.Client) *MQTTEmitter {
	e := NewMQTTEmitter(cfg)
	e.client = client
	e.connected = client.IsConnected()
	return e
}

// Connect establishes the connection to the MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("telemetry: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("telemetry: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)
	slog.Info("telemetry: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("telemetry: mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Client returns the underlying MQTT client (shared with the control handler)
func (e *MQTTEmitter) Client() mqtt.Client {
	return e.client
}

// PublishTiming implements TimingPublisher
func (e *MQTTEmitter) PublishTiming(ev TimingEvent) error {
	return e.publish(e.cfg.TimingTopic, e.cfg.QoS["timing"], ev)
}

// PublishStats publishes one statistics report
func (e *MQTTEmitter) PublishStats(r StatsReport) error {
	return e.publish(e.cfg.StatsTopic, e.cfg.QoS["stats"], r)
}

// RunStats publishes a StatsReport every interval until ctx is done
func (e *MQTTEmitter) RunStats(ctx context.Context, interval time.Duration, statsFn func() stream.Stats) {
	started := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			report := StatsReport{
				InstanceID: e.cfg.ClientID,
				Timestamp:  now.UnixMilli(),
				UptimeS:    now.Sub(started).Seconds(),
				Stream:     statsFn(),
			}
			if err := e.PublishStats(report); err != nil {
				slog.Debug("telemetry: stats not published", "error", err)
			}
		}
	}
}

func (e *MQTTEmitter) publish(topic string, qos byte, v interface{}) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("telemetry: mqtt not connected")
	}

	payload, err := msgpack.Marshal(v)
	if err != nil {
		e.countError()
		return fmt.Errorf("telemetry: failed to marshal payload: %w", err)
	}

	token := e.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("telemetry: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("telemetry: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("telemetry: published", "topic", topic, "qos", qos, "size", len(payload))
	return nil
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250) // 250ms grace period
		slog.Info("telemetry: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
