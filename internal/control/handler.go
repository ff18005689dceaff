package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  int64                  `json:"timestamp_ms"`
}

// HandlerConfig configures the MQTT handler
type HandlerConfig struct {
	Topic string
	QoS   byte
}

// ResponseTopic is where command responses are published
func (c HandlerConfig) ResponseTopic() string {
	return c.Topic + "/response"
}

// Handler handles control plane commands received over MQTT
type Handler struct {
	cfg      HandlerConfig
	client   mqtt.Client
	ctrl     Controller
	commands chan Command

	stopOnce sync.Once
}

// NewHandler creates a new control plane handler
func NewHandler(cfg HandlerConfig, client mqtt.Client, ctrl Controller) *Handler {
	return &Handler{
		cfg:      cfg,
		client:   client,
		ctrl:     ctrl,
		commands: make(chan Command, 10),
	}
}

// Start subscribes to the control topic and processes commands until ctx is done
func (h *Handler) Start(ctx context.Context) error {
	slog.Info("control: subscribing to control plane", "topic", h.cfg.Topic, "qos", h.cfg.QoS)

	token := h.client.Subscribe(h.cfg.Topic, h.cfg.QoS, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control: subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control: subscription failed: %w", err)
	}

	go h.processCommands(ctx)

	slog.Info("control: handler started")
	return nil
}

// Stop unsubscribes and stops command processing
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		if h.client != nil && h.client.IsConnected() {
			h.client.Unsubscribe(h.cfg.Topic).WaitTimeout(2 * time.Second)
		}
		close(h.commands)
		slog.Info("control: handler stopped")
	})
}

func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("control: failed to parse command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control: command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("control: command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handleCommand(cmd)
		}
	}
}

func (h *Handler) handleCommand(cmd Command) {
	resp := Response{CommandAck: cmd.Command}

	data, err := Apply(h.ctrl, cmd.Command, cmd.Params)
	if err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		slog.Warn("control: command failed", "command", cmd.Command, "error", err)
	} else {
		resp.Status = "success"
		resp.Data = data
	}

	h.sendResponse(resp)
}

func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UnixMilli()

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("control: failed to marshal response", "error", err)
		return
	}

	token := h.client.Publish(h.cfg.ResponseTopic(), h.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("control: response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("control: failed to publish response", "error", err)
		return
	}

	slog.Debug("control: response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
