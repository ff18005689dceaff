package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/driver"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/stream"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/testframe"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/timing"
)

func newController(t *testing.T) *stream.Controller {
	t.Helper()
	c, err := stream.New(stream.Config{
		TestFrame: testframe.New(testframe.Bars(32, 24)),
		HostClock: timing.NewManualClock(time.Second),
		Scheduler: driver.NewManualScheduler(),
	})
	if err != nil {
		t.Fatalf("stream.New failed: %v", err)
	}
	c.SetFormats([]frame.VideoFormat{{
		PixelFormat: frame.FormatYUY2,
		Width:       32,
		Height:      24,
		FrameRates:  []float64{30},
	}})
	t.Cleanup(c.Close)
	return c
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		command string
		params  map[string]interface{}
		wantErr bool
		check   func(t *testing.T, c *stream.Controller)
	}{
		{"broadcasting on", CmdSetBroadcasting, map[string]interface{}{"enabled": true}, false,
			func(t *testing.T, c *stream.Controller) {
				if !c.Broadcasting() {
					t.Error("expected broadcasting")
				}
			}},
		{"broadcasting missing param", CmdSetBroadcasting, map[string]interface{}{}, true, nil},
		{"mirror horizontal only", CmdSetMirror, map[string]interface{}{"horizontal": true}, false,
			func(t *testing.T, c *stream.Controller) {
				if h, v := c.Mirror(); !h || v {
					t.Errorf("mirror = %v/%v, want true/false", h, v)
				}
			}},
		{"mirror bad type", CmdSetMirror, map[string]interface{}{"vertical": "yes"}, true, nil},
		{"scaling linear", CmdSetScaling, map[string]interface{}{"mode": "linear"}, false,
			func(t *testing.T, c *stream.Controller) {
				if c.Scaling() != frame.ScalingLinear {
					t.Errorf("scaling = %s", c.Scaling())
				}
			}},
		{"scaling unknown", CmdSetScaling, map[string]interface{}{"mode": "cubic"}, true, nil},
		{"aspect keep", CmdSetAspectRatio, map[string]interface{}{"mode": "keep"}, false,
			func(t *testing.T, c *stream.Controller) {
				if c.AspectRatio() != frame.AspectKeep {
					t.Errorf("aspect = %s", c.AspectRatio())
				}
			}},
		{"frame rate", CmdSetFrameRate, map[string]interface{}{"fps": 15.0}, false,
			func(t *testing.T, c *stream.Controller) {
				if c.FrameRate() != 15 {
					t.Errorf("fps = %v", c.FrameRate())
				}
			}},
		{"frame rate zero", CmdSetFrameRate, map[string]interface{}{"fps": 0.0}, true, nil},
		{"format", CmdSetFormat, map[string]interface{}{
			"pixel_format": "NV12", "width": 16.0, "height": 8.0, "frame_rates": []interface{}{25.0},
		}, false,
			func(t *testing.T, c *stream.Controller) {
				f := c.Format()
				if f.PixelFormat != frame.FormatNV12 || f.Width != 16 || c.FrameRate() != 25 {
					t.Errorf("format = %s @ %v", f, c.FrameRate())
				}
			}},
		{"format bad dims", CmdSetFormat, map[string]interface{}{"pixel_format": "NV12", "width": 0.0, "height": 8.0}, true, nil},
		{"start", CmdStart, nil, false,
			func(t *testing.T, c *stream.Controller) {
				if !c.Running() {
					t.Error("expected running")
				}
			}},
		{"stop when stopped", CmdStop, nil, true, nil},
		{"unknown", "reboot", nil, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(t)
			_, err := Apply(c, tt.command, tt.params)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply(%s) error = %v, wantErr %v", tt.command, err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	c := newController(t)
	c.SetMirror(false, true)

	st := Status(c)
	if st["format"] != "YUY2 32x24" || st["vertical_mirror"] != true || st["running"] != false {
		t.Errorf("status = %v", st)
	}
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := newController(t)
	router := NewRouter(c)

	tests := []struct {
		method, path, body string
		wantStatus         int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodPut, "/config/broadcasting", `{"enabled": true}`, http.StatusOK},
		{http.MethodPut, "/config/scaling", `{"mode": "linear"}`, http.StatusOK},
		{http.MethodPut, "/config/scaling", `{"mode": "bogus"}`, http.StatusBadRequest},
		{http.MethodPut, "/config/frame_rate", `{"fps": 24}`, http.StatusOK},
		{http.MethodPut, "/config/exposure", `{}`, http.StatusNotFound},
		{http.MethodPut, "/config/mirror", `not json`, http.StatusBadRequest},
		{http.MethodPost, "/stream/start", "", http.StatusOK},
		{http.MethodPost, "/stream/start", "", http.StatusConflict},
		{http.MethodPost, "/stream/stop", "", http.StatusOK},
		{http.MethodPost, "/stream/stop", "", http.StatusConflict},
	}

	for _, tt := range tests {
		w := doRequest(router, tt.method, tt.path, tt.body)
		if w.Code != tt.wantStatus {
			t.Errorf("%s %s: status = %d, want %d (body %s)", tt.method, tt.path, w.Code, tt.wantStatus, w.Body.String())
		}
	}

	if !c.Broadcasting() || c.Scaling() != frame.ScalingLinear || c.FrameRate() != 24 {
		t.Errorf("controller state not applied: broadcasting=%v scaling=%s fps=%v",
			c.Broadcasting(), c.Scaling(), c.FrameRate())
	}

	w := doRequest(router, http.MethodGet, "/stats", "")
	var stats stream.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("stats is not JSON: %v", err)
	}
	if stats.Format != "YUY2 32x24" || stats.QueueCap != 30 {
		t.Errorf("stats = %+v", stats)
	}
	t.Logf("✅ http api applied %d requests", len(tests))
}

func TestLiveStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := newController(t)
	srv := httptest.NewServer(newRouter(c, 10*time.Millisecond))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/stats"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 3; i++ {
		var stats stream.Stats
		if err := conn.ReadJSON(&stats); err != nil {
			t.Fatalf("ReadJSON %d failed: %v", i, err)
		}
		if stats.Format != "YUY2 32x24" {
			t.Errorf("push %d: format = %s", i, stats.Format)
		}
	}
	t.Logf("✅ live stats pushed 3 snapshots")
}

type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Error() error                   { return nil }
func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }

type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	handler   mqtt.MessageHandler
	responses chan Response
	topics    []string
}

func (c *fakeClient) IsConnected() bool { return true }

func (c *fakeClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	c.handler = cb
	c.mu.Unlock()
	return fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token { return fakeToken{} }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var resp Response
	_ = json.Unmarshal(payload.([]byte), &resp)
	c.mu.Lock()
	c.topics = append(c.topics, topic)
	c.mu.Unlock()
	c.responses <- resp
	return fakeToken{}
}

func (c *fakeClient) deliver(payload string) {
	c.mu.Lock()
	cb := c.handler
	c.mu.Unlock()
	cb(c, fakeMessage{payload: []byte(payload)})
}

func TestHandler_Commands(t *testing.T) {
	c := newController(t)
	client := &fakeClient{responses: make(chan Response, 4)}
	h := NewHandler(HandlerConfig{Topic: "vcam/control/vcam-01", QoS: 1}, client, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.Stop()

	await := func() Response {
		t.Helper()
		select {
		case r := <-client.responses:
			return r
		case <-time.After(time.Second):
			t.Fatal("no response published")
			return Response{}
		}
	}

	client.deliver(`{"command": "set_aspect_ratio", "params": {"mode": "expanding"}}`)
	resp := await()
	if resp.Status != "success" || resp.CommandAck != "set_aspect_ratio" {
		t.Errorf("response = %+v", resp)
	}
	if c.AspectRatio() != frame.AspectExpanding {
		t.Errorf("aspect = %s", c.AspectRatio())
	}

	client.deliver(`{"command": "set_frame_rate", "params": {"fps": "fast"}}`)
	if resp := await(); resp.Status != "error" || resp.Error == "" {
		t.Errorf("response = %+v", resp)
	}

	client.deliver(`{broken`)
	if resp := await(); resp.CommandAck != "unknown" || resp.Error != "invalid JSON" {
		t.Errorf("response = %+v", resp)
	}

	client.deliver(`{"command": "get_status"}`)
	if resp := await(); resp.Data["format"] != "YUY2 32x24" {
		t.Errorf("status data = %v", resp.Data)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	for _, topic := range client.topics {
		if topic != "vcam/control/vcam-01/response" {
			t.Errorf("response published on %q", topic)
		}
	}
	t.Logf("✅ mqtt handler answered %d commands", len(client.topics))
}
