package vcam

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/driver"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/timing"
)

type recordingRegistrar struct {
	mu           sync.Mutex
	registered   map[uuid.UUID]Stream
	unregistered []uuid.UUID
	fail         error
}

func newRecordingRegistrar() *recordingRegistrar {
	return &recordingRegistrar{registered: make(map[uuid.UUID]Stream)}
}

func (r *recordingRegistrar) Register(id uuid.UUID, s Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.registered[id] = s
	return nil
}

func (r *recordingRegistrar) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, id)
	r.unregistered = append(r.unregistered, id)
}

var testFormat = VideoFormat{
	PixelFormat: FormatYUY2,
	Width:       32,
	Height:      24,
	FrameRates:  []float64{30},
}

func solid(c color.RGBA, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestDevice_Lifecycle(t *testing.T) {
	reg := newRecordingRegistrar()
	dev := NewDevice(reg)

	s1, err := dev.AddStream(Config{Scheduler: driver.NewManualScheduler()})
	if err != nil {
		t.Fatalf("AddStream failed: %v", err)
	}
	s2, err := dev.AddStream(Config{Scheduler: driver.NewManualScheduler()})
	if err != nil {
		t.Fatalf("AddStream failed: %v", err)
	}
	if s1.ID() == s2.ID() {
		t.Fatal("stream ids must be unique")
	}
	if len(dev.Streams()) != 2 || len(reg.registered) != 2 {
		t.Fatalf("streams=%d registered=%d", len(dev.Streams()), len(reg.registered))
	}

	s1.SetFormats([]VideoFormat{testFormat})
	if !s1.Start() {
		t.Fatal("Start failed")
	}

	if got, ok := dev.Stream(s2.ID()); !ok || got != s2 {
		t.Error("Stream lookup failed")
	}
	if !dev.RemoveStream(s2.ID()) || dev.RemoveStream(s2.ID()) {
		t.Error("RemoveStream should succeed exactly once")
	}

	dev.Close()
	if s1.Running() {
		t.Error("Close must stop running streams")
	}
	if len(reg.registered) != 0 || len(reg.unregistered) != 2 {
		t.Errorf("registered=%d unregistered=%d", len(reg.registered), len(reg.unregistered))
	}
	if _, err := dev.AddStream(Config{}); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("AddStream after Close: err = %v", err)
	}
	dev.Close()
	t.Logf("✅ device owned and released %d streams", len(reg.unregistered))
}

func TestDevice_RegistrarFailure(t *testing.T) {
	reg := newRecordingRegistrar()
	reg.fail = errors.New("host refused")
	dev := NewDevice(reg)
	defer dev.Close()

	if _, err := dev.AddStream(Config{}); err == nil {
		t.Fatal("expected registration error")
	}
	if len(dev.Streams()) != 0 {
		t.Error("failed stream must not be kept")
	}
}

func TestStream_EndToEnd(t *testing.T) {
	sched := driver.NewManualScheduler()
	clock := timing.NewManualClock(time.Second)

	s, err := NewStream(Config{
		TestFrame: solid(color.RGBA{0, 0, 255, 255}, 16, 12),
		HostClock: clock,
		Scheduler: sched,
	})
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	defer s.(*streamHandle).Close()

	notified := 0
	s.SetQueueAltered(func(*Sample) { notified++ })
	if !s.SetFormats([]VideoFormat{testFormat}) || !s.Start() {
		t.Fatal("format/start failed")
	}
	testFrame := s.CurrentFrame()

	tick := func() {
		clock.Advance(time.Second / 30)
		sched.Tick()
	}

	// Not broadcasting: the test frame is emitted and producer frames ignored
	s.FrameReady(FrameFromImage(solid(color.RGBA{255, 0, 0, 255}, 64, 48), FormatRGB24))
	tick()

	s.SetBroadcasting(true)
	producer := FrameFromImage(solid(color.RGBA{255, 0, 0, 255}, 64, 48), FormatRGB24)
	s.FrameReady(producer)
	tick()
	tick() // repeats the last producer frame

	s.SetBroadcasting(false)
	tick()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var samples []*Sample
	for i := 0; i < 4; i++ {
		sample, err := s.Queue().Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue %d failed: %v", i, err)
		}
		samples = append(samples, sample)
	}

	for i, sample := range samples {
		if sample.Sequence != uint64(i) {
			t.Errorf("sample %d: sequence %d", i, sample.Sequence)
		}
		if !sample.Format.Equal(testFormat) || len(sample.Data) != testFormat.ByteSize() {
			t.Errorf("sample %d: format %s, %d bytes", i, sample.Format, len(sample.Data))
		}
	}

	isTestFrame := []bool{true, false, false, true}
	for i, want := range isTestFrame {
		got := string(samples[i].Data) == string(testFrame.Data())
		if got != want {
			t.Errorf("sample %d: test frame = %v, want %v", i, got, want)
		}
	}
	if string(samples[1].Data) != string(samples[2].Data) {
		t.Error("last producer frame must be repeated")
	}
	if notified != 4 {
		t.Errorf("QueueAltered called %d times, want 4", notified)
	}

	st := s.Stats()
	if st.Emitted != 4 || st.FramesAccepted != 1 {
		t.Errorf("stats = %+v", st)
	}
	t.Logf("✅ 4 samples: test frame, producer x2, test frame")
}
