package slot

import (
	"sync"
	"testing"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
)

func solid(t *testing.T, v byte) frame.VideoFrame {
	t.Helper()
	data := make([]byte, frame.FormatRGB24.ByteSize(4, 4))
	for i := range data {
		data[i] = v
	}
	f, err := frame.New(frame.FormatRGB24, 4, 4, data)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

func TestSubmit_RequiresBroadcasting(t *testing.T) {
	s := New()
	s.SetFallback(solid(t, 1), 1, false)

	if s.Submit(solid(t, 2), 1) {
		t.Error("Submit accepted while not broadcasting")
	}
	if !s.Snapshot().Equal(solid(t, 1)) {
		t.Error("slot should still hold the fallback")
	}

	s.SetBroadcasting(true)
	if !s.Submit(solid(t, 2), 1) {
		t.Fatal("Submit rejected while broadcasting")
	}
	if !s.Snapshot().Equal(solid(t, 2)) {
		t.Error("slot should hold the producer frame")
	}

	accepted, rejected := s.Counters()
	if accepted != 1 || rejected != 1 {
		t.Errorf("counters accepted=%d rejected=%d, want 1/1", accepted, rejected)
	}
}

// TestSubmit_StaleGeneration: frames transformed under an old config are dropped
func TestSubmit_StaleGeneration(t *testing.T) {
	s := New()
	s.SetBroadcasting(true)
	s.SetFallback(solid(t, 1), 5, true)

	if s.Submit(solid(t, 2), 4) {
		t.Error("Submit accepted a stale generation")
	}
	if !s.Submit(solid(t, 3), 5) {
		t.Error("Submit rejected the current generation")
	}
}

// TestBroadcastingToggle: disabling broadcasting restores the fallback frame
func TestBroadcastingToggle(t *testing.T) {
	s := New()
	fallback := solid(t, 9)
	s.SetFallback(fallback, 1, false)
	s.SetBroadcasting(true)
	s.Submit(solid(t, 3), 1)

	s.SetBroadcasting(false)
	if !s.Snapshot().Equal(fallback) {
		t.Error("expected fallback after disabling broadcasting")
	}
	t.Logf("✅ broadcasting off restores fallback")
}

func TestSetFallback_WhileBroadcasting(t *testing.T) {
	s := New()
	s.SetBroadcasting(true)
	s.SetFallback(solid(t, 1), 1, false)
	s.Submit(solid(t, 2), 1)

	// regeneration without a format change keeps the producer frame
	s.SetFallback(solid(t, 3), 2, false)
	if !s.Snapshot().Equal(solid(t, 2)) {
		t.Error("producer frame replaced without format change")
	}

	// a format change replaces it
	s.SetFallback(solid(t, 4), 3, true)
	if !s.Snapshot().Equal(solid(t, 4)) {
		t.Error("producer frame kept across format change")
	}
}

func TestClear(t *testing.T) {
	s := New()
	s.SetFallback(solid(t, 1), 1, false)
	s.Clear()
	if !s.Snapshot().IsEmpty() {
		t.Error("Snapshot not empty after Clear")
	}
	s.SetBroadcasting(false)
	if !s.Snapshot().IsEmpty() {
		t.Error("Clear must also drop the fallback")
	}
}

// TestClear_RejectsLateSubmit: a frame transformed before Clear under the
// old generation never lands in a cleared slot
func TestClear_RejectsLateSubmit(t *testing.T) {
	s := New()
	s.SetBroadcasting(true)
	s.SetFallback(solid(t, 1), 3, true)
	gen := s.Generation()

	s.Clear()
	if s.Submit(solid(t, 2), gen) {
		t.Error("Submit with pre-Clear generation accepted")
	}
	if !s.Snapshot().IsEmpty() {
		t.Error("cleared slot holds a frame")
	}

	s.SetFallback(solid(t, 1), gen+2, true)
	if !s.Submit(solid(t, 2), gen+2) {
		t.Error("Submit with the reinstalled generation rejected")
	}
	t.Logf("✅ late submit rejected after Clear")
}

// TestConcurrentSubmitSnapshot runs producer and reader concurrently (go test -race)
func TestConcurrentSubmitSnapshot(t *testing.T) {
	s := New()
	s.SetBroadcasting(true)
	frames := []frame.VideoFrame{solid(t, 1), solid(t, 2)}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.Submit(frames[i%2], 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			f := s.Snapshot()
			if !f.IsEmpty() && !f.Equal(frames[0]) && !f.Equal(frames[1]) {
				t.Error("torn frame observed")
				return
			}
		}
	}()
	wg.Wait()
}
