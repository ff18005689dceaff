// Package slot implements the current-frame slot: the single rendezvous
// point between the frame producer and the periodic driver.
package slot

import (
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
)

// CurrentFrameSlot holds the frame the next driver tick will emit.
//
// One mutex guards the stored frame, the broadcasting flag, the fallback
// (test) frame and the configuration generation. Every critical section only
// copies frame headers; frames are immutable so no pixel data moves under
// the lock.
//
// Generation: the controller bumps the generation on every visual
// configuration change. A producer frame transformed under an older
// configuration is rejected by Submit, so the slot never holds a frame that
// does not match the active format.
type CurrentFrameSlot struct {
	mu           sync.Mutex
	current      frame.VideoFrame
	fallback     frame.VideoFrame
	broadcasting bool
	generation   uint64

	accepted uint64
	rejected uint64
}

// New creates an empty, non-broadcasting slot
func New() *CurrentFrameSlot {
	return &CurrentFrameSlot{}
}

// Submit stores a producer frame.
//
// Rejected (returns false) when not broadcasting, when the frame is empty or
// when gen is not the current generation.
func (s *CurrentFrameSlot) Submit(f frame.VideoFrame, gen uint64) bool {
	if f.IsEmpty() {
		atomic.AddUint64(&s.rejected, 1)
		return false
	}

	s.mu.Lock()
	ok := s.broadcasting && gen == s.generation
	if ok {
		s.current = f
	}
	s.mu.Unlock()

	if ok {
		atomic.AddUint64(&s.accepted, 1)
	} else {
		atomic.AddUint64(&s.rejected, 1)
	}
	return ok
}

// SetBroadcasting switches between producer frames and the fallback.
// Disabling broadcasting restores the fallback frame immediately.
func (s *CurrentFrameSlot) SetBroadcasting(on bool) {
	s.mu.Lock()
	s.broadcasting = on
	if !on {
		s.current = s.fallback
	}
	s.mu.Unlock()
}

// Broadcasting reports whether producer frames are accepted
func (s *CurrentFrameSlot) Broadcasting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broadcasting
}

// SetFallback installs a regenerated fallback frame for generation gen and
// makes gen current. The stored frame is replaced when not broadcasting or
// when resetCurrent is set (format change: the old frame no longer matches).
func (s *CurrentFrameSlot) SetFallback(f frame.VideoFrame, gen uint64, resetCurrent bool) {
	s.mu.Lock()
	s.fallback = f
	s.generation = gen
	if !s.broadcasting || resetCurrent {
		s.current = f
	}
	s.mu.Unlock()
}

// Generation returns the current configuration generation
func (s *CurrentFrameSlot) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Snapshot returns the stored frame. The empty frame means "nothing to emit".
func (s *CurrentFrameSlot) Snapshot() frame.VideoFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Clear empties the stored and fallback frames and advances the generation,
// so a frame transformed before Clear is rejected by a late Submit.
func (s *CurrentFrameSlot) Clear() {
	s.mu.Lock()
	s.current = frame.VideoFrame{}
	s.fallback = frame.VideoFrame{}
	s.generation++
	s.mu.Unlock()
}

// Counters returns producer frames accepted and rejected since creation
func (s *CurrentFrameSlot) Counters() (accepted, rejected uint64) {
	return atomic.LoadUint64(&s.accepted), atomic.LoadUint64(&s.rejected)
}
