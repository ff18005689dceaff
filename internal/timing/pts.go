package timing

// DefaultDriftThreshold is the number of frame durations the host clock may
// run ahead of the last emitted pts before the clock resynchronizes.
const DefaultDriftThreshold = 2

// PTSClock assigns presentation timestamps to emitted frames.
//
// Rule, for a candidate host time h and last emitted pts p:
//   - h == p                          → skip the tick (no duplicate pts)
//   - p invalid, h < p, h-p > k·d     → pts = h, discontinuity
//   - otherwise                       → pts = p + d
//
// where d is the frame duration and k the drift threshold.
//
// Next does not mutate state; the caller confirms an emission with Commit,
// so a rejected sample neither advances the pts nor consumes a sequence number.
//
// Not safe for concurrent use; the periodic driver serializes access.
type PTSClock struct {
	duration  Time
	threshold int64
	last      Time
	sequence  uint64
}

// NewPTSClock creates a clock for the given frame rate.
// A non-positive threshold selects DefaultDriftThreshold.
func NewPTSClock(fps float64, threshold int) *PTSClock {
	c := &PTSClock{}
	c.SetFrameRate(fps)
	c.SetDriftThreshold(threshold)
	return c
}

// SetFrameRate changes the frame duration used for subsequent emissions
func (c *PTSClock) SetFrameRate(fps float64) {
	c.duration = FrameDuration(fps)
}

// SetDriftThreshold sets the resync threshold in frame durations
func (c *PTSClock) SetDriftThreshold(frames int) {
	if frames <= 0 {
		frames = DefaultDriftThreshold
	}
	c.threshold = int64(frames)
}

// FrameDuration returns the current frame duration
func (c *PTSClock) FrameDuration() Time { return c.duration }

// Last returns the last committed pts (Invalid before the first emission)
func (c *PTSClock) Last() Time { return c.last }

// Sequence returns the sequence number the next emission will carry
func (c *PTSClock) Sequence() uint64 { return c.sequence }

// Next computes the pts for an emission at host time h.
// ok is false when the tick must be skipped.
func (c *PTSClock) Next(h Time) (pts Time, resync bool, ok bool) {
	if !h.Valid() || !c.duration.Valid() {
		return Invalid, false, false
	}
	if !c.last.Valid() {
		return h, true, true
	}
	diff := h.Sub(c.last)
	switch {
	case diff.Value == 0:
		return Invalid, false, false
	case diff.Value < 0, diff.Compare(c.duration.Mul(c.threshold)) > 0:
		return h, true, true
	}
	return c.last.Add(c.duration), false, true
}

// Commit records pts as emitted and advances the sequence by one
func (c *PTSClock) Commit(pts Time) {
	c.last = pts
	c.sequence++
}

// Reset invalidates the last pts and restarts the sequence at 0
func (c *PTSClock) Reset() {
	c.last = Invalid
	c.sequence = 0
}
