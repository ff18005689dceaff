// Package timing implements the presentation-timestamp clock of the output
// stream: rational timestamps, the host clock abstraction and the PTS
// assignment rule with drift resynchronization.
package timing

import (
	"fmt"
	"math"
	"math/bits"
	"time"
)

// NanosecondScale is the scale of host timestamps (1 tick = 1ns)
const NanosecondScale int64 = int64(time.Second)

// Time is a rational timestamp: Value/Scale seconds.
// The zero value (Scale == 0) is the invalid time.
type Time struct {
	Value int64
	Scale int64
}

// Invalid is the invalid time
var Invalid = Time{}

// FromDuration converts a duration to a nanosecond-scaled Time
func FromDuration(d time.Duration) Time {
	return Time{Value: int64(d), Scale: NanosecondScale}
}

// Valid reports whether the time has a non-zero scale
func (t Time) Valid() bool { return t.Scale != 0 }

// Add returns t+o, reduced to lowest terms.
// Returns Invalid if either operand is invalid.
func (t Time) Add(o Time) Time {
	if !t.Valid() || !o.Valid() {
		return Invalid
	}
	scale := lcm(t.Scale, o.Scale)
	return Time{Value: t.Value*(scale/t.Scale) + o.Value*(scale/o.Scale), Scale: scale}.reduce()
}

// Sub returns t-o on the least common multiple of both scales
func (t Time) Sub(o Time) Time {
	return t.Add(Time{Value: -o.Value, Scale: o.Scale})
}

// Mul returns t scaled by an integer factor
func (t Time) Mul(n int64) Time {
	if !t.Valid() {
		return Invalid
	}
	return Time{Value: t.Value * n, Scale: t.Scale}.reduce()
}

// reduce divides value and scale by their greatest common divisor
func (t Time) reduce() Time {
	if !t.Valid() {
		return t
	}
	if g := gcd(t.Value, t.Scale); g > 1 {
		t.Value /= g
		t.Scale /= g
	}
	return t
}

// Compare returns -1, 0 or +1. Invalid times sort before valid ones.
func (t Time) Compare(o Time) int {
	switch {
	case !t.Valid() && !o.Valid():
		return 0
	case !t.Valid():
		return -1
	case !o.Valid():
		return 1
	}
	d := t.Sub(o)
	switch {
	case d.Value < 0:
		return -1
	case d.Value > 0:
		return 1
	}
	return 0
}

// Duration converts to time.Duration, truncating below one nanosecond
func (t Time) Duration() time.Duration {
	if !t.Valid() {
		return 0
	}
	sec := t.Value / t.Scale
	rem := t.Value % t.Scale
	return time.Duration(sec)*time.Second + time.Duration(scaleToNanos(rem, t.Scale))
}

// scaleToNanos returns rem*1e9/scale for |rem| < |scale| using a 128-bit
// intermediate product.
func scaleToNanos(rem, scale int64) int64 {
	neg := (rem < 0) != (scale < 0)
	r, s := uint64(rem), uint64(scale)
	if rem < 0 {
		r = uint64(-rem)
	}
	if scale < 0 {
		s = uint64(-scale)
	}
	hi, lo := bits.Mul64(r, uint64(NanosecondScale))
	q, _ := bits.Div64(hi, lo, s)
	if neg {
		return -int64(q)
	}
	return int64(q)
}

// Seconds returns the time as floating-point seconds
func (t Time) Seconds() float64 {
	if !t.Valid() {
		return math.NaN()
	}
	return float64(t.Value) / float64(t.Scale)
}

// String returns e.g. "1001/30000"
func (t Time) String() string {
	if !t.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%d/%d", t.Value, t.Scale)
}

// FrameDuration returns the duration of one frame at fps as an exact rational
// where possible.
//
//   - integral rates: 1/fps (30 → 1/30)
//   - NTSC-style rates: 1001/(n·1000) (29.97 → 1001/30000)
//   - anything else: nanosecond precision
//
// Returns Invalid for non-positive or non-finite rates.
func FrameDuration(fps float64) Time {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return Invalid
	}
	if r := math.Round(fps); math.Abs(fps-r) < 1e-9 {
		return Time{Value: 1, Scale: int64(r)}
	}
	if n := math.Round(fps * 1.001); n > 0 && math.Abs(fps-n*1000/1001) < 1e-3 {
		return Time{Value: 1001, Scale: int64(n) * 1000}
	}
	ns := int64(math.Round(float64(NanosecondScale) / fps))
	if ns <= 0 {
		return Invalid
	}
	return Time{Value: ns, Scale: NanosecondScale}
}

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int64) int64 {
	if a == b {
		return a
	}
	return a / gcd(a, b) * b
}
