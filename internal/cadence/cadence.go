// Package cadence measures the output frame cadence of a stream: FPS
// statistics and inter-frame jitter over a window of recent emissions.
package cadence

import (
	"math"
	"sync"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation as a fraction of mean FPS.
	// 30 FPS mean → stable if stddev < 4.5 FPS
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction of the expected interval.
	// 30 FPS (33ms interval) → stable if jitter < 6.6ms
	jitterStabilityThreshold = 0.20

	// DefaultWindow is the number of emissions kept by a Tracker
	DefaultWindow = 120
)

// Stats summarizes the cadence over a window of emissions
type Stats struct {
	Frames       int           `json:"frames" msgpack:"frames"`
	Span         time.Duration `json:"span_ns" msgpack:"span_ns"`
	FPSMean      float64       `json:"fps_mean" msgpack:"fps_mean"`
	FPSStdDev    float64       `json:"fps_stddev" msgpack:"fps_stddev"`
	FPSMin       float64       `json:"fps_min" msgpack:"fps_min"`
	FPSMax       float64       `json:"fps_max" msgpack:"fps_max"`
	JitterMean   float64       `json:"jitter_mean_s" msgpack:"jitter_mean_s"`
	JitterStdDev float64       `json:"jitter_stddev_s" msgpack:"jitter_stddev_s"`
	JitterMax    float64       `json:"jitter_max_s" msgpack:"jitter_max_s"`
	IsStable     bool          `json:"stable" msgpack:"stable"`
}

// Calculate computes cadence statistics from emission times (monotonic host
// time offsets, oldest first).
//
// This function:
//  1. Calculates mean FPS over the window span
//  2. Calculates instantaneous FPS for each interval and its min/max/stddev
//  3. Calculates jitter (deviation from the expected interval)
//  4. Determines stability (stddev < 15% of mean AND jitter < 20% of interval)
//
// Fewer than two emissions yield zero statistics (not stable).
func Calculate(times []time.Duration) Stats {
	n := len(times)
	if n < 2 {
		return Stats{Frames: n}
	}

	span := times[n-1] - times[0]
	if span <= 0 {
		return Stats{Frames: n, Span: span}
	}
	fpsMean := float64(n-1) / span.Seconds()

	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if interval := (times[i] - times[i-1]).Seconds(); interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}
	if len(instantaneous) == 0 {
		return Stats{Frames: n, Span: span, FPSMean: fpsMean}
	}

	fpsMin, fpsMax := instantaneous[0], instantaneous[0]
	var sumSquares float64
	for _, fps := range instantaneous {
		fpsMin = math.Min(fpsMin, fps)
		fpsMax = math.Max(fpsMax, fps)
		diff := fps - fpsMean
		sumSquares += diff * diff
	}
	fpsStdDev := math.Sqrt(sumSquares / float64(len(instantaneous)))

	expectedInterval := 1.0 / fpsMean
	jitters := make([]float64, 0, n-1)
	var jitterSum, jitterMax float64
	for i := 1; i < n; i++ {
		j := math.Abs((times[i] - times[i-1]).Seconds() - expectedInterval)
		jitters = append(jitters, j)
		jitterSum += j
		jitterMax = math.Max(jitterMax, j)
	}
	jitterMean := jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - jitterMean
		jitterSumSquares += diff * diff
	}

	return Stats{
		Frames:       n,
		Span:         span,
		FPSMean:      fpsMean,
		FPSStdDev:    fpsStdDev,
		FPSMin:       fpsMin,
		FPSMax:       fpsMax,
		JitterMean:   jitterMean,
		JitterStdDev: math.Sqrt(jitterSumSquares / float64(len(jitters))),
		JitterMax:    jitterMax,
		IsStable: fpsStdDev < fpsMean*fpsStabilityThreshold &&
			jitterMean < expectedInterval*jitterStabilityThreshold,
	}
}

// Tracker keeps the emission times of the last N frames.
// Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	times []time.Duration
	next  int
	full  bool
}

// NewTracker creates a tracker over the last window emissions
func NewTracker(window int) *Tracker {
	if window < 2 {
		window = DefaultWindow
	}
	return &Tracker{times: make([]time.Duration, window)}
}

// Record adds one emission at host time t
func (t *Tracker) Record(at time.Duration) {
	t.mu.Lock()
	t.times[t.next] = at
	t.next = (t.next + 1) % len(t.times)
	if t.next == 0 {
		t.full = true
	}
	t.mu.Unlock()
}

// Reset forgets every recorded emission
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.next = 0
	t.full = false
	t.mu.Unlock()
}

// Stats calculates statistics over the recorded window
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	var ordered []time.Duration
	if t.full {
		ordered = make([]time.Duration, 0, len(t.times))
		ordered = append(ordered, t.times[t.next:]...)
		ordered = append(ordered, t.times[:t.next]...)
	} else {
		ordered = append([]time.Duration(nil), t.times[:t.next]...)
	}
	t.mu.Unlock()

	return Calculate(ordered)
}
