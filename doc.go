// Package vcam provides a synthetic video source: a periodic timing pipeline
// that turns frames pushed by a producer into timed, sequenced samples for a
// downstream consumer.
//
// # Quick Start
//
//	dev := vcam.NewDevice(nil)
//	defer dev.Close()
//
//	stream, err := dev.AddStream(vcam.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	stream.SetFormats([]vcam.VideoFormat{{
//	    PixelFormat: vcam.FormatYUY2,
//	    Width:       1280,
//	    Height:      720,
//	    FrameRates:  []float64{30},
//	}})
//	stream.SetQueueAltered(func(*vcam.Sample) { /* wake consumer */ })
//	stream.Start()
//	stream.SetBroadcasting(true)
//
//	// producer goroutine
//	f, _ := vcam.NewFrame(vcam.FormatRGB24, 640, 480, pixels)
//	stream.FrameReady(f)
//
//	// consumer goroutine
//	sample, err := stream.Queue().Dequeue(ctx)
//
// # Pipeline
//
//	producer → FrameReady → transform (mirror, scale, convert) → current-frame slot
//	timer tick → slot snapshot → pts clock → sample → bounded queue → consumer
//
// The timer emits at the negotiated frame rate whether or not the producer
// keeps up: the last frame is repeated, and while broadcasting is off (or
// before the first producer frame) a test frame is emitted instead.
//
// # Timing
//
// Presentation timestamps advance by exactly one frame duration per sample.
// When the host clock drifts more than DriftThreshold frame durations from
// the expected pts (or goes backwards), the pts resynchronizes to the host
// time and the sample is flagged as a discontinuity.
//
// # Drops
//
// The queue never blocks the timer. A full queue drops the tick; counters
// are reported by Stats.
package vcam
