package core

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/vcam"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/testframe"
)

// Producer generates scrolling color bars at a fixed rate and hands them to
// the stream. It stands in for a real capture source and deliberately runs
// on its own clock, unrelated to the stream's emission rate.
type Producer struct {
	fps    float64
	width  int
	height int
	bars   *image.RGBA
	offset int
}

// NewProducer creates a producer of width x height RGB24 frames
func NewProducer(fps float64, width, height int) *Producer {
	return &Producer{
		fps:    fps,
		width:  width,
		height: height,
		bars:   testframe.Bars(width, height),
	}
}

// Next returns the next frame, scrolled one step to the left
func (p *Producer) Next() vcam.VideoFrame {
	step := max(p.width/120, 1)
	img := image.NewRGBA(p.bars.Rect)
	rowBytes := p.width * 4
	shift := (p.offset % p.width) * 4

	for y := 0; y < p.height; y++ {
		src := p.bars.Pix[y*p.bars.Stride : y*p.bars.Stride+rowBytes]
		dst := img.Pix[y*img.Stride : y*img.Stride+rowBytes]
		n := copy(dst, src[shift:])
		copy(dst[n:], src[:shift])
	}
	p.offset += step

	return vcam.FrameFromImage(img, vcam.FormatRGB24)
}

// Run pushes frames into s until ctx is done
func (p *Producer) Run(ctx context.Context, s vcam.Stream) {
	interval := time.Duration(float64(time.Second) / p.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("vcam: demo producer started",
		"fps", p.fps,
		"width", p.width,
		"height", p.height,
	)

	var frames uint64
	for {
		select {
		case <-ctx.Done():
			slog.Info("vcam: demo producer stopped", "frames", frames)
			return
		case <-ticker.C:
			s.FrameReady(p.Next())
			frames++
		}
	}
}
