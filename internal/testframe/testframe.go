// Package testframe provides the fallback image emitted while no producer
// frames are broadcast, and caches it adapted to the active configuration.
package testframe

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"
	"sync"

	_ "golang.org/x/image/bmp" // register BMP decoder

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
)

// Default size of the built-in test pattern
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Pipeline holds the source test image and its cached adapted form.
// Safe for concurrent use.
type Pipeline struct {
	source frame.VideoFrame

	mu      sync.Mutex
	adapted frame.VideoFrame
}

// New creates a pipeline for src. A nil src selects the built-in color bars.
func New(src image.Image) *Pipeline {
	if src == nil {
		src = Bars(DefaultWidth, DefaultHeight)
	}
	return &Pipeline{source: frame.FromImage(src, frame.FormatRGBA32)}
}

// NewFromFile creates a pipeline from a BMP, PNG or JPEG file
func NewFromFile(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("testframe: open %s: %w", path, err)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("testframe: %s: %w", path, err)
	}
	return New(img), nil
}

// Decode reads a BMP, PNG or JPEG image
func Decode(r io.Reader) (image.Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode test image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode test image: empty %s image", format)
	}
	return img, nil
}

// Source returns the unadapted test frame (RGBA32)
func (p *Pipeline) Source() frame.VideoFrame {
	return p.source
}

// Update re-derives the cached frame for opts and returns it
func (p *Pipeline) Update(opts frame.Options) frame.VideoFrame {
	adapted := opts.Apply(p.source)

	p.mu.Lock()
	p.adapted = adapted
	p.mu.Unlock()
	return adapted
}

// Frame returns the cached adapted frame (empty before Update or after Clear)
func (p *Pipeline) Frame() frame.VideoFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adapted
}

// Clear drops the cached frame
func (p *Pipeline) Clear() {
	p.mu.Lock()
	p.adapted = frame.VideoFrame{}
	p.mu.Unlock()
}

// SMPTE-style bar colors, left to right (75% intensity)
var barColors = []color.RGBA{
	{191, 191, 191, 255}, // gray
	{191, 191, 0, 255},   // yellow
	{0, 191, 191, 255},   // cyan
	{0, 191, 0, 255},     // green
	{191, 0, 191, 255},   // magenta
	{191, 0, 0, 255},     // red
	{0, 0, 191, 255},     // blue
}

// Bars draws vertical color bars over a black-to-white ramp in the bottom quarter
func Bars(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rampTop := height * 3 / 4

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.RGBA
			if y < rampTop {
				c = barColors[x*len(barColors)/width]
			} else {
				v := uint8(x * 255 / max(1, width-1))
				c = color.RGBA{v, v, v, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
