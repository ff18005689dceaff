package frame

import (
	"bytes"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// VideoFrame is an immutable raw video frame.
//
// IMMUTABILITY CONTRACT:
//   - A frame exclusively owns its pixel buffer; transforms return new frames
//   - Data() is shared by reference and MUST NOT be modified by callers
//   - Copying the struct is cheap and safe (readers never mutate)
//
// The zero value is the empty frame, which callers treat as "skip".
type VideoFrame struct {
	format PixelFormat
	width  int
	height int
	data   []byte
}

// New creates a frame from a copy of data.
// Returns an error if the format is unknown or data is shorter than required.
func New(format PixelFormat, width, height int, data []byte) (VideoFrame, error) {
	size := format.ByteSize(width, height)
	if size == 0 {
		return VideoFrame{}, fmt.Errorf("frame: invalid frame %s %dx%d", format, width, height)
	}
	if len(data) < size {
		return VideoFrame{}, fmt.Errorf("frame: short buffer for %s %dx%d (got %d bytes, need %d)",
			format, width, height, len(data), size)
	}
	buf := make([]byte, size)
	copy(buf, data)
	return VideoFrame{format: format, width: width, height: height, data: buf}, nil
}

// wrap adopts buf without copying; only used for freshly allocated buffers
func wrap(format PixelFormat, width, height int, buf []byte) VideoFrame {
	return VideoFrame{format: format, width: width, height: height, data: buf}
}

// FromImage converts any image.Image into a frame of the given pixel format
func FromImage(img image.Image, format PixelFormat) VideoFrame {
	if img == nil || img.Bounds().Empty() || !format.Valid() {
		return VideoFrame{}
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	}
	return encode(rgba, format)
}

// Format returns the pixel format
func (f VideoFrame) Format() PixelFormat { return f.format }

// Width in pixels
func (f VideoFrame) Width() int { return f.width }

// Height in pixels
func (f VideoFrame) Height() int { return f.height }

// Data returns the pixel buffer (read-only, see immutability contract)
func (f VideoFrame) Data() []byte { return f.data }

// Size returns the pixel buffer size in bytes
func (f VideoFrame) Size() int { return len(f.data) }

// IsEmpty reports whether the frame carries no usable image
func (f VideoFrame) IsEmpty() bool {
	return f.width <= 0 || f.height <= 0 || len(f.data) == 0 || !f.format.Valid()
}

// VideoFormat returns the frame's pixel format and dimensions as a VideoFormat
func (f VideoFrame) VideoFormat() VideoFormat {
	return VideoFormat{PixelFormat: f.format, Width: f.width, Height: f.height}
}

// Matches reports whether the frame has the pixel format and dimensions of vf
func (f VideoFrame) Matches(vf VideoFormat) bool {
	return !f.IsEmpty() && f.VideoFormat().Equal(vf)
}

// Clone returns a deep copy of the frame
func (f VideoFrame) Clone() VideoFrame {
	if f.data == nil {
		return f
	}
	buf := make([]byte, len(f.data))
	copy(buf, f.data)
	return wrap(f.format, f.width, f.height, buf)
}

// Equal reports bit-identical format, dimensions and pixels
func (f VideoFrame) Equal(o VideoFrame) bool {
	return f.format == o.format && f.width == o.width && f.height == o.height &&
		bytes.Equal(f.data, o.data)
}

// ToRGBA decodes the frame into a new RGBA image.
// Returns nil for empty frames.
func (f VideoFrame) ToRGBA() *image.RGBA {
	if f.IsEmpty() {
		return nil
	}
	return decode(f)
}

// String returns e.g. "YUY2 640x480 (614400 bytes)"
func (f VideoFrame) String() string {
	return fmt.Sprintf("%s %dx%d (%d bytes)", f.format, f.width, f.height, len(f.data))
}
