// Package frame implements raw video frames and the transform pipeline
// (mirror → scale → pixel-format conversion) applied to them.
package frame

import "fmt"

// PixelFormat is a FourCC pixel format code (V4L2 byte order).
type PixelFormat uint32

func fourcc(a, b, c, d byte) PixelFormat {
	return PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

// Supported pixel formats
var (
	// FormatRGB24 is packed R,G,B (3 bytes per pixel)
	FormatRGB24 = fourcc('R', 'G', 'B', '3')
	// FormatBGR24 is packed B,G,R (3 bytes per pixel)
	FormatBGR24 = fourcc('B', 'G', 'R', '3')
	// FormatRGBA32 is packed R,G,B,A (4 bytes per pixel)
	FormatRGBA32 = fourcc('A', 'B', '2', '4')
	// FormatBGRA32 is packed B,G,R,A (4 bytes per pixel)
	FormatBGRA32 = fourcc('A', 'R', '2', '4')
	// FormatYUY2 is packed 4:2:2 Y0,U,Y1,V
	FormatYUY2 = fourcc('Y', 'U', 'Y', 'V')
	// FormatUYVY is packed 4:2:2 U,Y0,V,Y1
	FormatUYVY = fourcc('U', 'Y', 'V', 'Y')
	// FormatNV12 is 4:2:0 semi-planar (Y plane + interleaved UV plane)
	FormatNV12 = fourcc('N', 'V', '1', '2')
	// FormatI420 is 4:2:0 planar (Y, U, V planes)
	FormatI420 = fourcc('Y', 'U', '1', '2')
)

// FormatInvalid is the zero value and never produced by a transform.
const FormatInvalid PixelFormat = 0

var formatNames = map[PixelFormat]string{
	FormatRGB24:  "RGB24",
	FormatBGR24:  "BGR24",
	FormatRGBA32: "RGBA32",
	FormatBGRA32: "BGRA32",
	FormatYUY2:   "YUY2",
	FormatUYVY:   "UYVY",
	FormatNV12:   "NV12",
	FormatI420:   "I420",
}

// gstreamer raw video format names (video/x-raw,format=...)
var gstNames = map[PixelFormat]string{
	FormatRGB24:  "RGB",
	FormatBGR24:  "BGR",
	FormatRGBA32: "RGBA",
	FormatBGRA32: "BGRA",
	FormatYUY2:   "YUY2",
	FormatUYVY:   "UYVY",
	FormatNV12:   "NV12",
	FormatI420:   "I420",
}

// String returns a human-readable name of the pixel format
func (p PixelFormat) String() string {
	if name, ok := formatNames[p]; ok {
		return name
	}
	return fmt.Sprintf("FourCC(%#08x)", uint32(p))
}

// FourCC returns the four character code as a string (e.g. "YUYV")
func (p PixelFormat) FourCC() string {
	v := uint32(p)
	return string([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// Valid reports whether the format is one this package can read and write
func (p PixelFormat) Valid() bool {
	_, ok := formatNames[p]
	return ok
}

// GstName returns the GStreamer caps format name
func (p PixelFormat) GstName() string {
	return gstNames[p]
}

// ParsePixelFormat accepts either a format name ("YUY2", "RGB24") or a FourCC ("YUYV")
func ParsePixelFormat(s string) (PixelFormat, error) {
	for f, name := range formatNames {
		if name == s {
			return f, nil
		}
	}
	if len(s) == 4 {
		f := fourcc(s[0], s[1], s[2], s[3])
		if f.Valid() {
			return f, nil
		}
	}
	return FormatInvalid, fmt.Errorf("frame: unknown pixel format %q", s)
}

// ByteSize returns the buffer size of a width x height image in this format.
// Returns 0 for unknown formats or non-positive dimensions.
func (p PixelFormat) ByteSize(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	switch p {
	case FormatRGB24, FormatBGR24:
		return width * height * 3
	case FormatRGBA32, FormatBGRA32:
		return width * height * 4
	case FormatYUY2, FormatUYVY:
		return ((width + 1) / 2) * 4 * height
	case FormatNV12, FormatI420:
		cw, ch := (width+1)/2, (height+1)/2
		return width*height + 2*cw*ch
	default:
		return 0
	}
}

// VideoFormat describes a negotiated output format.
// Immutable once negotiated for a running stream.
type VideoFormat struct {
	PixelFormat PixelFormat
	Width       int
	Height      int
	// FrameRates lists supported rates in frames per second; the first is the default
	FrameRates []float64
}

// MinimumFrameRate returns the lowest supported frame rate (0 when none)
func (f VideoFormat) MinimumFrameRate() float64 {
	var min float64
	for i, r := range f.FrameRates {
		if i == 0 || r < min {
			min = r
		}
	}
	return min
}

// ByteSize returns the frame buffer size for this format
func (f VideoFormat) ByteSize() int {
	return f.PixelFormat.ByteSize(f.Width, f.Height)
}

// Valid reports whether the format can be produced
func (f VideoFormat) Valid() bool {
	return f.PixelFormat.Valid() && f.Width > 0 && f.Height > 0
}

// Equal compares pixel format and dimensions (frame rates are ignored)
func (f VideoFormat) Equal(o VideoFormat) bool {
	return f.PixelFormat == o.PixelFormat && f.Width == o.Width && f.Height == o.Height
}

// String returns e.g. "YUY2 1280x720"
func (f VideoFormat) String() string {
	return fmt.Sprintf("%s %dx%d", f.PixelFormat, f.Width, f.Height)
}
