package frame

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Scaling selects the resampling quality
type Scaling int

const (
	// ScalingFast uses nearest-neighbor sampling
	ScalingFast Scaling = iota
	// ScalingLinear uses bilinear interpolation
	ScalingLinear
)

func (s Scaling) String() string {
	switch s {
	case ScalingFast:
		return "fast"
	case ScalingLinear:
		return "linear"
	default:
		return fmt.Sprintf("Scaling(%d)", int(s))
	}
}

// ParseScaling accepts "fast" or "linear"
func ParseScaling(s string) (Scaling, error) {
	switch s {
	case "fast":
		return ScalingFast, nil
	case "linear":
		return ScalingLinear, nil
	}
	return ScalingFast, fmt.Errorf("frame: unknown scaling mode %q", s)
}

func (s Scaling) interpolator() draw.Interpolator {
	if s == ScalingLinear {
		return draw.BiLinear
	}
	return draw.NearestNeighbor
}

// AspectRatio selects how a source is fitted into a target of different shape
type AspectRatio int

const (
	// AspectIgnore stretches the source to the target dimensions
	AspectIgnore AspectRatio = iota
	// AspectKeep fits the whole source and pads with black (letterbox/pillarbox)
	AspectKeep
	// AspectExpanding fills the target and crops the overflow around the center
	AspectExpanding
)

func (a AspectRatio) String() string {
	switch a {
	case AspectIgnore:
		return "ignore"
	case AspectKeep:
		return "keep"
	case AspectExpanding:
		return "expanding"
	default:
		return fmt.Sprintf("AspectRatio(%d)", int(a))
	}
}

// ParseAspectRatio accepts "ignore", "keep" or "expanding"
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch s {
	case "ignore":
		return AspectIgnore, nil
	case "keep":
		return AspectKeep, nil
	case "expanding":
		return AspectExpanding, nil
	}
	return AspectIgnore, fmt.Errorf("frame: unknown aspect ratio mode %q", s)
}

// Transform applies mirror, scale and pixel-format conversion, in that order.
//
// Pure and deterministic: identical inputs produce bit-identical output.
// Returns the empty frame when the source is empty, the target dimensions are
// not positive, or the target format is unknown.
func Transform(f VideoFrame, hMirror, vMirror bool, width, height int,
	scaling Scaling, aspect AspectRatio, format PixelFormat) VideoFrame {

	if f.IsEmpty() || width <= 0 || height <= 0 || !format.Valid() {
		return VideoFrame{}
	}

	sameSize := f.width == width && f.height == height
	if !hMirror && !vMirror && sameSize {
		return Convert(f, format)
	}

	canvas := decode(f)
	if hMirror || vMirror {
		canvas = mirrorRGBA(canvas, hMirror, vMirror)
	}
	if !sameSize {
		canvas = scaleRGBA(canvas, width, height, scaling, aspect)
	}
	return encode(canvas, format)
}

// Mirror flips the frame horizontally and/or vertically, keeping its format
func Mirror(f VideoFrame, horizontal, vertical bool) VideoFrame {
	if f.IsEmpty() {
		return VideoFrame{}
	}
	if !horizontal && !vertical {
		return f
	}
	return encode(mirrorRGBA(decode(f), horizontal, vertical), f.format)
}

// Scale resizes the frame to width x height, keeping its format
func Scale(f VideoFrame, width, height int, scaling Scaling, aspect AspectRatio) VideoFrame {
	if f.IsEmpty() || width <= 0 || height <= 0 {
		return VideoFrame{}
	}
	if f.width == width && f.height == height {
		return f
	}
	return encode(scaleRGBA(decode(f), width, height, scaling, aspect), f.format)
}

func mirrorRGBA(src *image.RGBA, horizontal, vertical bool) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := y
		if vertical {
			sy = h - 1 - y
		}
		srow := src.Pix[sy*src.Stride : sy*src.Stride+w*4]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		if !horizontal {
			copy(drow, srow)
			continue
		}
		for x := 0; x < w; x++ {
			copy(drow[x*4:x*4+4], srow[(w-1-x)*4:(w-x)*4])
		}
	}
	return dst
}

func scaleRGBA(src *image.RGBA, width, height int, scaling Scaling, aspect AspectRatio) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	interp := scaling.interpolator()

	switch aspect {
	case AspectKeep:
		// opaque black padding
		draw.Draw(dst, dst.Rect, image.Black, image.Point{}, draw.Src)
		interp.Scale(dst, fitRect(sw, sh, width, height), src, src.Rect, draw.Src, nil)

	case AspectExpanding:
		interp.Scale(dst, dst.Rect, src, cropRect(sw, sh, width, height), draw.Src, nil)

	default:
		interp.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
	}
	return dst
}

// fitRect returns the largest centered rect inside dw x dh with the source aspect
func fitRect(sw, sh, dw, dh int) image.Rectangle {
	w, h := dw, dh
	// compare sw/sh with dw/dh without floating point
	if sw*dh > dw*sh {
		h = max(1, dw*sh/sw)
	} else {
		w = max(1, dh*sw/sh)
	}
	x0, y0 := (dw-w)/2, (dh-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

// cropRect returns the largest centered source rect with the target aspect
func cropRect(sw, sh, dw, dh int) image.Rectangle {
	w, h := sw, sh
	if sw*dh > dw*sh {
		w = max(1, sh*dw/dh)
	} else {
		h = max(1, sw*dh/dw)
	}
	x0, y0 := (sw-w)/2, (sh-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

// Options bundles the transform parameters of a stream configuration
type Options struct {
	HMirror bool
	VMirror bool
	Scaling Scaling
	Aspect  AspectRatio
	Format  VideoFormat
}

// Apply transforms f to the configured format
func (o Options) Apply(f VideoFrame) VideoFrame {
	return Transform(f, o.HMirror, o.VMirror, o.Format.Width, o.Format.Height,
		o.Scaling, o.Aspect, o.Format.PixelFormat)
}
