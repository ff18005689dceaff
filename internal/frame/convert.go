package frame

import (
	"image"
	"image/color"
)

// Convert returns f encoded in the target pixel format.
// Same-format conversion returns f unchanged; empty input or an unknown
// target returns the empty frame.
func Convert(f VideoFrame, format PixelFormat) VideoFrame {
	if f.IsEmpty() || !format.Valid() {
		return VideoFrame{}
	}
	if f.format == format {
		return f
	}
	return encode(decode(f), format)
}

// decode expands any supported format into a freshly allocated RGBA canvas
func decode(f VideoFrame) *image.RGBA {
	w, h := f.width, f.height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	dst := img.Pix
	src := f.data

	switch f.format {
	case FormatRGBA32:
		copy(dst, src[:w*h*4])

	case FormatBGRA32:
		for i := 0; i < w*h; i++ {
			dst[i*4+0] = src[i*4+2]
			dst[i*4+1] = src[i*4+1]
			dst[i*4+2] = src[i*4+0]
			dst[i*4+3] = src[i*4+3]
		}

	case FormatRGB24, FormatBGR24:
		r, b := 0, 2
		if f.format == FormatBGR24 {
			r, b = 2, 0
		}
		for i := 0; i < w*h; i++ {
			dst[i*4+0] = src[i*3+r]
			dst[i*4+1] = src[i*3+1]
			dst[i*4+2] = src[i*3+b]
			dst[i*4+3] = 0xff
		}

	case FormatYUY2, FormatUYVY:
		// byte offsets of Y0, U, Y1, V inside a 4-byte macropixel
		y0, u, y1, v := 0, 1, 2, 3
		if f.format == FormatUYVY {
			y0, u, y1, v = 1, 0, 3, 2
		}
		stride := ((w + 1) / 2) * 4
		for y := 0; y < h; y++ {
			row := src[y*stride:]
			for x := 0; x < w; x++ {
				mp := row[(x/2)*4:]
				luma := mp[y0]
				if x%2 == 1 {
					luma = mp[y1]
				}
				setYCbCr(dst, (y*w+x)*4, luma, mp[u], mp[v])
			}
		}

	case FormatNV12, FormatI420:
		cw, ch := (w+1)/2, (h+1)/2
		lumaPlane := src[:w*h]
		chroma := src[w*h:]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				ci := (y/2)*cw + x/2
				var cb, cr uint8
				if f.format == FormatNV12 {
					cb, cr = chroma[ci*2], chroma[ci*2+1]
				} else {
					cb, cr = chroma[ci], chroma[cw*ch+ci]
				}
				setYCbCr(dst, (y*w+x)*4, lumaPlane[y*w+x], cb, cr)
			}
		}
	}

	return img
}

func setYCbCr(dst []byte, off int, y, cb, cr uint8) {
	r, g, b := color.YCbCrToRGB(y, cb, cr)
	dst[off+0] = r
	dst[off+1] = g
	dst[off+2] = b
	dst[off+3] = 0xff
}

// encode packs an RGBA canvas (origin at 0,0) into a new frame
func encode(img *image.RGBA, format PixelFormat) VideoFrame {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	size := format.ByteSize(w, h)
	if size == 0 {
		return VideoFrame{}
	}
	out := make([]byte, size)
	px := func(x, y int) (uint8, uint8, uint8, uint8) {
		o := y*img.Stride + x*4
		return img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3]
	}

	switch format {
	case FormatRGBA32, FormatBGRA32:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, b, a := px(x, y)
				o := (y*w + x) * 4
				if format == FormatBGRA32 {
					r, b = b, r
				}
				out[o], out[o+1], out[o+2], out[o+3] = r, g, b, a
			}
		}

	case FormatRGB24, FormatBGR24:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, b, _ := px(x, y)
				o := (y*w + x) * 3
				if format == FormatBGR24 {
					r, b = b, r
				}
				out[o], out[o+1], out[o+2] = r, g, b
			}
		}

	case FormatYUY2, FormatUYVY:
		y0, u, y1, v := 0, 1, 2, 3
		if format == FormatUYVY {
			y0, u, y1, v = 1, 0, 3, 2
		}
		stride := ((w + 1) / 2) * 4
		for y := 0; y < h; y++ {
			for x := 0; x < w; x += 2 {
				r0, g0, b0, _ := px(x, y)
				r1, g1, b1 := r0, g0, b0
				if x+1 < w {
					r1, g1, b1, _ = px(x+1, y)
				}
				l0, cb0, cr0 := color.RGBToYCbCr(r0, g0, b0)
				l1, cb1, cr1 := color.RGBToYCbCr(r1, g1, b1)
				mp := out[y*stride+(x/2)*4:]
				mp[y0], mp[y1] = l0, l1
				mp[u] = avg2(cb0, cb1)
				mp[v] = avg2(cr0, cr1)
			}
		}

	case FormatNV12, FormatI420:
		cw, ch := (w+1)/2, (h+1)/2
		lumaPlane := out[:w*h]
		chroma := out[w*h:]
		for cy := 0; cy < ch; cy++ {
			for cx := 0; cx < cw; cx++ {
				var sumCb, sumCr, n int
				for dy := 0; dy < 2; dy++ {
					for dx := 0; dx < 2; dx++ {
						x, y := cx*2+dx, cy*2+dy
						if x >= w || y >= h {
							continue
						}
						r, g, b, _ := px(x, y)
						l, cb, cr := color.RGBToYCbCr(r, g, b)
						lumaPlane[y*w+x] = l
						sumCb += int(cb)
						sumCr += int(cr)
						n++
					}
				}
				ci := cy*cw + cx
				cb, cr := uint8((sumCb+n/2)/n), uint8((sumCr+n/2)/n)
				if format == FormatNV12 {
					chroma[ci*2], chroma[ci*2+1] = cb, cr
				} else {
					chroma[ci], chroma[cw*ch+ci] = cb, cr
				}
			}
		}
	}

	return wrap(format, w, h, out)
}

func avg2(a, b uint8) uint8 {
	return uint8((int(a) + int(b) + 1) / 2)
}
