package normalize

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/mcdoradca/PIM/internal/icc"
)

var white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// ColorNormalizer brings any decoded source into opaque sRGB.
type ColorNormalizer struct {
	transform *icc.Transform
}

// NewColorNormalizer binds the CMYK to sRGB transform. With a nil transform
// CMYK sources fail with a ColorProfileError.
func NewColorNormalizer(transform *icc.Transform) *ColorNormalizer {
	return &ColorNormalizer{transform: transform}
}

// Normalize returns an opaque RGB image. RGB sources are returned as is;
// every other mode yields a freshly allocated image.
func (n *ColorNormalizer) Normalize(raw RawImage, forceWhite bool) (image.Image, error) {
	switch raw.Mode {
	case ModeRGB:
		return raw.Image, nil
	case ModeCMYK:
		src, ok := raw.Image.(*image.CMYK)
		if !ok {
			return nil, &ColorProfileError{Mode: raw.Mode, Err: fmt.Errorf("unexpected pixel type %T", raw.Image)}
		}
		if n == nil || n.transform == nil {
			return nil, &ColorProfileError{Mode: raw.Mode, Err: ErrNoColorProfile}
		}
		return n.transform.Convert(src), nil
	case ModeRGBA, ModePalette:
		if forceWhite {
			return flattenOnWhite(raw.Image), nil
		}
		return dropAlpha(raw.Image), nil
	default:
		return dropAlpha(raw.Image), nil
	}
}

// flattenOnWhite composites src over an opaque white canvas using its alpha.
func flattenOnWhite(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// dropAlpha keeps the unpremultiplied color of every pixel and discards its
// alpha without blending.
func dropAlpha(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if nrgba, ok := src.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			s := nrgba.Pix[nrgba.PixOffset(b.Min.X, b.Min.Y+y):]
			d := dst.Pix[y*dst.Stride:]
			copy(d[:4*b.Dx()], s[:4*b.Dx()])
			for x := 0; x < b.Dx(); x++ {
				d[4*x+3] = 0xff
			}
		}
		return dst
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}
