package normalize

import (
	"image"

	"github.com/disintegration/imaging"
)

// FitDimensions returns the largest size with the source aspect ratio that
// fits inside target. Sizes that already fit are returned unchanged.
func FitDimensions(w, h int, target Size) Size {
	tw, th := target.Width, target.Height
	if w <= tw && h <= th {
		return Size{Width: w, Height: h}
	}
	if tw*h <= th*w {
		return Size{Width: tw, Height: max(1, h*tw/w)}
	}
	return Size{Width: max(1, w*th/h), Height: th}
}

// ResizeToFit shrinks img with Lanczos resampling until it fits inside
// target. It never upscales.
func ResizeToFit(img image.Image, target Size) image.Image {
	b := img.Bounds()
	fit := FitDimensions(b.Dx(), b.Dy(), target)
	if fit.Width == b.Dx() && fit.Height == b.Dy() {
		return img
	}
	return imaging.Resize(img, fit.Width, fit.Height, imaging.Lanczos)
}
