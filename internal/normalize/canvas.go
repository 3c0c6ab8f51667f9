package normalize

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Padding is the border added on each side to reach the target size.
type Padding struct {
	Left, Top, Right, Bottom int
}

// Margins splits the difference between img and target. The odd pixel goes
// to the right and bottom.
func Margins(img image.Image, target Size) (Padding, error) {
	b := img.Bounds()
	dw, dh := target.Width-b.Dx(), target.Height-b.Dy()
	if dw < 0 || dh < 0 {
		return Padding{}, fmt.Errorf("image %dx%d exceeds canvas %s", b.Dx(), b.Dy(), target)
	}
	left, top := dw/2, dh/2
	return Padding{Left: left, Top: top, Right: dw - left, Bottom: dh - top}, nil
}

// PadToExact centers img on a target-sized canvas filled with fill.
func PadToExact(img image.Image, target Size, fill color.RGBA) (*image.RGBA, error) {
	pad, err := Margins(img, target)
	if err != nil {
		return nil, err
	}
	canvas := image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)

	b := img.Bounds()
	at := image.Rect(pad.Left, pad.Top, pad.Left+b.Dx(), pad.Top+b.Dy())
	draw.Draw(canvas, at, img, b.Min, draw.Src)
	return canvas, nil
}
