package normalize

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdoradca/PIM/internal/icc"
	"github.com/mcdoradca/PIM/internal/icc/icctest"
)

func TestDecodeClassifiesModes(t *testing.T) {
	paletted := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.Transparent})
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	opaque := gradientRGBA(4, 4)

	tests := []struct {
		name string
		img  image.Image
		want ColorMode
	}{
		{name: "rgb", img: opaque, want: ModeRGB},
		{name: "rgba", img: image.NewNRGBA(image.Rect(0, 0, 4, 4)), want: ModeRGBA},
		{name: "palette", img: paletted, want: ModePalette},
		{name: "gray", img: gray, want: ModeGrayscale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Decode(encodePNG(t, tt.img))
			require.NoError(t, err)
			assert.Equal(t, tt.want, raw.Mode)
			assert.Equal(t, "png", raw.Format)
			assert.Equal(t, "image/png", raw.MIME)
			assert.Equal(t, Size{Width: 4, Height: 4}, raw.Size())
		})
	}

	assert.Equal(t, ModeCMYK, classify(image.NewCMYK(image.Rect(0, 0, 1, 1))))
	assert.Equal(t, ModeOther, classify(image.NewAlpha(image.Rect(0, 0, 1, 1))))
}

func TestDecodeRejectsNonImages(t *testing.T) {
	_, err := Decode([]byte(`{"sku":"ABC-1"}`))
	var formatErr *FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.NotContains(t, formatErr.MIME, "image/")
}

func TestProbeImage(t *testing.T) {
	p, err := ProbeImage(encodePNG(t, gradientRGBA(30, 20)))
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 30, Height: 20}, p.Size)
	assert.Equal(t, "png", p.Format)
}

func pressTransform(t *testing.T) *icc.Transform {
	t.Helper()
	src, err := icc.Parse(icctest.CMYKProfile(icctest.LUT16CMYK()))
	require.NoError(t, err)
	xf, err := icc.NewTransform(src, nil, icc.IntentPerceptual)
	require.NoError(t, err)
	return xf
}

func TestColorNormalizerCMYK(t *testing.T) {
	cmyk := image.NewCMYK(image.Rect(0, 0, 2, 1))
	cmyk.SetCMYK(1, 0, color.CMYK{K: 255})
	raw := RawImage{Mode: ModeCMYK, Image: cmyk, Width: 2, Height: 1}

	out, err := NewColorNormalizer(pressTransform(t)).Normalize(raw, true)
	require.NoError(t, err)
	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)

	paper := rgba.RGBAAt(0, 0)
	assert.GreaterOrEqual(t, paper.R, uint8(254))
	assert.GreaterOrEqual(t, paper.B, uint8(254))
	ink := rgba.RGBAAt(1, 0)
	assert.LessOrEqual(t, ink.G, uint8(1))
	assert.Equal(t, uint8(255), ink.A)

	_, err = NewColorNormalizer(nil).Normalize(raw, true)
	var profileErr *ColorProfileError
	require.True(t, errors.As(err, &profileErr))
	assert.ErrorIs(t, err, ErrNoColorProfile)
}

func TestColorNormalizerAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 128})
	src.SetNRGBA(2, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	raw := RawImage{Mode: ModeRGBA, Image: src, Width: 3, Height: 1}
	cn := NewColorNormalizer(nil)

	flat, err := cn.Normalize(raw, true)
	require.NoError(t, err)
	got := flat.(*image.RGBA)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, got.RGBAAt(0, 0))
	assert.InDelta(t, 127, got.RGBAAt(1, 0).R, 1)
	assert.Equal(t, color.RGBA{200, 100, 50, 255}, got.RGBAAt(2, 0))

	dropped, err := cn.Normalize(raw, false)
	require.NoError(t, err)
	got = dropped.(*image.RGBA)
	assert.Equal(t, color.RGBA{10, 20, 30, 255}, got.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, got.RGBAAt(1, 0))

	// The source is never written to.
	assert.Equal(t, uint8(0), src.NRGBAAt(0, 0).A)
}

func TestColorNormalizerPaletteTransparency(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 2, 1), color.Palette{
		color.NRGBA{A: 0},
		color.NRGBA{R: 0, G: 0, B: 255, A: 255},
	})
	pal.SetColorIndex(1, 0, 1)

	out, err := NewColorNormalizer(nil).Normalize(RawImage{Mode: ModePalette, Image: pal}, true)
	require.NoError(t, err)
	rgba := out.(*image.RGBA)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, rgba.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, rgba.RGBAAt(1, 0))
}

func TestColorNormalizerPassesRGBThrough(t *testing.T) {
	src := gradientRGBA(8, 8)
	out, err := NewColorNormalizer(nil).Normalize(RawImage{Mode: ModeRGB, Image: src}, true)
	require.NoError(t, err)
	assert.Same(t, src, out)
}

func TestColorNormalizerGrayscale(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 1, 1))
	g.SetGray(0, 0, color.Gray{Y: 77})
	out, err := NewColorNormalizer(nil).Normalize(RawImage{Mode: ModeGrayscale, Image: g}, true)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{77, 77, 77, 255}, out.(*image.RGBA).RGBAAt(0, 0))
}

func TestFitDimensions(t *testing.T) {
	target := Size{Width: 2500, Height: 2500}
	tests := []struct {
		w, h int
		want Size
	}{
		{3000, 1000, Size{2500, 833}},
		{1000, 3000, Size{833, 2500}},
		{5000, 5000, Size{2500, 2500}},
		{500, 500, Size{500, 500}},
		{2500, 2500, Size{2500, 2500}},
		{100000, 10, Size{2500, 1}},
		{2600, 2400, Size{2500, 2307}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FitDimensions(tt.w, tt.h, target), "%dx%d", tt.w, tt.h)
	}
}

func TestResizeToFit(t *testing.T) {
	small := gradientRGBA(40, 40)
	assert.Same(t, small, ResizeToFit(small, Size{Width: 100, Height: 100}))

	out := ResizeToFit(gradientRGBA(300, 100), Size{Width: 150, Height: 150})
	assert.Equal(t, image.Rect(0, 0, 150, 50), out.Bounds())
}

func TestPadToExact(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for i := range src.Pix {
		src.Pix[i] = 0
	}
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 255
	}

	canvas, err := PadToExact(src, Size{Width: 8, Height: 7}, white)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 8, 7), canvas.Bounds())

	pad, err := Margins(src, Size{Width: 8, Height: 7})
	require.NoError(t, err)
	assert.Equal(t, Padding{Left: 2, Top: 2, Right: 3, Bottom: 3}, pad)

	for y := 0; y < 7; y++ {
		for x := 0; x < 8; x++ {
			inside := x >= 2 && x < 5 && y >= 2 && y < 4
			want := white
			if inside {
				want = color.RGBA{A: 255}
			}
			assert.Equal(t, want, canvas.RGBAAt(x, y), "pixel %d,%d", x, y)
		}
	}

	_, err = PadToExact(src, Size{Width: 2, Height: 7}, white)
	assert.Error(t, err)
}

func TestValidateImageQuality(t *testing.T) {
	logger, hook := test.NewNullLogger()
	min := Size{Width: 1000, Height: 1000}

	assert.True(t, ValidateImageQuality(logger, image.NewRGBA(image.Rect(0, 0, 1000, 1000)), min))
	assert.Empty(t, hook.AllEntries())

	assert.False(t, ValidateImageQuality(logger, image.NewRGBA(image.Rect(0, 0, 1000, 999)), min))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, 999, entry.Data["height"])
	assert.Equal(t, 1000, entry.Data["min_height"])

	assert.False(t, ValidateSize(logger, Size{Width: 999, Height: 4000}, min))
}

func TestSpecValidate(t *testing.T) {
	require.NoError(t, DefaultSpec().Validate())

	jpg := DefaultSpec()
	jpg.OutputFormat = "jpg"
	assert.NoError(t, jpg.Validate())

	mutations := map[string]func(*Spec){
		"zero width":  func(s *Spec) { s.TargetSize.Width = 0 },
		"quality 0":   func(s *Spec) { s.Quality = 0 },
		"quality 101": func(s *Spec) { s.Quality = 101 },
		"webp":        func(s *Spec) { s.OutputFormat = "WEBP" },
		"4:2:0":       func(s *Spec) { s.ChromaSubsampling = Subsampling420 },
		"wide":        func(s *Spec) { s.TargetSize = Size{Width: 70000, Height: 10} },
		"overflow":    func(s *Spec) { s.TargetSize = Size{Width: 1 << 31, Height: 1 << 31} },
		"pixels":      func(s *Spec) { s.TargetSize = Size{Width: 60000, Height: 60000} },
		"low cap":     func(s *Spec) { s.MaxTargetPixels = 2500*2500 - 1 },
		"negative":    func(s *Spec) { s.MaxTargetPixels = -1 },
	}
	for name, mutate := range mutations {
		s := DefaultSpec()
		mutate(&s)
		assert.ErrorIs(t, s.Validate(), ErrInvalidSpec, name)
	}

	edge := DefaultSpec()
	edge.TargetSize = Size{Width: MaxTargetSide, Height: 1}
	assert.NoError(t, edge.Validate())
	edge.TargetSize = Size{Width: 8000, Height: 8000}
	assert.NoError(t, edge.Validate())
}
