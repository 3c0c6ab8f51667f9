package jpegenc

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), uint8((x + y) % 256), 255})
		}
	}
	return img
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestEncodeDecodesWithStdlib(t *testing.T) {
	for _, optimize := range []bool{false, true} {
		src := gradient(37, 21)
		data, err := EncodeBytes(src, &Options{Quality: 92, OptimizeHuffman: optimize})
		require.NoError(t, err)

		decoded, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err, "optimize=%v", optimize)
		require.Equal(t, src.Bounds(), decoded.Bounds())

		ycc, ok := decoded.(*image.YCbCr)
		require.True(t, ok)
		assert.Equal(t, image.YCbCrSubsampleRatio444, ycc.SubsampleRatio)

		worst := 0
		for y := 0; y < 21; y++ {
			for x := 0; x < 37; x++ {
				want := src.RGBAAt(x, y)
				got := color.RGBAModel.Convert(decoded.At(x, y)).(color.RGBA)
				worst = max(worst, absDiff(want.R, got.R), absDiff(want.G, got.G), absDiff(want.B, got.B))
			}
		}
		assert.LessOrEqual(t, worst, 24, "optimize=%v", optimize)
	}
}

func TestEncodeSolidColorsAreExact(t *testing.T) {
	for _, c := range []color.RGBA{{255, 255, 255, 255}, {0, 0, 0, 255}, {200, 30, 90, 255}} {
		img := image.NewRGBA(image.Rect(0, 0, 16, 16))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
		}
		data, err := EncodeBytes(img, &Options{Quality: 92, OptimizeHuffman: true})
		require.NoError(t, err)

		decoded, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		got := color.RGBAModel.Convert(decoded.At(7, 7)).(color.RGBA)
		assert.LessOrEqual(t, absDiff(c.R, got.R), 2)
		assert.LessOrEqual(t, absDiff(c.G, got.G), 2)
		assert.LessOrEqual(t, absDiff(c.B, got.B), 2)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	src := gradient(64, 48)
	a, err := EncodeBytes(src, &Options{Quality: 92, OptimizeHuffman: true})
	require.NoError(t, err)
	b, err := EncodeBytes(src, &Options{Quality: 92, OptimizeHuffman: true})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOptimizedTablesAreSmaller(t *testing.T) {
	src := gradient(128, 128)
	std, err := EncodeBytes(src, &Options{Quality: 92})
	require.NoError(t, err)
	opt, err := EncodeBytes(src, &Options{Quality: 92, OptimizeHuffman: true})
	require.NoError(t, err)
	assert.Less(t, len(opt), len(std))
}

func TestEncodeRejectsEmptyImage(t *testing.T) {
	_, err := EncodeBytes(image.NewRGBA(image.Rect(0, 0, 0, 10)), nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestEncodeOffsetBounds(t *testing.T) {
	src := gradient(40, 40).SubImage(image.Rect(5, 7, 30, 20))
	data, err := EncodeBytes(src, nil)
	require.NoError(t, err)

	info, err := Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, 25, info.Width)
	assert.Equal(t, 13, info.Height)
}

func TestOptimalSpecLimitsCodeLength(t *testing.T) {
	// Fibonacci frequencies produce a maximally unbalanced tree.
	var freq [256]int64
	a, b := int64(1), int64(1)
	for i := 0; i < 40; i++ {
		freq[i] = a
		a, b = b, a+b
	}

	spec := optimalSpec(&freq)
	total := 0
	for _, n := range spec.counts {
		total += int(n)
	}
	assert.Equal(t, 40, total)
	assert.Len(t, spec.values, 40)

	code, err := spec.build()
	require.NoError(t, err)
	for sym := 0; sym < 40; sym++ {
		assert.NotZero(t, code.size[sym])
		assert.LessOrEqual(t, int(code.size[sym]), maxCodeLength)
	}
}

func TestScaleQuantTable(t *testing.T) {
	luma, chroma := QuantTables(92)
	assert.Equal(t, uint8(3), luma[0])
	assert.Equal(t, uint8(2), luma[2])
	assert.Equal(t, uint8(3), chroma[0])
	assert.Equal(t, uint8(16), chroma[63])

	q100 := ScaleQuantTable(stdLuminanceQuant, 100)
	for _, v := range q100 {
		assert.Equal(t, uint8(1), v)
	}
	q1 := ScaleQuantTable(stdLuminanceQuant, 1)
	assert.Equal(t, uint8(255), q1[63])
}
