package icc

import (
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdoradca/PIM/internal/icc/icctest"
)

func mustTransform(t *testing.T, a2b []byte, dst []byte) *Transform {
	t.Helper()
	src, err := Parse(icctest.CMYKProfile(a2b))
	require.NoError(t, err)
	var dp *Profile
	if dst != nil {
		dp, err = Parse(dst)
		require.NoError(t, err)
	}
	xf, err := NewTransform(src, dp, IntentPerceptual)
	require.NoError(t, err)
	return xf
}

func assertRGB(t *testing.T, want [3]uint8, r, g, b uint8) {
	t.Helper()
	assert.InDelta(t, want[0], r, 1, "red")
	assert.InDelta(t, want[1], g, 1, "green")
	assert.InDelta(t, want[2], b, 1, "blue")
}

func TestConvertPixelPaperAndBlack(t *testing.T) {
	tests := []struct {
		name string
		a2b  []byte
	}{
		{name: "lut16", a2b: icctest.LUT16CMYK()},
		{name: "lut8", a2b: icctest.LUT8CMYK()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xf := mustTransform(t, tt.a2b, nil)

			r, g, b := xf.ConvertPixel(0, 0, 0, 0)
			assertRGB(t, [3]uint8{255, 255, 255}, r, g, b)

			r, g, b = xf.ConvertPixel(0, 0, 0, 255)
			assertRGB(t, [3]uint8{0, 0, 0}, r, g, b)

			r, g, b = xf.ConvertPixel(255, 255, 255, 255)
			assertRGB(t, [3]uint8{0, 0, 0}, r, g, b)
		})
	}
}

func TestConvertPixelMidtoneIsNeutral(t *testing.T) {
	xf := mustTransform(t, icctest.LUT16CMYK(), nil)

	r, g, b := xf.ConvertPixel(0, 0, 0, 128)
	assert.InDelta(t, r, g, 2)
	assert.InDelta(t, g, b, 2)
	assert.Greater(t, r, uint8(60))
	assert.Less(t, r, uint8(200))

	// More ink is never lighter.
	r2, _, _ := xf.ConvertPixel(0, 0, 0, 200)
	assert.Less(t, r2, r)
}

func TestDestinationProfileMatchesBuiltin(t *testing.T) {
	builtin := mustTransform(t, icctest.LUT16CMYK(), nil)
	fromFile := mustTransform(t, icctest.LUT16CMYK(), icctest.SRGBProfile())
	assert.Contains(t, fromFile.String(), "Test sRGB")

	for _, k := range []uint8{0, 40, 128, 220, 255} {
		r1, g1, b1 := builtin.ConvertPixel(0, 0, 0, k)
		r2, g2, b2 := fromFile.ConvertPixel(0, 0, 0, k)
		assertRGB(t, [3]uint8{r1, g1, b1}, r2, g2, b2)
	}
}

func TestConvertImage(t *testing.T) {
	xf := mustTransform(t, icctest.LUT16CMYK(), nil)

	src := image.NewCMYK(image.Rect(2, 3, 6, 5))
	for y := 3; y < 5; y++ {
		for x := 2; x < 6; x++ {
			i := src.PixOffset(x, y)
			src.Pix[i+3] = uint8(x * 40)
		}
	}

	dst := xf.Convert(src)
	require.Equal(t, src.Bounds(), dst.Bounds())
	for y := 3; y < 5; y++ {
		for x := 2; x < 6; x++ {
			c := dst.RGBAAt(x, y)
			assert.Equal(t, uint8(0xff), c.A)
			r, g, b := xf.ConvertPixel(0, 0, 0, uint8(x*40))
			assert.Equal(t, [3]uint8{r, g, b}, [3]uint8{c.R, c.G, c.B})
		}
	}
}

func TestTransformIsSafeForConcurrentUse(t *testing.T) {
	xf := mustTransform(t, icctest.LUT16CMYK(), nil)
	want := make([][3]uint8, 256)
	for k := range want {
		want[k][0], want[k][1], want[k][2] = xf.ConvertPixel(0, 0, 0, uint8(k))
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src := image.NewCMYK(image.Rect(0, 0, 256, 1))
			for k := 0; k < 256; k++ {
				src.Pix[4*k+3] = uint8(k)
			}
			dst := xf.Convert(src)
			for k := 0; k < 256; k++ {
				c := dst.RGBAAt(k, 0)
				if [3]uint8{c.R, c.G, c.B} != want[k] {
					t.Errorf("k=%d: got %v want %v", k, c, want[k])
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNewTransformRejects(t *testing.T) {
	rgb, err := Parse(icctest.SRGBProfile())
	require.NoError(t, err)

	_, err = NewTransform(rgb, nil, IntentPerceptual)
	assert.ErrorContains(t, err, "expected CMYK")

	noTable, err := Parse(icctest.Build("prtr", "CMYK", "Lab ", map[string][]byte{"desc": icctest.XYZTag(0, 0, 0)}))
	require.NoError(t, err)
	_, err = NewTransform(noTable, nil, IntentRelativeColorimetric)
	assert.ErrorIs(t, err, ErrTagNotFound)

	curveOnly := make([]byte, 12)
	copy(curveOnly, "curv")
	weird, err := Parse(icctest.CMYKProfile(curveOnly))
	require.NoError(t, err)
	_, err = NewTransform(weird, nil, IntentPerceptual)
	assert.ErrorIs(t, err, ErrUnsupportedTag)

	src, err := Parse(icctest.CMYKProfile(icctest.LUT16CMYK()))
	require.NoError(t, err)
	cmykDst, err := Parse(icctest.CMYKProfile(icctest.LUT16CMYK()))
	require.NoError(t, err)
	_, err = NewTransform(src, cmykDst, IntentPerceptual)
	assert.ErrorContains(t, err, "expected RGB")
}

func TestIntentFallsBackToA2B0(t *testing.T) {
	src, err := Parse(icctest.CMYKProfile(icctest.LUT16CMYK()))
	require.NoError(t, err)
	xf, err := NewTransform(src, nil, IntentSaturation)
	require.NoError(t, err)
	assert.Equal(t, IntentSaturation, xf.Intent())
}

func TestSharedTransformLoadsOnce(t *testing.T) {
	dir := t.TempDir()
	cmykPath := filepath.Join(dir, "press.icc")
	require.NoError(t, os.WriteFile(cmykPath, icctest.CMYKProfile(icctest.LUT16CMYK()), 0o600))

	a, err := SharedTransform(cmykPath, "", IntentPerceptual)
	require.NoError(t, err)
	b, err := SharedTransform(cmykPath, "", IntentPerceptual)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = SharedTransform(filepath.Join(dir, "missing.icc"), "", IntentPerceptual)
	assert.Error(t, err)
}
