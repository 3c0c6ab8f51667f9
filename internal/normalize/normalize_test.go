package normalize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mcdoradca/PIM/internal/icc"
	"github.com/mcdoradca/PIM/internal/icc/icctest"
	"github.com/mcdoradca/PIM/internal/jpegenc"
)

func gradientRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x * 200) / w),
				G: uint8((y * 200) / h),
				B: 90,
				A: 255,
			})
		}
	}
	return img
}

func encodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeJPEG(t testing.TB, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func assertNearWhite(t *testing.T, img image.Image, x, y int) {
	t.Helper()
	c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
	assert.GreaterOrEqual(t, c.R, uint8(250), "R at %d,%d", x, y)
	assert.GreaterOrEqual(t, c.G, uint8(250), "G at %d,%d", x, y)
	assert.GreaterOrEqual(t, c.B, uint8(250), "B at %d,%d", x, y)
}

func assertGoldenRecord(t *testing.T, data []byte, target Size) {
	t.Helper()
	info, err := jpegenc.Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, target.Width, info.Width)
	assert.Equal(t, target.Height, info.Height)
	assert.False(t, info.Progressive)
	assert.Equal(t, "4:4:4", info.Subsampling())
	assert.False(t, info.HasMarker("APP1"), "EXIF/XMP must be stripped")
	assert.False(t, info.HasMarker("APP2"), "ICC must be stripped")
}

func newTestNormalizer(t *testing.T) (*Normalizer, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewNormalizer(logger, nil), hook
}

func smallSpec(side int) Spec {
	spec := DefaultSpec()
	spec.TargetSize = Size{Width: side, Height: side}
	return spec
}

func TestScenarioWideImageIsWidthLimited(t *testing.T) {
	n, _ := newTestNormalizer(t)
	raw := encodePNG(t, gradientRGBA(3000, 1000))

	res, err := n.Normalize(raw, DefaultSpec())
	require.NoError(t, err)

	assert.Equal(t, Size{Width: 2500, Height: 833}, res.Fitted)
	assert.Equal(t, Padding{Left: 0, Top: 833, Right: 0, Bottom: 834}, res.Padding)
	assertGoldenRecord(t, res.Data, Size{Width: 2500, Height: 2500})

	out := decodeJPEG(t, res.Data)
	assertNearWhite(t, out, 1250, 10)
	assertNearWhite(t, out, 1250, 2490)
	c := color.RGBAModel.Convert(out.At(1250, 1250)).(color.RGBA)
	assert.Less(t, c.B, uint8(200), "content row should keep the source color")
}

func TestScenarioSmallTransparentImageIsPaddedNotUpscaled(t *testing.T) {
	n, _ := newTestNormalizer(t)

	src := image.NewNRGBA(image.Rect(0, 0, 500, 500))
	for y := 200; y < 300; y++ {
		for x := 200; x < 300; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 220, A: 255})
		}
	}
	raw := encodePNG(t, src)

	res, err := n.Normalize(raw, DefaultSpec())
	require.NoError(t, err)
	assert.Equal(t, ModeRGBA, res.Source.Mode)
	assert.Equal(t, Size{Width: 500, Height: 500}, res.Fitted)
	assert.Equal(t, Padding{Left: 1000, Top: 1000, Right: 1000, Bottom: 1000}, res.Padding)
	assertGoldenRecord(t, res.Data, Size{Width: 2500, Height: 2500})

	out := decodeJPEG(t, res.Data)
	_, isYCbCr := out.(*image.YCbCr)
	assert.True(t, isYCbCr, "output has no alpha channel")

	// Transparent source pixels and padding are both white.
	assertNearWhite(t, out, 1010, 1010)
	assertNearWhite(t, out, 10, 10)
	c := color.RGBAModel.Convert(out.At(1250, 1250)).(color.RGBA)
	assert.Greater(t, c.R, uint8(200))
	assert.Less(t, c.G, uint8(40))
}

func TestScenarioMalformedInputFailsOpaquely(t *testing.T) {
	n, hook := newTestNormalizer(t)

	truncated := encodePNG(t, gradientRGBA(64, 64))
	truncated = truncated[:len(truncated)/2]

	for name, raw := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("definitely not an image"),
		"truncated": truncated,
	} {
		t.Run(name, func(t *testing.T) {
			hook.Reset()
			data, err := n.NormalizeForMarketplace(raw, smallSpec(100))
			require.Error(t, err)
			assert.Nil(t, data)
			assert.True(t, errors.Is(err, ErrProcessing))
			assert.Equal(t, ErrProcessing.Error(), err.Error())

			var formatErr *FormatError
			assert.False(t, errors.As(err, &formatErr), "cause must not leak through the boundary")

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, logrus.ErrorLevel, entry.Level)
			assert.Equal(t, StageDecode, entry.Data["stage"])
			assert.NotNil(t, entry.Data[logrus.ErrorKey])
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n, _ := newTestNormalizer(t)
	spec := smallSpec(200)

	first, err := n.NormalizeForMarketplace(encodePNG(t, gradientRGBA(300, 100)), spec)
	require.NoError(t, err)
	second, err := n.NormalizeForMarketplace(first, spec)
	require.NoError(t, err)

	assertGoldenRecord(t, second, spec.TargetSize)
	out := decodeJPEG(t, second)
	for _, p := range []image.Point{{0, 0}, {199, 0}, {100, 10}, {100, 190}, {199, 199}} {
		assertNearWhite(t, out, p.X, p.Y)
	}
}

func TestNormalizeNeverUpscales(t *testing.T) {
	n, _ := newTestNormalizer(t)

	res, err := n.Normalize(encodePNG(t, gradientRGBA(50, 30)), smallSpec(100))
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 50, Height: 30}, res.Fitted)
	assert.Equal(t, Padding{Left: 25, Top: 35, Right: 25, Bottom: 35}, res.Padding)
}

func TestNormalizeRejectsInvalidSpec(t *testing.T) {
	n, _ := newTestNormalizer(t)
	spec := DefaultSpec()
	spec.OutputFormat = "PNG"

	_, err := n.NormalizeForMarketplace(encodePNG(t, gradientRGBA(10, 10)), spec)
	assert.ErrorIs(t, err, ErrInvalidSpec)
	assert.NotErrorIs(t, err, ErrProcessing)
}

func TestNormalizeRejectsOversizedTarget(t *testing.T) {
	n, _ := newTestNormalizer(t)
	raw := encodePNG(t, gradientRGBA(10, 10))

	for _, target := range []Size{
		{Width: 1 << 31, Height: 1 << 31},
		{Width: 70000, Height: 1},
		{Width: 60000, Height: 60000},
	} {
		var err error
		require.NotPanics(t, func() {
			_, err = n.NormalizeForMarketplace(raw, specWithTarget(target))
		}, target.String())
		assert.ErrorIs(t, err, ErrInvalidSpec, target.String())
		assert.NotErrorIs(t, err, ErrProcessing, target.String())
	}
}

func specWithTarget(target Size) Spec {
	spec := DefaultSpec()
	spec.TargetSize = target
	return spec
}

// headerOnlyPNG declares w x h in IHDR and carries no pixel data.
func headerOnlyPNG(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(kind string, data []byte) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(kind), data...)
		buf.Write(body)
		_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8], ihdr[9] = 8, 2
	chunk("IHDR", ihdr)
	chunk("IEND", nil)
	return buf.Bytes()
}

func TestDecodeBoundedChecksHeader(t *testing.T) {
	_, err := DecodeBounded(headerOnlyPNG(30000, 30000), DefaultMaxSourcePixels)
	assert.ErrorIs(t, err, ErrSourceTooLarge)
	var formatErr *FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, "image/png", formatErr.MIME)

	raw := encodePNG(t, gradientRGBA(40, 40))
	_, err = DecodeBounded(raw, 40*40-1)
	assert.ErrorIs(t, err, ErrSourceTooLarge)

	src, err := DecodeBounded(raw, 40*40)
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 40, Height: 40}, src.Size())

	_, err = DecodeBounded(raw, 0)
	assert.NoError(t, err)
}

func TestNormalizeRejectsOversizedSource(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := NewNormalizer(logger, nil, WithMaxSourcePixels(1000))

	_, err := n.NormalizeForMarketplace(encodePNG(t, gradientRGBA(40, 40)), smallSpec(64))
	var perr *ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StageDecode, perr.Stage)
	assert.NotErrorIs(t, err, ErrSourceTooLarge)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), ErrSourceTooLarge)

	_, err = n.NormalizeForMarketplace(encodePNG(t, gradientRGBA(20, 20)), smallSpec(64))
	assert.NoError(t, err)
}

// cmykJPEG is a minimal baseline 8x8 Adobe CMYK JPEG: one quantization
// table, one DC and one AC Huffman table with a single symbol, and one MCU
// of all-zero coefficients.
func cmykJPEG() []byte {
	var b bytes.Buffer
	b.Write([]byte{0xFF, 0xD8})
	b.Write([]byte{0xFF, 0xEE, 0x00, 0x0E})
	b.WriteString("Adobe")
	b.Write([]byte{0x00, 0x64, 0x00, 0x00, 0x00, 0x00, 0x00})
	b.Write([]byte{0xFF, 0xDB, 0x00, 0x43, 0x00})
	b.Write(bytes.Repeat([]byte{0x01}, 64))
	b.Write([]byte{0xFF, 0xC0, 0x00, 0x14, 0x08, 0x00, 0x08, 0x00, 0x08, 0x04})
	for id := byte(1); id <= 4; id++ {
		b.Write([]byte{id, 0x11, 0x00})
	}
	b.Write([]byte{0xFF, 0xC4, 0x00, 0x26})
	for _, class := range []byte{0x00, 0x10} {
		b.WriteByte(class)
		counts := make([]byte, 16)
		counts[0] = 1
		b.Write(counts)
		b.WriteByte(0x00)
	}
	b.Write([]byte{0xFF, 0xDA, 0x00, 0x0E, 0x04})
	for id := byte(1); id <= 4; id++ {
		b.Write([]byte{id, 0x00})
	}
	b.Write([]byte{0x00, 0x3F, 0x00})
	b.WriteByte(0x00)
	b.Write([]byte{0xFF, 0xD9})
	return b.Bytes()
}

func TestNormalizeCMYKJPEG(t *testing.T) {
	raw := cmykJPEG()
	src, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, ModeCMYK, src.Mode)

	n, hook := newTestNormalizer(t)
	_, err = n.NormalizeForMarketplace(raw, smallSpec(16))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessing)
	assert.Equal(t, ErrProcessing.Error(), err.Error())
	var profileErr *ColorProfileError
	assert.False(t, errors.As(err, &profileErr), "color profile cause must stay in the log")
	var perr *ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StageColor, perr.Stage)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "CMYK", entry.Data["mode"])
	assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), ErrNoColorProfile)

	profile, err := icc.Parse(icctest.CMYKProfile(icctest.LUT16CMYK()))
	require.NoError(t, err)
	xf, err := icc.NewTransform(profile, nil, icc.IntentPerceptual)
	require.NoError(t, err)
	res, err := NewNormalizer(logrus.New(), xf).Normalize(raw, smallSpec(16))
	require.NoError(t, err)
	assert.Equal(t, ModeCMYK, res.Source.Mode)
	assertGoldenRecord(t, res.Data, Size{Width: 16, Height: 16})
}

func TestNormalizeWithCustomEncoder(t *testing.T) {
	enc := &recordingEncoder{}
	n := NewNormalizer(logrus.New(), nil, WithEncoder(enc))

	data, err := n.NormalizeForMarketplace(encodePNG(t, gradientRGBA(40, 20)), smallSpec(64))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, image.Rect(0, 0, 64, 64), enc.bounds)
	assert.Equal(t, 92, enc.quality)

	enc.err = errors.New("disk full")
	_, err = n.NormalizeForMarketplace(encodePNG(t, gradientRGBA(40, 20)), smallSpec(64))
	var perr *ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StageEncode, perr.Stage)
}

type recordingEncoder struct {
	bounds  image.Rectangle
	quality int
	err     error
}

func (e *recordingEncoder) Encode(img image.Image, _ string, quality int, _ Subsampling) ([]byte, error) {
	e.bounds = img.Bounds()
	e.quality = quality
	if e.err != nil {
		return nil, e.err
	}
	return []byte("ok"), nil
}

func TestNormalizeConcurrentCallsAgree(t *testing.T) {
	n, _ := newTestNormalizer(t)
	raw := encodePNG(t, gradientRGBA(320, 180))
	spec := smallSpec(256)

	want, err := n.NormalizeForMarketplace(raw, spec)
	require.NoError(t, err)

	results := make([][]byte, 8)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			data, err := n.NormalizeForMarketplace(raw, spec)
			results[i] = data
			return err
		})
	}
	require.NoError(t, g.Wait())
	for i, got := range results {
		assert.Equal(t, want, got, "worker %d", i)
	}
}

func BenchmarkNormalizeForMarketplace(b *testing.B) {
	logger, _ := test.NewNullLogger()
	n := NewNormalizer(logger, nil)
	raw := encodePNG(b, gradientRGBA(1920, 1080))
	spec := smallSpec(1000)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := n.NormalizeForMarketplace(raw, spec); err != nil {
			b.Fatalf("normalize: %v", err)
		}
	}
}
