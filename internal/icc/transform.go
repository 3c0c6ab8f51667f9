package icc

import (
	"fmt"
	"image"
	"sync"
)

// maxCachedColors bounds the per-call memo of converted CMYK values.
const maxCachedColors = 1 << 16

// Transform converts CMYK device values to 8-bit RGB through the source
// profile's A2B table and a matrix/TRC destination. A Transform is immutable
// and safe for concurrent use.
type Transform struct {
	intent      Intent
	source      stage
	decode      pcsDecoder
	destination *rgbDestination
	sourceName  string
}

// NewTransform builds a CMYK to RGB transform. A nil dst selects the
// built-in sRGB destination.
func NewTransform(src, dst *Profile, intent Intent) (*Transform, error) {
	if src == nil {
		return nil, fmt.Errorf("icc: source profile is required")
	}
	if src.Info.ColorSpace != "CMYK" {
		return nil, fmt.Errorf("icc: source color space is %s, expected CMYK", ColorSpaceName(src.Info.ColorSpace))
	}

	sig := a2bTag(intent)
	raw, ok := src.Tag(sig)
	if !ok && sig != "A2B0" {
		sig = "A2B0"
		raw, ok = src.Tag(sig)
	}
	if !ok {
		return nil, fmt.Errorf("icc: source %s: %w", sig, ErrTagNotFound)
	}
	if len(raw) < 12 {
		return nil, fmt.Errorf("icc: source %s too short", sig)
	}

	tagType := string(raw[0:4])
	var (
		st  stage
		err error
	)
	switch tagType {
	case "mft2":
		st, err = parseLut16(raw)
	case "mft1":
		st, err = parseLut8(raw)
	case "mAB ":
		st, err = parseLutAtoB(raw)
	default:
		return nil, fmt.Errorf("icc: source %s type %q: %w", sig, tagType, ErrUnsupportedTag)
	}
	if err != nil {
		return nil, fmt.Errorf("icc: source %s: %w", sig, err)
	}
	if st.inputs() != 4 || st.outputs() != 3 {
		return nil, fmt.Errorf("icc: source %s maps %d to %d channels, expected 4 to 3", sig, st.inputs(), st.outputs())
	}
	if src.Info.PCS != "Lab " && src.Info.PCS != "XYZ " {
		return nil, fmt.Errorf("icc: source PCS %q: %w", src.Info.PCS, ErrUnsupportedTag)
	}

	var d *rgbDestination
	if dst == nil {
		d = builtinSRGB()
	} else if d, err = destinationFromProfile(dst); err != nil {
		return nil, err
	}

	return &Transform{
		intent:      intent,
		source:      st,
		decode:      pcsDecoderFor(src.Info.PCS, tagType),
		destination: d,
		sourceName:  describe(src),
	}, nil
}

// String names the source and destination spaces and the intent.
func (t *Transform) String() string {
	return fmt.Sprintf("%s -> %s (%s)", t.sourceName, t.destination.name, t.intent)
}

// Intent reports the rendering intent the transform was built for.
func (t *Transform) Intent() Intent { return t.intent }

// ConvertPixel converts one CMYK ink value (0 means no ink) to RGB.
func (t *Transform) ConvertPixel(c, m, y, k uint8) (r, g, b uint8) {
	var v channels
	v[0] = float64(c) / 255
	v[1] = float64(m) / 255
	v[2] = float64(y) / 255
	v[3] = float64(k) / 255
	t.source.eval(&v)
	return t.destination.fromPCS(t.decode(&v))
}

// Convert renders a CMYK image as opaque RGBA. The result keeps the source
// bounds.
func (t *Transform) Convert(src *image.CMYK) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	cache := make(map[uint32][3]uint8)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		si := src.PixOffset(b.Min.X, y)
		di := dst.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			px := src.Pix[si : si+4 : si+4]
			key := uint32(px[0])<<24 | uint32(px[1])<<16 | uint32(px[2])<<8 | uint32(px[3])
			rgb, ok := cache[key]
			if !ok {
				rgb[0], rgb[1], rgb[2] = t.ConvertPixel(px[0], px[1], px[2], px[3])
				if len(cache) < maxCachedColors {
					cache[key] = rgb
				}
			}
			out := dst.Pix[di : di+4 : di+4]
			out[0], out[1], out[2], out[3] = rgb[0], rgb[1], rgb[2], 0xff
			si += 4
			di += 4
		}
	}
	return dst
}

// LoadTransform reads the CMYK source profile and, when rgbPath is not
// empty, the RGB destination profile.
func LoadTransform(cmykPath, rgbPath string, intent Intent) (*Transform, error) {
	src, err := LoadProfile(cmykPath)
	if err != nil {
		return nil, err
	}
	var dst *Profile
	if rgbPath != "" {
		if dst, err = LoadProfile(rgbPath); err != nil {
			return nil, err
		}
	}
	return NewTransform(src, dst, intent)
}

type transformKey struct {
	cmyk, rgb string
	intent    Intent
}

type transformEntry struct {
	once sync.Once
	t    *Transform
	err  error
}

var (
	sharedMu         sync.Mutex
	sharedTransforms = map[transformKey]*transformEntry{}
)

// SharedTransform loads a transform once per (profiles, intent) and returns
// the same instance to every caller. Load failures are cached too.
func SharedTransform(cmykPath, rgbPath string, intent Intent) (*Transform, error) {
	key := transformKey{cmyk: cmykPath, rgb: rgbPath, intent: intent}

	sharedMu.Lock()
	e, ok := sharedTransforms[key]
	if !ok {
		e = &transformEntry{}
		sharedTransforms[key] = e
	}
	sharedMu.Unlock()

	e.once.Do(func() {
		e.t, e.err = LoadTransform(cmykPath, rgbPath, intent)
	})
	return e.t, e.err
}
