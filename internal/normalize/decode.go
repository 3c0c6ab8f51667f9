package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ColorMode is the pixel layout of a decoded source.
type ColorMode int

const (
	ModeRGB ColorMode = iota
	ModeRGBA
	ModePalette
	ModeCMYK
	ModeGrayscale
	ModeOther
)

func (m ColorMode) String() string {
	switch m {
	case ModeRGB:
		return "RGB"
	case ModeRGBA:
		return "RGBA"
	case ModePalette:
		return "P"
	case ModeCMYK:
		return "CMYK"
	case ModeGrayscale:
		return "L"
	default:
		return "other"
	}
}

// RawImage is a decoded source image. It is never modified after Decode.
type RawImage struct {
	Format string
	MIME   string
	Width  int
	Height int
	Mode   ColorMode
	Image  image.Image
}

// Size returns the source dimensions.
func (r RawImage) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

var errNotImage = errors.New("content is not an image")

// sniff detects the MIME type from content and rejects non-images.
func sniff(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", &FormatError{Err: errors.New("empty input")}
	}
	mt := mimetype.Detect(raw)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", &FormatError{MIME: mt.String(), Err: errNotImage}
	}
	return mt.String(), nil
}

// DefaultMaxSourcePixels bounds the pixel buffer a single source may decode
// into.
const DefaultMaxSourcePixels = 100_000_000

// ErrSourceTooLarge is the cause of a FormatError for a source whose header
// declares more pixels than allowed.
var ErrSourceTooLarge = errors.New("source image exceeds pixel limit")

// DecodeBounded reads the header first and refuses to decode a source above
// maxPixels. A non-positive maxPixels disables the check.
func DecodeBounded(raw []byte, maxPixels int64) (RawImage, error) {
	if maxPixels > 0 {
		p, err := ProbeImage(raw)
		if err != nil {
			return RawImage{}, err
		}
		if p.Size.Pixels() > maxPixels {
			return RawImage{}, &FormatError{
				MIME: p.MIME,
				Err:  fmt.Errorf("%w: %s is above %d", ErrSourceTooLarge, p.Size, maxPixels),
			}
		}
	}
	return Decode(raw)
}

// Decode sniffs and decodes an image, classifying its color mode.
func Decode(raw []byte) (RawImage, error) {
	mime, err := sniff(raw)
	if err != nil {
		return RawImage{}, err
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return RawImage{}, &FormatError{MIME: mime, Err: err}
	}
	b := img.Bounds()
	if b.Empty() {
		return RawImage{}, &FormatError{MIME: mime, Err: errors.New("image has no pixels")}
	}
	return RawImage{
		Format: format,
		MIME:   mime,
		Width:  b.Dx(),
		Height: b.Dy(),
		Mode:   classify(img),
		Image:  img,
	}, nil
}

// Probe reads only the header of an image.
type Probe struct {
	Format string `json:"format"`
	MIME   string `json:"mime"`
	Size   Size   `json:"size"`
}

// ProbeImage returns format and dimensions without decoding pixels.
func ProbeImage(raw []byte) (Probe, error) {
	mime, err := sniff(raw)
	if err != nil {
		return Probe{}, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Probe{}, &FormatError{MIME: mime, Err: err}
	}
	return Probe{Format: format, MIME: mime, Size: Size{Width: cfg.Width, Height: cfg.Height}}, nil
}

func classify(img image.Image) ColorMode {
	switch m := img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.NYCbCrA:
		return ModeRGBA
	case *image.RGBA:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	case *image.RGBA64:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	case *image.YCbCr:
		return ModeRGB
	case *image.Paletted:
		return ModePalette
	case *image.CMYK:
		return ModeCMYK
	case *image.Gray, *image.Gray16:
		return ModeGrayscale
	default:
		return ModeOther
	}
}
