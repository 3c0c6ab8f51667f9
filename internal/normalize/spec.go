// Package normalize turns arbitrary vendor product photos into golden-record
// marketplace images: sRGB, exact square dimensions, a solid white background
// and a metadata-free baseline JPEG.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mcdoradca/PIM/internal/jpegenc"
)

// FormatJPEG is the only supported output format.
const FormatJPEG = "JPEG"

const (
	// MaxTargetSide is the largest side a golden record can have.
	MaxTargetSide = jpegenc.MaxDimension
	// DefaultMaxTargetPixels bounds the canvas allocation of a single run,
	// roughly 256 MiB of RGBA.
	DefaultMaxTargetPixels = 64_000_000
)

// Size is a pixel size.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Pixels is the pixel count, computed without overflow.
func (s Size) Pixels() int64 {
	return int64(s.Width) * int64(s.Height)
}

// Subsampling is a JPEG chroma subsampling layout.
type Subsampling int

const (
	Subsampling444 Subsampling = iota
	Subsampling422
	Subsampling420
)

func (s Subsampling) String() string {
	switch s {
	case Subsampling444:
		return "4:4:4"
	case Subsampling422:
		return "4:2:2"
	case Subsampling420:
		return "4:2:0"
	default:
		return fmt.Sprintf("subsampling(%d)", int(s))
	}
}

// Spec describes the golden record a channel expects.
type Spec struct {
	TargetSize           Size
	OutputFormat         string
	ForceWhiteBackground bool
	Quality              int
	ChromaSubsampling    Subsampling
	// MinResolution is only consulted by the quality gate.
	MinResolution Size
	// MaxTargetPixels caps TargetSize. Zero means DefaultMaxTargetPixels.
	MaxTargetPixels int64
}

// DefaultSpec is the marketplace golden-record spec.
func DefaultSpec() Spec {
	return Spec{
		TargetSize:           Size{Width: 2500, Height: 2500},
		OutputFormat:         FormatJPEG,
		ForceWhiteBackground: true,
		Quality:              92,
		ChromaSubsampling:    Subsampling444,
		MinResolution:        Size{Width: 1000, Height: 1000},
	}
}

var ErrInvalidSpec = errors.New("invalid normalization spec")

func (s Spec) Validate() error {
	if s.TargetSize.Width <= 0 || s.TargetSize.Height <= 0 {
		return fmt.Errorf("%w: target size %s must be positive", ErrInvalidSpec, s.TargetSize)
	}
	if s.TargetSize.Width > MaxTargetSide || s.TargetSize.Height > MaxTargetSide {
		return fmt.Errorf("%w: target size %s exceeds %d on a side", ErrInvalidSpec, s.TargetSize, MaxTargetSide)
	}
	if s.MaxTargetPixels < 0 {
		return fmt.Errorf("%w: max target pixels %d must not be negative", ErrInvalidSpec, s.MaxTargetPixels)
	}
	if limit := s.targetPixelLimit(); s.TargetSize.Pixels() > limit {
		return fmt.Errorf("%w: target size %s exceeds %d pixels", ErrInvalidSpec, s.TargetSize, limit)
	}
	if s.MinResolution.Width < 0 || s.MinResolution.Height < 0 {
		return fmt.Errorf("%w: min resolution %s must not be negative", ErrInvalidSpec, s.MinResolution)
	}
	if s.Quality < 1 || s.Quality > 100 {
		return fmt.Errorf("%w: quality %d must be within 1..100", ErrInvalidSpec, s.Quality)
	}
	if !isJPEGFormat(s.OutputFormat) {
		return fmt.Errorf("%w: unsupported output format %q", ErrInvalidSpec, s.OutputFormat)
	}
	if s.ChromaSubsampling != Subsampling444 {
		return fmt.Errorf("%w: chroma subsampling %s, only 4:4:4 is produced", ErrInvalidSpec, s.ChromaSubsampling)
	}
	return nil
}

func (s Spec) targetPixelLimit() int64 {
	if s.MaxTargetPixels == 0 {
		return DefaultMaxTargetPixels
	}
	return s.MaxTargetPixels
}

func isJPEGFormat(format string) bool {
	switch strings.ToUpper(strings.TrimSpace(format)) {
	case "JPEG", "JPG":
		return true
	default:
		return false
	}
}
