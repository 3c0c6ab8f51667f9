package normalize

import (
	"fmt"
	"image"

	"github.com/mcdoradca/PIM/internal/jpegenc"
)

// Encoder serializes a normalized image. Implementations strip all metadata.
type Encoder interface {
	Encode(img image.Image, format string, quality int, chroma Subsampling) ([]byte, error)
}

// DefaultEncoder returns the encoder selected at build time.
func DefaultEncoder() Encoder {
	return newEncoder()
}

func checkEncodeArgs(format string, quality int, chroma Subsampling) error {
	if !isJPEGFormat(format) {
		return fmt.Errorf("unsupported output format: %s", format)
	}
	if quality < 1 || quality > 100 {
		return fmt.Errorf("quality %d out of range", quality)
	}
	if chroma != Subsampling444 {
		return fmt.Errorf("chroma subsampling %s is not supported", chroma)
	}
	return nil
}

// stdEncoder is the pure-Go baseline writer with optimized Huffman tables.
type stdEncoder struct{}

func (stdEncoder) Encode(img image.Image, format string, quality int, chroma Subsampling) ([]byte, error) {
	if err := checkEncodeArgs(format, quality, chroma); err != nil {
		return nil, err
	}
	data, err := jpegenc.EncodeBytes(img, &jpegenc.Options{Quality: quality, OptimizeHuffman: true})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return data, nil
}
