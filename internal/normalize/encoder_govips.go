//go:build govips && cgo

package normalize

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
)

// vipsEncoder hands the canvas to libvips through a lossless PNG buffer and
// exports it without metadata and with full-resolution chroma.
type vipsEncoder struct{}

func (vipsEncoder) Encode(img image.Image, format string, quality int, chroma Subsampling) ([]byte, error) {
	if err := checkEncodeArgs(format, quality, chroma); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("stage canvas for libvips: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load canvas into libvips: %w", err)
	}
	defer ref.Close()

	params := vips.NewJpegExportParams()
	params.Quality = quality
	params.StripMetadata = true
	params.OptimizeCoding = true
	params.Interlace = false
	params.SubsampleMode = vips.VipsForeignSubsampleOff

	data, _, err := ref.ExportJpeg(params)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return data, nil
}
