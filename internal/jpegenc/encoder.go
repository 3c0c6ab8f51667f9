// Package jpegenc writes baseline JPEG files with full-resolution chroma
// (4:4:4), IJG quality scaling and optionally optimized Huffman tables. The
// standard library encoder always subsamples chroma 4:2:0.
package jpegenc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
)

const DefaultQuality = 75

// MaxDimension is the largest side a baseline frame header can carry.
const MaxDimension = 65535

// Options are the encoding parameters.
type Options struct {
	// Quality ranges from 1 to 100 inclusive, higher is better.
	Quality int
	// OptimizeHuffman computes per-image Huffman tables in a first pass over
	// the coefficients instead of using the Annex K tables.
	OptimizeHuffman bool
}

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("jpegenc: image has no pixels")

// dctCoeff[u][x] = C(u)/2 * cos((2x+1)u*pi/16), the orthonormal 8-point DCT
// basis in the scaling JPEG expects.
var dctCoeff = func() (c [8][8]float64) {
	for u := 0; u < 8; u++ {
		cu := 1.0
		if u == 0 {
			cu = 1 / math.Sqrt2
		}
		for x := 0; x < 8; x++ {
			c[u][x] = cu / 2 * math.Cos(float64(2*x+1)*float64(u)*math.Pi/16)
		}
	}
	return c
}()

// planes holds full-resolution Y, Cb and Cr samples.
type planes struct {
	w, h int
	comp [3][]uint8
}

func toYCbCr(img image.Image) *planes {
	b := img.Bounds()
	p := &planes{w: b.Dx(), h: b.Dy()}
	for i := range p.comp {
		p.comp[i] = make([]uint8, p.w*p.h)
	}

	put := func(i int, r, g, bl uint8) {
		p.comp[0][i], p.comp[1][i], p.comp[2][i] = color.RGBToYCbCr(r, g, bl)
	}

	switch m := img.(type) {
	case *image.RGBA:
		for y := 0; y < p.h; y++ {
			row := m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < p.w; x++ {
				put(y*p.w+x, row[4*x], row[4*x+1], row[4*x+2])
			}
		}
	case *image.NRGBA:
		for y := 0; y < p.h; y++ {
			row := m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < p.w; x++ {
				put(y*p.w+x, row[4*x], row[4*x+1], row[4*x+2])
			}
		}
	case *image.YCbCr:
		for y := 0; y < p.h; y++ {
			for x := 0; x < p.w; x++ {
				yi := m.YOffset(b.Min.X+x, b.Min.Y+y)
				ci := m.COffset(b.Min.X+x, b.Min.Y+y)
				i := y*p.w + x
				p.comp[0][i], p.comp[1][i], p.comp[2][i] = m.Y[yi], m.Cb[ci], m.Cr[ci]
			}
		}
	default:
		for y := 0; y < p.h; y++ {
			for x := 0; x < p.w; x++ {
				c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
				put(y*p.w+x, c.R, c.G, c.B)
			}
		}
	}
	return p
}

// block extracts one 8x8 block, replicating edge samples past the border.
func (p *planes) block(c, bx, by int, dst *[64]float64) {
	src := p.comp[c]
	for y := 0; y < 8; y++ {
		sy := by + y
		if sy >= p.h {
			sy = p.h - 1
		}
		row := src[sy*p.w:]
		for x := 0; x < 8; x++ {
			sx := bx + x
			if sx >= p.w {
				sx = p.w - 1
			}
			dst[8*y+x] = float64(row[sx]) - 128
		}
	}
}

// fdct transforms a level-shifted block in place. Products are rounded
// individually so every platform produces the same coefficients.
func fdct(b *[64]float64) {
	var tmp [64]float64
	for y := 0; y < 8; y++ {
		for u := 0; u < 8; u++ {
			var s float64
			for x := 0; x < 8; x++ {
				s += float64(dctCoeff[u][x] * b[8*y+x])
			}
			tmp[8*y+u] = s
		}
	}
	for u := 0; u < 8; u++ {
		for v := 0; v < 8; v++ {
			var s float64
			for y := 0; y < 8; y++ {
				s += float64(dctCoeff[v][y] * tmp[8*y+u])
			}
			b[8*v+u] = s
		}
	}
}

// quantize writes the quantized coefficients in zigzag order, clamped to the
// baseline magnitude categories (11 bits DC, 10 bits AC).
func quantize(b *[64]float64, q *[64]uint8, out *[64]int32) {
	for k := 0; k < 64; k++ {
		n := zigzag[k]
		v := int32(math.Round(b[n] / float64(q[n])))
		limit := int32(1023)
		if k == 0 {
			limit = 2047
		}
		out[k] = max(-limit, min(limit, v))
	}
}

type encoder struct {
	p     *planes
	quant [2][64]uint8
}

// walk visits every block in interleaved MCU order (Y, Cb, Cr per MCU).
func (e *encoder) walk(fn func(c int, coef *[64]int32) error) error {
	var (
		samples [64]float64
		coef    [64]int32
	)
	for by := 0; by < e.p.h; by += 8 {
		for bx := 0; bx < e.p.w; bx += 8 {
			for c := 0; c < 3; c++ {
				e.p.block(c, bx, by, &samples)
				fdct(&samples)
				quantize(&samples, &e.quant[min(c, 1)], &coef)
				if err := fn(c, &coef); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// bitLength is the JPEG magnitude category of v.
func bitLength(v int32) uint8 {
	if v < 0 {
		v = -v
	}
	n := uint8(0)
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}

// scanSymbols feeds the Huffman symbols of one block to emit. prev is the
// component's DC predictor.
func scanSymbols(coef *[64]int32, prev *int32, dc func(sym uint8, v int32), ac func(sym uint8, v int32)) {
	diff := coef[0] - *prev
	*prev = coef[0]
	dc(bitLength(diff), diff)

	run := 0
	for k := 1; k < 64; k++ {
		v := coef[k]
		if v == 0 {
			run++
			continue
		}
		for run > 15 {
			ac(0xf0, 0)
			run -= 16
		}
		n := bitLength(v)
		ac(uint8(run<<4)|n, v)
		run = 0
	}
	if run > 0 {
		ac(0x00, 0)
	}
}

// Encode writes img to w as a baseline 4:4:4 JPEG. Alpha is ignored.
func Encode(w io.Writer, img image.Image, o *Options) error {
	b := img.Bounds()
	if b.Empty() {
		return ErrEmptyImage
	}
	if b.Dx() > MaxDimension || b.Dy() > MaxDimension {
		return fmt.Errorf("jpegenc: image is too large to encode (%dx%d)", b.Dx(), b.Dy())
	}

	quality, optimize := DefaultQuality, false
	if o != nil {
		if o.Quality != 0 {
			quality = o.Quality
		}
		optimize = o.OptimizeHuffman
	}

	e := &encoder{p: toYCbCr(img)}
	e.quant[0], e.quant[1] = QuantTables(quality)

	specs := [4]huffmanSpec{stdLuminanceDC, stdLuminanceAC, stdChrominanceDC, stdChrominanceAC}
	if optimize {
		var (
			freq [4][256]int64
			pred [3]int32
		)
		err := e.walk(func(c int, coef *[64]int32) error {
			t := 2 * min(c, 1)
			scanSymbols(coef, &pred[c],
				func(sym uint8, _ int32) { freq[t][sym]++ },
				func(sym uint8, _ int32) { freq[t+1][sym]++ })
			return nil
		})
		if err != nil {
			return err
		}
		for i := range specs {
			specs[i] = optimalSpec(&freq[i])
		}
	}

	var codes [4]*huffmanCode
	for i := range specs {
		c, err := specs[i].build()
		if err != nil {
			return err
		}
		codes[i] = c
	}

	bw := &bitWriter{w: bufio.NewWriterSize(w, 64<<10)}
	bw.writeHeaders(b.Dx(), b.Dy(), &e.quant, &specs)

	var pred [3]int32
	err := e.walk(func(c int, coef *[64]int32) error {
		t := 2 * min(c, 1)
		dcCode, acCode := codes[t], codes[t+1]
		scanSymbols(coef, &pred[c],
			func(sym uint8, v int32) { bw.emitSymbol(dcCode, sym, v) },
			func(sym uint8, v int32) { bw.emitSymbol(acCode, sym, v) })
		return bw.err
	})
	if err != nil {
		return err
	}

	bw.flushBits()
	bw.writeMarker(0xd9)
	if bw.err != nil {
		return bw.err
	}
	return bw.w.Flush()
}

// EncodeBytes encodes img into a new buffer.
func EncodeBytes(img image.Image, o *Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type bitWriter struct {
	w     *bufio.Writer
	err   error
	acc   uint32
	nbits uint
}

func (bw *bitWriter) write(p []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(p)
}

func (bw *bitWriter) writeByte(c byte) {
	if bw.err != nil {
		return
	}
	bw.err = bw.w.WriteByte(c)
}

func (bw *bitWriter) writeMarker(m byte) {
	bw.write([]byte{0xff, m})
}

// writeSegment writes a marker and its length-prefixed payload.
func (bw *bitWriter) writeSegment(m byte, payload []byte) {
	n := len(payload) + 2
	bw.write([]byte{0xff, m, byte(n >> 8), byte(n)})
	bw.write(payload)
}

func (bw *bitWriter) writeHeaders(width, height int, quant *[2][64]uint8, specs *[4]huffmanSpec) {
	bw.writeMarker(0xd8)

	// JFIF 1.01, no units, 1:1 aspect, no thumbnail.
	bw.writeSegment(0xe0, []byte{'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1, 0, 1, 0, 0})

	dqt := make([]byte, 0, 2*65)
	for id, q := range quant {
		dqt = append(dqt, byte(id))
		for k := 0; k < 64; k++ {
			dqt = append(dqt, q[zigzag[k]])
		}
	}
	bw.writeSegment(0xdb, dqt)

	bw.writeSegment(0xc0, []byte{
		8,
		byte(height >> 8), byte(height),
		byte(width >> 8), byte(width),
		3,
		1, 0x11, 0,
		2, 0x11, 1,
		3, 0x11, 1,
	})

	var dht []byte
	for i, class := range [4]byte{0x00, 0x10, 0x01, 0x11} {
		dht = append(dht, class)
		dht = append(dht, specs[i].counts[:]...)
		dht = append(dht, specs[i].values...)
	}
	bw.writeSegment(0xc4, dht)

	bw.writeSegment(0xda, []byte{3, 1, 0x00, 2, 0x11, 3, 0x11, 0, 63, 0})
}

func (bw *bitWriter) emitBits(bits uint32, n uint) {
	if n == 0 {
		return
	}
	bits &= 1<<n - 1
	bw.acc = bw.acc<<n | bits
	bw.nbits += n
	for bw.nbits >= 8 {
		c := byte(bw.acc >> (bw.nbits - 8))
		bw.writeByte(c)
		if c == 0xff {
			bw.writeByte(0)
		}
		bw.nbits -= 8
	}
	bw.acc &= 1<<bw.nbits - 1
}

// emitSymbol writes a Huffman code followed by the magnitude bits of v.
// Negative values are written as v-1 in one's complement form.
func (bw *bitWriter) emitSymbol(h *huffmanCode, sym uint8, v int32) {
	bw.emitBits(uint32(h.code[sym]), uint(h.size[sym]))
	n := uint(sym & 0x0f)
	if n == 0 {
		return
	}
	if v < 0 {
		v--
	}
	bw.emitBits(uint32(v), n)
}

// flushBits pads the final byte with one bits.
func (bw *bitWriter) flushBits() {
	if bw.nbits > 0 {
		pad := 8 - bw.nbits
		bw.emitBits(1<<pad-1, pad)
	}
}
