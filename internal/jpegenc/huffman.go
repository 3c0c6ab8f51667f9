package jpegenc

import "fmt"

const maxCodeLength = 16

// huffmanSpec is a DHT table: counts[i] codes of length i+1, then the
// symbols in order of increasing code length.
type huffmanSpec struct {
	counts [maxCodeLength]uint8
	values []uint8
}

// huffmanCode is the encoder lookup derived from a spec.
type huffmanCode struct {
	code [256]uint16
	size [256]uint8
}

// optimalSpec builds a length-limited Huffman table for the observed symbol
// frequencies. A reserved pseudo-symbol keeps any real symbol from being
// assigned the all-ones code.
func optimalSpec(freq *[256]int64) huffmanSpec {
	var (
		f        [257]int64
		codesize [257]int
		others   [257]int
	)
	copy(f[:], freq[:])
	f[256] = 1
	for i := range others {
		others[i] = -1
	}

	for {
		c1, c2 := -1, -1
		var v int64 = 1 << 62
		for i := 0; i <= 256; i++ {
			if f[i] != 0 && f[i] <= v {
				v = f[i]
				c1 = i
			}
		}
		v = 1 << 62
		for i := 0; i <= 256; i++ {
			if f[i] != 0 && f[i] <= v && i != c1 {
				v = f[i]
				c2 = i
			}
		}
		if c2 < 0 {
			break
		}

		f[c1] += f[c2]
		f[c2] = 0

		codesize[c1]++
		for others[c1] >= 0 {
			c1 = others[c1]
			codesize[c1]++
		}
		others[c1] = c2

		codesize[c2]++
		for others[c2] >= 0 {
			c2 = others[c2]
			codesize[c2]++
		}
	}

	longest := 0
	for _, n := range codesize {
		if n > longest {
			longest = n
		}
	}
	if longest < maxCodeLength+1 {
		longest = maxCodeLength + 1
	}
	bits := make([]int, longest+1)
	for _, n := range codesize {
		if n > 0 {
			bits[n]++
		}
	}

	// Move overlong codes up the tree: each pair at length i is replaced by
	// a prefix one level up, and a shorter code is split to make room.
	for i := longest; i > maxCodeLength; i-- {
		for bits[i] > 0 {
			j := i - 2
			for bits[j] == 0 {
				j--
			}
			bits[i] -= 2
			bits[i-1]++
			bits[j+1] += 2
			bits[j]--
		}
	}

	// Drop the reserved symbol, which holds the longest code.
	i := maxCodeLength
	for bits[i] == 0 {
		i--
	}
	bits[i]--

	var spec huffmanSpec
	for l := 1; l <= maxCodeLength; l++ {
		spec.counts[l-1] = uint8(bits[l])
	}
	for l := 1; l <= longest; l++ {
		for sym := 0; sym < 256; sym++ {
			if codesize[sym] == l {
				spec.values = append(spec.values, uint8(sym))
			}
		}
	}
	return spec
}

// build assigns canonical codes in the order the decoder will.
func (s *huffmanSpec) build() (*huffmanCode, error) {
	h := &huffmanCode{}
	code, k := uint32(0), 0
	for l := 1; l <= maxCodeLength; l++ {
		for n := 0; n < int(s.counts[l-1]); n++ {
			if k >= len(s.values) {
				return nil, fmt.Errorf("jpegenc: huffman table declares more codes than symbols")
			}
			sym := s.values[k]
			h.code[sym] = uint16(code)
			h.size[sym] = uint8(l)
			code++
			k++
		}
		if code > 1<<uint(l) {
			return nil, fmt.Errorf("jpegenc: huffman code lengths oversubscribed at %d bits", l)
		}
		code <<= 1
	}
	return h, nil
}

// Annex K.3 typical tables, used when Huffman optimization is off.
var (
	stdLuminanceDC = huffmanSpec{
		counts: [maxCodeLength]uint8{0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0},
		values: []uint8{
			0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b,
		},
	}
	stdLuminanceAC = huffmanSpec{
		counts: [maxCodeLength]uint8{0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 125},
		values: []uint8{
			0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12, 0x21, 0x31, 0x41, 0x06,
			0x13, 0x51, 0x61, 0x07, 0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xa1, 0x08,
			0x23, 0x42, 0xb1, 0xc1, 0x15, 0x52, 0xd1, 0xf0, 0x24, 0x33, 0x62, 0x72,
			0x82, 0x09, 0x0a, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x25, 0x26, 0x27, 0x28,
			0x29, 0x2a, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3a, 0x43, 0x44, 0x45,
			0x46, 0x47, 0x48, 0x49, 0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59,
			0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69, 0x6a, 0x73, 0x74, 0x75,
			0x76, 0x77, 0x78, 0x79, 0x7a, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
			0x8a, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9a, 0xa2, 0xa3,
			0xa4, 0xa5, 0xa6, 0xa7, 0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6,
			0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3, 0xc4, 0xc5, 0xc6, 0xc7, 0xc8, 0xc9,
			0xca, 0xd2, 0xd3, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda, 0xe1, 0xe2,
			0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0xea, 0xf1, 0xf2, 0xf3, 0xf4,
			0xf5, 0xf6, 0xf7, 0xf8, 0xf9, 0xfa,
		},
	}
	stdChrominanceDC = huffmanSpec{
		counts: [maxCodeLength]uint8{0, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0},
		values: []uint8{
			0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b,
		},
	}
	stdChrominanceAC = huffmanSpec{
		counts: [maxCodeLength]uint8{0, 2, 1, 2, 4, 4, 3, 4, 7, 5, 4, 4, 0, 1, 2, 119},
		values: []uint8{
			0x00, 0x01, 0x02, 0x03, 0x11, 0x04, 0x05, 0x21, 0x31, 0x06, 0x12, 0x41,
			0x51, 0x07, 0x61, 0x71, 0x13, 0x22, 0x32, 0x81, 0x08, 0x14, 0x42, 0x91,
			0xa1, 0xb1, 0xc1, 0x09, 0x23, 0x33, 0x52, 0xf0, 0x15, 0x62, 0x72, 0xd1,
			0x0a, 0x16, 0x24, 0x34, 0xe1, 0x25, 0xf1, 0x17, 0x18, 0x19, 0x1a, 0x26,
			0x27, 0x28, 0x29, 0x2a, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3a, 0x43, 0x44,
			0x45, 0x46, 0x47, 0x48, 0x49, 0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58,
			0x59, 0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69, 0x6a, 0x73, 0x74,
			0x75, 0x76, 0x77, 0x78, 0x79, 0x7a, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87,
			0x88, 0x89, 0x8a, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9a,
			0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7, 0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4,
			0xb5, 0xb6, 0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3, 0xc4, 0xc5, 0xc6, 0xc7,
			0xc8, 0xc9, 0xca, 0xd2, 0xd3, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda,
			0xe2, 0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0xea, 0xf2, 0xf3, 0xf4,
			0xf5, 0xf6, 0xf7, 0xf8, 0xf9, 0xfa,
		},
	}
)
