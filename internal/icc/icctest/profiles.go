// Package icctest builds small synthetic ICC profiles for tests.
package icctest

import (
	"encoding/binary"
	"sort"
)

const (
	headerSize = 128
	acspMagic  = 0x61637370
)

// Build assembles a minimal v2.1 profile around the given tags.
func Build(class, space, pcs string, tags map[string][]byte) []byte {
	sigs := make([]string, 0, len(tags))
	for sig := range tags {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)

	offset := headerSize + 4 + 12*len(sigs)
	table := make([]byte, 4+12*len(sigs))
	binary.BigEndian.PutUint32(table[0:4], uint32(len(sigs)))
	var body []byte
	for i, sig := range sigs {
		payload := tags[sig]
		entry := table[4+12*i:]
		copy(entry[0:4], sig)
		binary.BigEndian.PutUint32(entry[4:8], uint32(offset+len(body)))
		binary.BigEndian.PutUint32(entry[8:12], uint32(len(payload)))
		body = append(body, payload...)
		for len(body)%4 != 0 {
			body = append(body, 0)
		}
	}

	header := make([]byte, headerSize)
	header[8], header[9] = 2, 0x10
	copy(header[12:16], class)
	copy(header[16:20], space)
	copy(header[20:24], pcs)
	binary.BigEndian.PutUint32(header[36:40], acspMagic)

	out := append(append(header, table...), body...)
	binary.BigEndian.PutUint32(out[0:4], uint32(len(out)))
	return out
}

func putS15(b []byte, v float64) {
	binary.BigEndian.PutUint32(b, uint32(int32(v*65536)))
}

// inkLabCorners fills a 2-point CMYK grid: paper white without ink, L*=0
// wherever any channel is fully inked, and a neutral a*/b* everywhere.
func inkLabCorners(white, neutral uint16) []uint16 {
	var out []uint16
	for c := 0; c < 2; c++ {
		for m := 0; m < 2; m++ {
			for y := 0; y < 2; y++ {
				for k := 0; k < 2; k++ {
					l := uint16(0)
					if c+m+y+k == 0 {
						l = white
					}
					out = append(out, l, neutral, neutral)
				}
			}
		}
	}
	return out
}

func identityMatrix(b []byte) {
	for i := 0; i < 3; i++ {
		putS15(b[4*(i*3+i):], 1)
	}
}

// LUT16CMYK is an mft2 A2B table using the legacy Lab encoding.
func LUT16CMYK() []byte {
	data := make([]byte, 52)
	copy(data[0:4], "mft2")
	data[8], data[9], data[10] = 4, 3, 2
	identityMatrix(data[12:48])
	binary.BigEndian.PutUint16(data[48:50], 2)
	binary.BigEndian.PutUint16(data[50:52], 2)

	u16 := func(v uint16) { data = binary.BigEndian.AppendUint16(data, v) }
	for i := 0; i < 4; i++ {
		u16(0)
		u16(0xffff)
	}
	for _, v := range inkLabCorners(0xff00, 0x8000) {
		u16(v)
	}
	for i := 0; i < 3; i++ {
		u16(0)
		u16(0xffff)
	}
	return data
}

// LUT8CMYK is the same table as an mft1 with full-range Lab.
func LUT8CMYK() []byte {
	data := make([]byte, 48)
	copy(data[0:4], "mft1")
	data[8], data[9], data[10] = 4, 3, 2
	identityMatrix(data[12:48])

	ramp := func() {
		for i := 0; i < 256; i++ {
			data = append(data, byte(i))
		}
	}
	for i := 0; i < 4; i++ {
		ramp()
	}
	for _, v := range inkLabCorners(255, 128) {
		data = append(data, byte(v))
	}
	for i := 0; i < 3; i++ {
		ramp()
	}
	return data
}

// CMYKProfile wraps an A2B0 table in an output-class CMYK profile with a Lab PCS.
func CMYKProfile(a2b []byte) []byte {
	return Build("prtr", "CMYK", "Lab ", map[string][]byte{"A2B0": a2b})
}

// XYZTag encodes an XYZType tag.
func XYZTag(x, y, z float64) []byte {
	b := make([]byte, 20)
	copy(b[0:4], "XYZ ")
	putS15(b[8:], x)
	putS15(b[12:], y)
	putS15(b[16:], z)
	return b
}

// SRGBParaTag is the sRGB transfer function as a type 3 parametric curve.
func SRGBParaTag() []byte {
	b := make([]byte, 12+4*5)
	copy(b[0:4], "para")
	binary.BigEndian.PutUint16(b[8:10], 3)
	for i, v := range []float64{2.4, 1 / 1.055, 0.055 / 1.055, 1 / 12.92, 0.04045} {
		putS15(b[12+4*i:], v)
	}
	return b
}

// SRGBProfile is a matrix/TRC sRGB display profile.
func SRGBProfile() []byte {
	trc := SRGBParaTag()
	desc := make([]byte, 12)
	copy(desc[0:4], "desc")
	name := "Test sRGB\x00"
	binary.BigEndian.PutUint32(desc[8:12], uint32(len(name)))
	desc = append(desc, name...)
	return Build("mntr", "RGB ", "XYZ ", map[string][]byte{
		"desc": desc,
		"rXYZ": XYZTag(0.4360747, 0.2225045, 0.0139322),
		"gXYZ": XYZTag(0.3850649, 0.7168786, 0.0971045),
		"bXYZ": XYZTag(0.1430804, 0.0606169, 0.7141733),
		"rTRC": trc,
		"gTRC": trc,
		"bTRC": trc,
	})
}
