package icc

import "math"

// D50 is the profile connection space white point.
var d50 = [3]float64{0.9642, 1.0, 0.8249}

// pcsDecoder turns a stage's normalized output into CIE XYZ relative to D50.
type pcsDecoder func(v *channels) [3]float64

// Lab encodings differ per tag type: lut16Type keeps the legacy ICC v2
// scale where 0xFF00 is L*=100, while lut8Type and lutAToBType use the full
// range.
func labLegacy16(v *channels) [3]float64 {
	const scale = 65535.0 / 65280.0
	return labToXYZ(v[0]*scale*100, v[1]*scale*255-128, v[2]*scale*255-128)
}

func labFullRange(v *channels) [3]float64 {
	return labToXYZ(v[0]*100, v[1]*255-128, v[2]*255-128)
}

// XYZ is u1Fixed15 in the PCS: 0x8000 encodes 1.0.
func xyz16(v *channels) [3]float64 {
	const scale = 65535.0 / 32768.0
	return [3]float64{v[0] * scale, v[1] * scale, v[2] * scale}
}

func labToXYZ(l, a, b float64) [3]float64 {
	fy := (l + 16) / 116
	fx := fy + a/500
	fz := fy - b/200
	return [3]float64{
		d50[0] * labInverse(fx),
		d50[1] * labInverse(fy),
		d50[2] * labInverse(fz),
	}
}

func labInverse(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta {
		return t * t * t
	}
	return 3 * delta * delta * (t - 4.0/29.0)
}

func pcsDecoderFor(pcs, tagType string) pcsDecoder {
	switch {
	case pcs == "XYZ ":
		return xyz16
	case tagType == "mft2":
		return labLegacy16
	default:
		return labFullRange
	}
}

func invert3x3(m [9]float64) ([9]float64, bool) {
	det := m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
	if math.Abs(det) < 1e-12 {
		return [9]float64{}, false
	}
	inv := 1 / det
	return [9]float64{
		(m[4]*m[8] - m[5]*m[7]) * inv,
		(m[2]*m[7] - m[1]*m[8]) * inv,
		(m[1]*m[5] - m[2]*m[4]) * inv,
		(m[5]*m[6] - m[3]*m[8]) * inv,
		(m[0]*m[8] - m[2]*m[6]) * inv,
		(m[2]*m[3] - m[0]*m[5]) * inv,
		(m[3]*m[7] - m[4]*m[6]) * inv,
		(m[1]*m[6] - m[0]*m[7]) * inv,
		(m[0]*m[4] - m[1]*m[3]) * inv,
	}, true
}
