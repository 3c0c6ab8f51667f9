package icc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// curve maps a normalized channel value in [0,1] to [0,1].
type curve interface {
	eval(x float64) float64
}

type identityCurve struct{}

func (identityCurve) eval(x float64) float64 { return x }

type gammaCurve float64

func (g gammaCurve) eval(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Pow(x, float64(g))
}

// tableCurve holds evenly spaced samples, linearly interpolated.
type tableCurve []float64

func (t tableCurve) eval(x float64) float64 {
	n := len(t)
	switch n {
	case 0:
		return x
	case 1:
		return t[0]
	}
	pos := clamp01(x) * float64(n-1)
	i := int(pos)
	if i >= n-1 {
		return t[n-1]
	}
	frac := pos - float64(i)
	return t[i] + float64(frac*(t[i+1]-t[i]))
}

// paraCurve is the ICC parametricCurveType, function types 0 through 4.
type paraCurve struct {
	kind                int
	g, a, b, c, d, e, f float64
}

func (p paraCurve) eval(x float64) float64 {
	var y float64
	switch p.kind {
	case 0:
		y = pow(x, p.g)
	case 1:
		if x >= -p.b/p.a {
			y = pow(p.a*x+p.b, p.g)
		}
	case 2:
		if x >= -p.b/p.a {
			y = pow(p.a*x+p.b, p.g) + p.c
		} else {
			y = p.c
		}
	case 3:
		if x >= p.d {
			y = pow(p.a*x+p.b, p.g)
		} else {
			y = p.c * x
		}
	case 4:
		if x >= p.d {
			y = pow(p.a*x+p.b, p.g) + p.e
		} else {
			y = p.c*x + p.f
		}
	}
	return clamp01(y)
}

var paraParamCount = [...]int{1, 3, 4, 5, 7}

// parseCurve decodes a curv or para element and reports how many bytes it
// occupies, padded to a 4-byte boundary.
func parseCurve(data []byte) (curve, int, error) {
	if len(data) < 12 {
		return nil, 0, fmt.Errorf("icc: curve element too short (%d bytes)", len(data))
	}

	switch string(data[0:4]) {
	case "curv":
		count := int(binary.BigEndian.Uint32(data[8:12]))
		size := 12 + 2*count
		if count < 0 || size > len(data) {
			return nil, 0, fmt.Errorf("icc: curv with %d entries truncated", count)
		}
		switch count {
		case 0:
			return identityCurve{}, pad4(size), nil
		case 1:
			return gammaCurve(float64(binary.BigEndian.Uint16(data[12:14])) / 256.0), pad4(size), nil
		}
		table := make(tableCurve, count)
		for i := range table {
			table[i] = float64(binary.BigEndian.Uint16(data[12+2*i:])) / 65535.0
		}
		return table, pad4(size), nil

	case "para":
		kind := int(binary.BigEndian.Uint16(data[8:10]))
		if kind < 0 || kind >= len(paraParamCount) {
			return nil, 0, fmt.Errorf("icc: para function type %d: %w", kind, ErrUnsupportedTag)
		}
		n := paraParamCount[kind]
		size := 12 + 4*n
		if size > len(data) {
			return nil, 0, fmt.Errorf("icc: para type %d truncated", kind)
		}
		var params [7]float64
		for i := 0; i < n; i++ {
			params[i] = s15Fixed16(data[12+4*i:])
		}
		p := paraCurve{kind: kind, g: params[0], a: params[1], b: params[2], c: params[3], d: params[4], e: params[5], f: params[6]}
		if kind > 0 && p.a == 0 {
			return nil, 0, fmt.Errorf("icc: para type %d has zero slope", kind)
		}
		return p, pad4(size), nil

	default:
		return nil, 0, fmt.Errorf("icc: curve type %q: %w", string(data[0:4]), ErrUnsupportedTag)
	}
}

// parseCurves decodes n consecutive curve elements.
func parseCurves(data []byte, n int) ([]curve, error) {
	out := make([]curve, n)
	pos := 0
	for i := 0; i < n; i++ {
		if pos >= len(data) {
			return nil, fmt.Errorf("icc: curve %d of %d missing", i+1, n)
		}
		c, size, err := parseCurve(data[pos:])
		if err != nil {
			return nil, err
		}
		out[i] = c
		pos += size
	}
	return out, nil
}

// invertCurve samples the inverse of a monotonically increasing curve.
func invertCurve(c curve, samples int) tableCurve {
	inv := make(tableCurve, samples)
	for i := range inv {
		target := float64(i) / float64(samples-1)
		lo, hi := 0.0, 1.0
		for iter := 0; iter < 40; iter++ {
			mid := (lo + hi) / 2
			if c.eval(mid) < target {
				lo = mid
			} else {
				hi = mid
			}
		}
		inv[i] = (lo + hi) / 2
	}
	return inv
}

func pow(x, g float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Pow(x, g)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func pad4(n int) int {
	return (n + 3) &^ 3
}
