package icc

import (
	"encoding/binary"
	"fmt"
)

const inverseCurveSamples = 4096

// rgbDestination is a matrix/TRC display profile evaluated in the PCS to
// device direction.
type rgbDestination struct {
	name     string
	fromXYZ  [9]float64
	inverses [3]tableCurve
}

// builtinSRGB returns the IEC 61966-2.1 sRGB space with its primaries adapted to
// D50, the same data a matrix/TRC sRGB.icc carries.
func builtinSRGB() *rgbDestination {
	trc := paraCurve{kind: 3, g: 2.4, a: 1 / 1.055, b: 0.055 / 1.055, c: 1 / 12.92, d: 0.04045}
	dst, err := newRGBDestination("sRGB IEC61966-2.1", [9]float64{
		0.4360747, 0.3850649, 0.1430804,
		0.2225045, 0.7168786, 0.0606169,
		0.0139322, 0.0971045, 0.7141733,
	}, [3]curve{trc, trc, trc})
	if err != nil {
		panic(err)
	}
	return dst
}

func newRGBDestination(name string, toXYZ [9]float64, trcs [3]curve) (*rgbDestination, error) {
	inv, ok := invert3x3(toXYZ)
	if !ok {
		return nil, fmt.Errorf("icc: %s colorant matrix is singular", name)
	}
	d := &rgbDestination{name: name, fromXYZ: inv}
	for i, c := range trcs {
		d.inverses[i] = invertCurve(c, inverseCurveSamples)
	}
	return d, nil
}

// destinationFromProfile reads the colorant and TRC tags of an RGB display
// profile. LUT-based RGB destinations are not supported.
func destinationFromProfile(p *Profile) (*rgbDestination, error) {
	if p.Info.ColorSpace != "RGB " {
		return nil, fmt.Errorf("icc: destination color space is %s, expected RGB", ColorSpaceName(p.Info.ColorSpace))
	}
	if p.Info.PCS != "XYZ " {
		return nil, fmt.Errorf("icc: destination PCS is %s, matrix/TRC profiles require XYZ", ColorSpaceName(p.Info.PCS))
	}

	var (
		m    [9]float64
		trcs [3]curve
	)
	for col, prefix := range []string{"r", "g", "b"} {
		xyz, err := readXYZ(p, prefix+"XYZ")
		if err != nil {
			return nil, err
		}
		m[col], m[3+col], m[6+col] = xyz[0], xyz[1], xyz[2]

		raw, ok := p.Tag(prefix + "TRC")
		if !ok {
			return nil, fmt.Errorf("icc: %sTRC: %w", prefix, ErrTagNotFound)
		}
		c, _, err := parseCurve(raw)
		if err != nil {
			return nil, fmt.Errorf("icc: %sTRC: %w", prefix, err)
		}
		trcs[col] = c
	}
	return newRGBDestination(describe(p), m, trcs)
}

func readXYZ(p *Profile, sig string) ([3]float64, error) {
	raw, ok := p.Tag(sig)
	if !ok {
		return [3]float64{}, fmt.Errorf("icc: %s: %w", sig, ErrTagNotFound)
	}
	if len(raw) < 20 || string(raw[0:4]) != "XYZ " {
		return [3]float64{}, fmt.Errorf("icc: %s is not an XYZType", sig)
	}
	return [3]float64{s15Fixed16(raw[8:]), s15Fixed16(raw[12:]), s15Fixed16(raw[16:])}, nil
}

func (d *rgbDestination) fromPCS(xyz [3]float64) (r, g, b uint8) {
	m := &d.fromXYZ
	lin := [3]float64{
		m[0]*xyz[0] + m[1]*xyz[1] + m[2]*xyz[2],
		m[3]*xyz[0] + m[4]*xyz[1] + m[5]*xyz[2],
		m[6]*xyz[0] + m[7]*xyz[1] + m[8]*xyz[2],
	}
	var out [3]uint8
	for i, v := range lin {
		out[i] = quantize8(d.inverses[i].eval(clamp01(v)))
	}
	return out[0], out[1], out[2]
}

func quantize8(v float64) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}

// describe returns the profile's desc text when it is a plain textType or
// textDescriptionType, falling back to its class and color space.
func describe(p *Profile) string {
	if raw, ok := p.Tag("desc"); ok && len(raw) > 12 {
		switch string(raw[0:4]) {
		case "desc":
			n := int(binary.BigEndian.Uint32(raw[8:12]))
			if n > 0 && 12+n <= len(raw) {
				return trimNUL(raw[12 : 12+n])
			}
		case "text":
			return trimNUL(raw[8:])
		}
	}
	return fmt.Sprintf("%s %s profile", ProfileClassName(p.Info.Class), ColorSpaceName(p.Info.ColorSpace))
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
