package icc

import (
	"encoding/binary"
	"fmt"
)

const maxChannels = 15

// channels carries one pixel through a pipeline of stages. Values are
// normalized to [0,1] in the encoding of whatever space the stage emits.
type channels [maxChannels + 1]float64

// stage is one device-to-PCS table. eval reads the first inputs() values of
// v and overwrites the first outputs() values.
type stage interface {
	inputs() int
	outputs() int
	eval(v *channels)
}

// clut is a multidimensional color lookup table. The first input channel
// varies slowest in the sample data.
type clut struct {
	in, out int
	grid    []int
	strides []int
	data    []float64
}

func newCLUT(in, out int, grid []int, data []float64) (*clut, error) {
	if in < 1 || in > maxChannels || out < 1 || out > maxChannels {
		return nil, fmt.Errorf("icc: clut with %d inputs and %d outputs", in, out)
	}
	strides := make([]int, in)
	size := out
	for d := in - 1; d >= 0; d-- {
		if grid[d] < 1 {
			return nil, fmt.Errorf("icc: clut dimension %d has %d grid points", d, grid[d])
		}
		strides[d] = size
		size *= grid[d]
	}
	if len(data) != size {
		return nil, fmt.Errorf("icc: clut expects %d samples, got %d", size, len(data))
	}
	return &clut{in: in, out: out, grid: grid, strides: strides, data: data}, nil
}

func clutSize(in, out int, grid []int) int {
	size := out
	for d := 0; d < in; d++ {
		size *= grid[d]
	}
	return size
}

// eval performs multilinear interpolation over the 2^in enclosing samples.
func (c *clut) eval(v *channels) {
	var (
		frac [maxChannels]float64
		base int
	)
	for d := 0; d < c.in; d++ {
		g := c.grid[d]
		if g == 1 {
			continue
		}
		pos := clamp01(v[d]) * float64(g-1)
		i := int(pos)
		if i >= g-1 {
			i = g - 2
		}
		frac[d] = pos - float64(i)
		base += i * c.strides[d]
	}

	var acc [maxChannels]float64
	for corner := 0; corner < 1<<c.in; corner++ {
		weight := 1.0
		offset := base
		for d := 0; d < c.in; d++ {
			if corner&(1<<d) != 0 {
				if frac[d] == 0 {
					weight = 0
					break
				}
				weight = float64(weight * frac[d])
				offset += c.strides[d]
			} else {
				weight = float64(weight * (1 - frac[d]))
			}
		}
		if weight == 0 {
			continue
		}
		for o := 0; o < c.out; o++ {
			acc[o] += float64(weight * c.data[offset+o])
		}
	}
	for o := 0; o < c.out; o++ {
		v[o] = acc[o]
	}
}

// lutTable covers lut8Type (mft1) and lut16Type (mft2): input curves, a
// CLUT and output curves. The embedded 3x3 matrix only applies to XYZ input
// and is ignored for device-space sources.
type lutTable struct {
	inCurves  []curve
	table     *clut
	outCurves []curve
}

func (l *lutTable) inputs() int  { return l.table.in }
func (l *lutTable) outputs() int { return l.table.out }

func (l *lutTable) eval(v *channels) {
	for i, c := range l.inCurves {
		v[i] = c.eval(v[i])
	}
	l.table.eval(v)
	for i, c := range l.outCurves {
		v[i] = c.eval(v[i])
	}
}

func parseLut16(data []byte) (*lutTable, error) {
	if len(data) < 52 {
		return nil, fmt.Errorf("icc: mft2 too short (%d bytes)", len(data))
	}
	in, out, g := int(data[8]), int(data[9]), int(data[10])
	inEntries := int(binary.BigEndian.Uint16(data[48:50]))
	outEntries := int(binary.BigEndian.Uint16(data[50:52]))
	if inEntries < 2 || outEntries < 2 || g < 1 {
		return nil, fmt.Errorf("icc: mft2 has invalid table sizes (in=%d out=%d grid=%d)", inEntries, outEntries, g)
	}
	if in < 1 || in > maxChannels || out < 1 || out > maxChannels {
		return nil, fmt.Errorf("icc: mft2 with %d inputs and %d outputs", in, out)
	}

	grid := uniformGrid(in, g)
	samples := clutSize(in, out, grid)
	need := 52 + 2*(in*inEntries+samples+out*outEntries)
	if len(data) < need {
		return nil, fmt.Errorf("icc: mft2 truncated (need %d bytes, have %d)", need, len(data))
	}

	pos := 52
	readTable := func(n int) []float64 {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = float64(binary.BigEndian.Uint16(data[pos:])) / 65535.0
			pos += 2
		}
		return vals
	}

	inCurves := make([]curve, in)
	for i := range inCurves {
		inCurves[i] = tableCurve(readTable(inEntries))
	}
	table, err := newCLUT(in, out, grid, readTable(samples))
	if err != nil {
		return nil, err
	}
	outCurves := make([]curve, out)
	for i := range outCurves {
		outCurves[i] = tableCurve(readTable(outEntries))
	}
	return &lutTable{inCurves: inCurves, table: table, outCurves: outCurves}, nil
}

func parseLut8(data []byte) (*lutTable, error) {
	if len(data) < 48 {
		return nil, fmt.Errorf("icc: mft1 too short (%d bytes)", len(data))
	}
	in, out, g := int(data[8]), int(data[9]), int(data[10])
	if in < 1 || in > maxChannels || out < 1 || out > maxChannels || g < 1 {
		return nil, fmt.Errorf("icc: mft1 with %d inputs, %d outputs, %d grid points", in, out, g)
	}

	grid := uniformGrid(in, g)
	samples := clutSize(in, out, grid)
	need := 48 + in*256 + samples + out*256
	if len(data) < need {
		return nil, fmt.Errorf("icc: mft1 truncated (need %d bytes, have %d)", need, len(data))
	}

	pos := 48
	readTable := func(n int) []float64 {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = float64(data[pos]) / 255.0
			pos++
		}
		return vals
	}

	inCurves := make([]curve, in)
	for i := range inCurves {
		inCurves[i] = tableCurve(readTable(256))
	}
	table, err := newCLUT(in, out, grid, readTable(samples))
	if err != nil {
		return nil, err
	}
	outCurves := make([]curve, out)
	for i := range outCurves {
		outCurves[i] = tableCurve(readTable(256))
	}
	return &lutTable{inCurves: inCurves, table: table, outCurves: outCurves}, nil
}

// lutAtoB is lutAToBType ('mAB '): A curves, CLUT, M curves, matrix, B
// curves, applied in that order. Any element but B may be absent.
type lutAtoB struct {
	in, out int
	aCurves []curve
	table   *clut
	mCurves []curve
	matrix  *[12]float64
	bCurves []curve
}

func (l *lutAtoB) inputs() int  { return l.in }
func (l *lutAtoB) outputs() int { return l.out }

func (l *lutAtoB) eval(v *channels) {
	for i, c := range l.aCurves {
		v[i] = c.eval(v[i])
	}
	if l.table != nil {
		l.table.eval(v)
	}
	for i, c := range l.mCurves {
		v[i] = c.eval(v[i])
	}
	if m := l.matrix; m != nil {
		x, y, z := v[0], v[1], v[2]
		v[0] = clamp01(m[0]*x + m[1]*y + m[2]*z + m[9])
		v[1] = clamp01(m[3]*x + m[4]*y + m[5]*z + m[10])
		v[2] = clamp01(m[6]*x + m[7]*y + m[8]*z + m[11])
	}
	for i, c := range l.bCurves {
		v[i] = c.eval(v[i])
	}
}

func parseLutAtoB(data []byte) (*lutAtoB, error) {
	if len(data) < 32 {
		return nil, fmt.Errorf("icc: mAB too short (%d bytes)", len(data))
	}
	l := &lutAtoB{in: int(data[8]), out: int(data[9])}
	if l.in < 1 || l.in > maxChannels || l.out < 1 || l.out > maxChannels {
		return nil, fmt.Errorf("icc: mAB with %d inputs and %d outputs", l.in, l.out)
	}

	offB := int(binary.BigEndian.Uint32(data[12:16]))
	offMatrix := int(binary.BigEndian.Uint32(data[16:20]))
	offM := int(binary.BigEndian.Uint32(data[20:24]))
	offCLUT := int(binary.BigEndian.Uint32(data[24:28]))
	offA := int(binary.BigEndian.Uint32(data[28:32]))

	section := func(name string, off int) ([]byte, error) {
		if off < 32 || off >= len(data) {
			return nil, fmt.Errorf("icc: mAB %s offset %d out of range", name, off)
		}
		return data[off:], nil
	}

	if offB == 0 {
		return nil, fmt.Errorf("icc: mAB without B curves")
	}
	b, err := section("B curves", offB)
	if err != nil {
		return nil, err
	}
	if l.bCurves, err = parseCurves(b, l.out); err != nil {
		return nil, err
	}

	if offMatrix != 0 {
		if l.out != 3 {
			return nil, fmt.Errorf("icc: mAB matrix requires 3 outputs, have %d", l.out)
		}
		m, err := section("matrix", offMatrix)
		if err != nil {
			return nil, err
		}
		if len(m) < 48 {
			return nil, fmt.Errorf("icc: mAB matrix truncated")
		}
		var mat [12]float64
		for i := range mat {
			mat[i] = s15Fixed16(m[4*i:])
		}
		l.matrix = &mat
	}

	if offM != 0 {
		m, err := section("M curves", offM)
		if err != nil {
			return nil, err
		}
		if l.mCurves, err = parseCurves(m, l.out); err != nil {
			return nil, err
		}
	}

	if offCLUT != 0 {
		c, err := section("CLUT", offCLUT)
		if err != nil {
			return nil, err
		}
		if len(c) < 20 {
			return nil, fmt.Errorf("icc: mAB CLUT header truncated")
		}
		grid := make([]int, l.in)
		for d := range grid {
			grid[d] = int(c[d])
		}
		precision := int(c[16])
		if precision != 1 && precision != 2 {
			return nil, fmt.Errorf("icc: mAB CLUT precision %d", precision)
		}
		for d := range grid {
			if grid[d] < 1 {
				return nil, fmt.Errorf("icc: mAB CLUT dimension %d has no grid points", d)
			}
		}
		samples := clutSize(l.in, l.out, grid)
		if len(c) < 20+samples*precision {
			return nil, fmt.Errorf("icc: mAB CLUT truncated")
		}
		vals := make([]float64, samples)
		for i := range vals {
			if precision == 1 {
				vals[i] = float64(c[20+i]) / 255.0
			} else {
				vals[i] = float64(binary.BigEndian.Uint16(c[20+2*i:])) / 65535.0
			}
		}
		if l.table, err = newCLUT(l.in, l.out, grid, vals); err != nil {
			return nil, err
		}
	} else if l.in != l.out {
		return nil, fmt.Errorf("icc: mAB maps %d to %d channels without a CLUT", l.in, l.out)
	}

	if offA != 0 {
		a, err := section("A curves", offA)
		if err != nil {
			return nil, err
		}
		if l.aCurves, err = parseCurves(a, l.in); err != nil {
			return nil, err
		}
	}

	return l, nil
}

func uniformGrid(in, g int) []int {
	grid := make([]int, in)
	for i := range grid {
		grid[i] = g
	}
	return grid
}
