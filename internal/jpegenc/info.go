package jpegenc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Component describes one frame component.
type Component struct {
	ID       int
	H, V     int
	QuantSel int
}

// Info is the frame and marker layout of a JPEG file.
type Info struct {
	Width       int
	Height      int
	Precision   int
	Progressive bool
	Components  []Component
	// Markers lists the APPn and COM segments in file order, e.g. "APP0".
	Markers []string
}

// HasMarker reports whether a segment with the given name is present.
func (i Info) HasMarker(name string) bool {
	for _, m := range i.Markers {
		if m == name {
			return true
		}
	}
	return false
}

// Subsampling names the chroma layout of a 3-component frame.
func (i Info) Subsampling() string {
	if len(i.Components) != 3 {
		return fmt.Sprintf("%d components", len(i.Components))
	}
	y, cb, cr := i.Components[0], i.Components[1], i.Components[2]
	if cb.H != cr.H || cb.V != cr.V || cb.H != 1 || cb.V != 1 {
		return "other"
	}
	switch {
	case y.H == 1 && y.V == 1:
		return "4:4:4"
	case y.H == 2 && y.V == 1:
		return "4:2:2"
	case y.H == 2 && y.V == 2:
		return "4:2:0"
	case y.H == 1 && y.V == 2:
		return "4:4:0"
	case y.H == 4 && y.V == 1:
		return "4:1:1"
	default:
		return "other"
	}
}

var errNotJPEG = errors.New("jpegenc: missing SOI marker")

// Inspect scans the markers up to the first scan without decoding pixels.
func Inspect(data []byte) (Info, error) {
	var info Info
	if len(data) < 4 || data[0] != 0xff || data[1] != 0xd8 {
		return info, errNotJPEG
	}

	pos := 2
	frame := false
	for pos < len(data) {
		if data[pos] != 0xff {
			return info, fmt.Errorf("jpegenc: expected marker at offset %d", pos)
		}
		for pos < len(data) && data[pos] == 0xff {
			pos++
		}
		if pos >= len(data) {
			break
		}
		m := data[pos]
		pos++

		switch {
		case m == 0xd9:
			return finish(info, frame)
		case m == 0x01 || (m >= 0xd0 && m <= 0xd7):
			continue
		}

		if pos+2 > len(data) {
			return info, fmt.Errorf("jpegenc: truncated segment 0x%02x", m)
		}
		n := int(binary.BigEndian.Uint16(data[pos:]))
		if n < 2 || pos+n > len(data) {
			return info, fmt.Errorf("jpegenc: segment 0x%02x length %d out of range", m, n)
		}
		seg := data[pos+2 : pos+n]
		pos += n

		switch {
		case m >= 0xe0 && m <= 0xef:
			info.Markers = append(info.Markers, fmt.Sprintf("APP%d", m-0xe0))
		case m == 0xfe:
			info.Markers = append(info.Markers, "COM")
		case isSOF(m):
			if err := parseFrame(&info, m, seg); err != nil {
				return info, err
			}
			frame = true
		case m == 0xda:
			return finish(info, frame)
		}
	}
	return finish(info, frame)
}

func finish(info Info, frame bool) (Info, error) {
	if !frame {
		return info, errors.New("jpegenc: no frame header")
	}
	return info, nil
}

func isSOF(m byte) bool {
	return m >= 0xc0 && m <= 0xcf && m != 0xc4 && m != 0xc8 && m != 0xcc
}

func parseFrame(info *Info, m byte, seg []byte) error {
	if len(seg) < 6 {
		return errors.New("jpegenc: frame header truncated")
	}
	info.Precision = int(seg[0])
	info.Height = int(binary.BigEndian.Uint16(seg[1:3]))
	info.Width = int(binary.BigEndian.Uint16(seg[3:5]))
	info.Progressive = m == 0xc2 || m == 0xc6 || m == 0xca || m == 0xce
	nc := int(seg[5])
	if len(seg) < 6+3*nc {
		return errors.New("jpegenc: frame components truncated")
	}
	info.Components = make([]Component, nc)
	for i := range info.Components {
		c := seg[6+3*i:]
		info.Components[i] = Component{
			ID:       int(c[0]),
			H:        int(c[1] >> 4),
			V:        int(c[1] & 0x0f),
			QuantSel: int(c[2]),
		}
	}
	return nil
}
