// Package icc evaluates ICC color profiles well enough to convert press CMYK
// pixels into sRGB: header and tag-table parsing, the curve and LUT tag types
// used by output profiles, and matrix/TRC display profiles.
package icc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

const (
	maxProfileSize = 16 * 1024 * 1024
	headerSize     = 128
	acspMagic      = 0x61637370 // 'acsp'
)

var (
	ErrTagNotFound    = errors.New("icc: tag not found")
	ErrUnsupportedTag = errors.New("icc: unsupported tag type")
)

// ProfileInfo contains metadata parsed from an ICC profile header.
type ProfileInfo struct {
	Size       uint32
	Version    string
	Major      uint8
	ColorSpace string // "RGB ", "CMYK", etc.
	PCS        string // "XYZ ", "Lab "
	Class      string // "mntr", "prtr", "scnr", etc.
	Intent     Intent
}

// ParseProfileInfo reads ICC header metadata from raw profile bytes.
func ParseProfileInfo(data []byte) (*ProfileInfo, error) {
	if len(data) < headerSize {
		return nil, errors.New("ICC profile too short (< 128 bytes)")
	}
	if len(data) > maxProfileSize {
		return nil, fmt.Errorf("ICC profile too large (%d bytes, max %d)", len(data), maxProfileSize)
	}
	sig := binary.BigEndian.Uint32(data[36:40])
	if sig != acspMagic {
		return nil, fmt.Errorf("invalid ICC signature: 0x%08x (expected 0x%08x)", sig, acspMagic)
	}
	major := data[8]
	minor := data[9] >> 4
	bugfix := data[9] & 0x0f

	return &ProfileInfo{
		Size:       binary.BigEndian.Uint32(data[0:4]),
		Version:    fmt.Sprintf("%d.%d.%d", major, minor, bugfix),
		Major:      major,
		ColorSpace: string(data[16:20]),
		PCS:        string(data[20:24]),
		Class:      string(data[12:16]),
		Intent:     Intent(binary.BigEndian.Uint32(data[64:68])),
	}, nil
}

// Profile is a parsed ICC profile. Tag payloads alias the bytes passed to
// Parse; callers must not modify them afterwards.
type Profile struct {
	Info ProfileInfo
	tags map[string][]byte
}

// Parse validates the header and indexes the tag table.
func Parse(data []byte) (*Profile, error) {
	info, err := ParseProfileInfo(data)
	if err != nil {
		return nil, err
	}
	if len(data) < headerSize+4 {
		return nil, errors.New("ICC profile has no tag table")
	}

	count := int(binary.BigEndian.Uint32(data[headerSize : headerSize+4]))
	tableEnd := headerSize + 4 + count*12
	if count < 0 || tableEnd > len(data) {
		return nil, fmt.Errorf("ICC tag table truncated (%d tags)", count)
	}

	tags := make(map[string][]byte, count)
	for i := 0; i < count; i++ {
		entry := data[headerSize+4+i*12:]
		sig := string(entry[0:4])
		offset := int(binary.BigEndian.Uint32(entry[4:8]))
		size := int(binary.BigEndian.Uint32(entry[8:12]))
		if offset < 0 || size < 0 || offset+size > len(data) || offset+size < offset {
			return nil, fmt.Errorf("ICC tag %q out of bounds (offset=%d size=%d)", sig, offset, size)
		}
		tags[sig] = data[offset : offset+size]
	}

	return &Profile{Info: *info, tags: tags}, nil
}

// LoadProfile reads an ICC profile from disk and parses it.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ICC profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("validating ICC profile %s: %w", path, err)
	}
	return p, nil
}

// Tag returns the raw payload of a tag.
func (p *Profile) Tag(sig string) ([]byte, bool) {
	data, ok := p.tags[sig]
	return data, ok
}

// Tags lists the tag signatures present in the profile.
func (p *Profile) Tags() []string {
	out := make([]string, 0, len(p.tags))
	for sig := range p.tags {
		out = append(out, sig)
	}
	return out
}

// ColorSpaceName returns a human-readable name for an ICC color space signature.
func ColorSpaceName(sig string) string {
	switch sig {
	case "RGB ":
		return "RGB"
	case "CMYK":
		return "CMYK"
	case "GRAY":
		return "Grayscale"
	case "Lab ":
		return "CIELAB"
	case "XYZ ":
		return "CIEXYZ"
	default:
		return sig
	}
}

// ProfileClassName returns a human-readable name for an ICC profile class.
func ProfileClassName(sig string) string {
	switch sig {
	case "mntr":
		return "Display"
	case "prtr":
		return "Output"
	case "scnr":
		return "Input"
	case "link":
		return "DeviceLink"
	case "spac":
		return "ColorSpace"
	case "abst":
		return "Abstract"
	case "nmcl":
		return "NamedColor"
	default:
		return sig
	}
}

func s15Fixed16(b []byte) float64 {
	return float64(int32(binary.BigEndian.Uint32(b))) / 65536.0
}
