package normalize

import (
	"errors"
	"fmt"
)

// ErrProcessing is matched by every error NormalizeForMarketplace returns
// for a failed image.
var ErrProcessing = errors.New("image processing failed due to technical error")

// ErrNoColorProfile is the cause of a ColorProfileError when no CMYK
// transform was configured.
var ErrNoColorProfile = errors.New("no CMYK color profile configured")

// FormatError reports bytes that are not a decodable image.
type FormatError struct {
	MIME string
	Err  error
}

func (e *FormatError) Error() string {
	if e.MIME == "" {
		return fmt.Sprintf("unsupported image format: %v", e.Err)
	}
	return fmt.Sprintf("unsupported image format %s: %v", e.MIME, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ColorProfileError reports a failed color space conversion.
type ColorProfileError struct {
	Mode ColorMode
	Err  error
}

func (e *ColorProfileError) Error() string {
	return fmt.Sprintf("color profile conversion from %s failed: %v", e.Mode, e.Err)
}

func (e *ColorProfileError) Unwrap() error { return e.Err }

// ProcessingError is the only failure surfaced by the pipeline. The cause is
// logged, not wrapped.
type ProcessingError struct {
	Stage string
}

func (e *ProcessingError) Error() string { return ErrProcessing.Error() }

func (e *ProcessingError) Is(target error) bool { return target == ErrProcessing }
