package normalize

import (
	"image"

	"github.com/sirupsen/logrus"
)

// ValidateImageQuality reports whether img meets the minimum resolution on
// both axes. Rejections are logged as warnings.
func ValidateImageQuality(logger logrus.FieldLogger, img image.Image, min Size) bool {
	b := img.Bounds()
	return ValidateSize(logger, Size{Width: b.Dx(), Height: b.Dy()}, min)
}

// ValidateSize applies the same check to dimensions read from a header.
func ValidateSize(logger logrus.FieldLogger, got, min Size) bool {
	if got.Width >= min.Width && got.Height >= min.Height {
		return true
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"width":      got.Width,
		"height":     got.Height,
		"min_width":  min.Width,
		"min_height": min.Height,
	}).Warn("image below minimum resolution")
	return false
}
