package pipeline

import (
	"strings"

	"github.com/mcdoradca/PIM/internal/domain"
	"github.com/mcdoradca/PIM/internal/normalize"
)

// GoldenRecordName is the file name of the golden record for sku.
func GoldenRecordName(sku string) string {
	return sanitizePathToken(sku) + ".jpg"
}

// SpecFromOptions applies per-job overrides on top of the configured
// defaults. Zero-valued options keep the default.
func SpecFromOptions(defaults normalize.Spec, opts domain.NormalizationOptions) normalize.Spec {
	spec := defaults
	if opts.TargetWidth > 0 && opts.TargetHeight > 0 {
		spec.TargetSize = normalize.Size{Width: opts.TargetWidth, Height: opts.TargetHeight}
	}
	if opts.Quality > 0 {
		spec.Quality = opts.Quality
	}
	if opts.ForceWhiteBackground != nil {
		spec.ForceWhiteBackground = *opts.ForceWhiteBackground
	}
	if opts.MinWidth > 0 {
		spec.MinResolution.Width = opts.MinWidth
	}
	if opts.MinHeight > 0 {
		spec.MinResolution.Height = opts.MinHeight
	}
	return spec
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "unknown"
	}
	return out
}
