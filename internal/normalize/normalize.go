package normalize

import (
	"github.com/sirupsen/logrus"

	"github.com/mcdoradca/PIM/internal/icc"
)

const (
	StageDecode    = "decode"
	StageColor     = "color"
	StageResize    = "resize"
	StageComposite = "composite"
	StageEncode    = "encode"
)

// Result describes one normalization run.
type Result struct {
	Data    []byte
	Source  RawImage
	Fitted  Size
	Padding Padding
}

// Normalizer runs the golden-record pipeline. It holds no per-call state and
// is safe for concurrent use.
type Normalizer struct {
	log             logrus.FieldLogger
	color           *ColorNormalizer
	encoder         Encoder
	maxSourcePixels int64
}

type Option func(*Normalizer)

// WithEncoder overrides the build-time encoder.
func WithEncoder(e Encoder) Option {
	return func(n *Normalizer) {
		n.encoder = e
	}
}

// WithMaxSourcePixels overrides DefaultMaxSourcePixels. A non-positive n
// keeps the default.
func WithMaxSourcePixels(n int64) Option {
	return func(nz *Normalizer) {
		if n > 0 {
			nz.maxSourcePixels = n
		}
	}
}

// NewNormalizer binds the logger and the shared CMYK transform, which may be
// nil when no press profile is configured.
func NewNormalizer(logger logrus.FieldLogger, transform *icc.Transform, opts ...Option) *Normalizer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	n := &Normalizer{
		log:             logger,
		color:           NewColorNormalizer(transform),
		encoder:         DefaultEncoder(),
		maxSourcePixels: DefaultMaxSourcePixels,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NormalizeForMarketplace converts raw image bytes into the golden record
// described by spec. Any image failure is logged with its cause and reported
// as a *ProcessingError. An invalid spec is the exception: it is returned
// wrapping ErrInvalidSpec and does not match ErrProcessing.
func (n *Normalizer) NormalizeForMarketplace(raw []byte, spec Spec) ([]byte, error) {
	res, err := n.Normalize(raw, spec)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Normalize is NormalizeForMarketplace with the intermediate measurements.
// An invalid spec is returned as is, wrapping ErrInvalidSpec.
func (n *Normalizer) Normalize(raw []byte, spec Spec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	src, err := DecodeBounded(raw, n.maxSourcePixels)
	if err != nil {
		return nil, n.fail(StageDecode, err, nil)
	}
	fields := logrus.Fields{
		"format": src.Format,
		"mode":   src.Mode.String(),
		"width":  src.Width,
		"height": src.Height,
	}

	rgb, err := n.color.Normalize(src, spec.ForceWhiteBackground)
	if err != nil {
		return nil, n.fail(StageColor, err, fields)
	}

	fitted := ResizeToFit(rgb, spec.TargetSize)
	fb := fitted.Bounds()

	// Padding is white regardless of ForceWhiteBackground.
	pad, err := Margins(fitted, spec.TargetSize)
	if err != nil {
		return nil, n.fail(StageComposite, err, fields)
	}
	canvas, err := PadToExact(fitted, spec.TargetSize, white)
	if err != nil {
		return nil, n.fail(StageComposite, err, fields)
	}

	data, err := n.encoder.Encode(canvas, spec.OutputFormat, spec.Quality, spec.ChromaSubsampling)
	if err != nil {
		return nil, n.fail(StageEncode, err, fields)
	}

	n.log.WithFields(fields).WithFields(logrus.Fields{
		"fitted":  Size{Width: fb.Dx(), Height: fb.Dy()}.String(),
		"target":  spec.TargetSize.String(),
		"bytes":   len(data),
		"quality": spec.Quality,
	}).Debug("image normalized")

	return &Result{
		Data:    data,
		Source:  src,
		Fitted:  Size{Width: fb.Dx(), Height: fb.Dy()},
		Padding: pad,
	}, nil
}

func (n *Normalizer) fail(stage string, cause error, fields logrus.Fields) error {
	n.log.WithFields(fields).WithField("stage", stage).WithError(cause).Error("image normalization failed")
	return &ProcessingError{Stage: stage}
}
