package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcdoradca/PIM/internal/normalize"
	"github.com/mcdoradca/PIM/internal/storage"
)

const (
	SourceTypeLocalFile = "local_file"

	contentTypeJPEG = "image/jpeg"
)

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

type Request struct {
	JobID      string
	SKU        string
	SourceType string
	ObjectKey  string
	Spec       normalize.Spec
}

type Output struct {
	Name        string
	Path        string
	URL         string
	ContentID   string
	ContentType string
	Bytes       int
	Width       int
	Height      int
	// Updated is set when an earlier golden record for the SKU was replaced.
	Updated bool
}

type Result struct {
	Output      Output
	SourceBytes int
	SourceSize  normalize.Size
	SourceMode  normalize.ColorMode
	Fitted      normalize.Size
	Padding     normalize.Padding
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, data []byte, size normalize.Size) (Output, error)
}

type Processor struct {
	fetcher    Fetcher
	normalizer *normalize.Normalizer
	emitter    Emitter
}

func NewProcessor(fetcher Fetcher, normalizer *normalize.Normalizer, emitter Emitter) *Processor {
	return &Processor{
		fetcher:    fetcher,
		normalizer: normalizer,
		emitter:    emitter,
	}
}

func NewLocalProcessor(outputDir string, normalizer *normalize.Normalizer) *Processor {
	return NewProcessor(LocalFileFetcher{}, normalizer, LocalFileEmitter{OutputDir: outputDir})
}

// Fetch exposes the fetch stage so callers can run the quality gate on the
// source bytes before normalizing.
func (p *Processor) Fetch(ctx context.Context, req Request) ([]byte, error) {
	data, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch stage: %w", err)
	}
	return data, nil
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	source, err := p.Fetch(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return p.ProcessBytes(ctx, req, source)
}

// ProcessBytes normalizes already fetched source bytes and emits the golden
// record.
func (p *Processor) ProcessBytes(ctx context.Context, req Request, source []byte) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if strings.TrimSpace(req.SKU) == "" {
		return Result{}, errors.New("sku is required")
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	normalized, err := p.normalizer.Normalize(source, req.Spec)
	if err != nil {
		return Result{}, fmt.Errorf("normalize stage: %w", err)
	}

	written, err := p.emitter.Emit(ctx, req, normalized.Data, req.Spec.TargetSize)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}

	return Result{
		Output:      written,
		SourceBytes: len(source),
		SourceSize:  normalized.Source.Size(),
		SourceMode:  normalized.Source.Mode,
		Fitted:      normalized.Fitted,
		Padding:     normalized.Padding,
	}, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

// LocalFileEmitter writes golden records as <OutputDir>/<SKU>.jpg. A record
// for the same SKU is overwritten.
type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, data []byte, size normalize.Size) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	contentID, err := storage.ContentID(data)
	if err != nil {
		return Output{}, err
	}

	name := GoldenRecordName(req.SKU)
	fullPath := filepath.Join(e.OutputDir, name)
	_, statErr := os.Stat(fullPath)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return Output{
		Name:        name,
		Path:        fullPath,
		ContentID:   contentID,
		ContentType: contentTypeJPEG,
		Bytes:       len(data),
		Width:       size.Width,
		Height:      size.Height,
		Updated:     statErr == nil,
	}, nil
}
