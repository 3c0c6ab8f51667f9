package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/mcdoradca/PIM/internal/domain"
	"github.com/mcdoradca/PIM/internal/normalize"
	"github.com/mcdoradca/PIM/internal/storage"
)

const (
	SourceTypeS3Presigned = domain.SourceTypeS3Presigned
)

type ObjectReader interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
}

type Publisher interface {
	PublishRecord(ctx context.Context, filename string, data []byte, contentType string) (storage.Published, error)
}

type ObjectStoreFetcher struct {
	Storage ObjectReader
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey)
}

// ObjectStoreEmitter publishes golden records as <OutputPrefix>/<SKU>.jpg.
type ObjectStoreEmitter struct {
	Storage      Publisher
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, data []byte, size normalize.Size) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}

	name := GoldenRecordName(req.SKU)
	objectKey := path.Join(defaultOutputPrefix(e.OutputPrefix), name)

	published, err := e.Storage.PublishRecord(ctx, objectKey, data, contentTypeJPEG)
	if err != nil {
		return Output{}, err
	}

	return Output{
		Name:        name,
		Path:        published.Key,
		URL:         published.URL,
		ContentID:   published.ContentID,
		ContentType: contentTypeJPEG,
		Bytes:       len(data),
		Width:       size.Width,
		Height:      size.Height,
		Updated:     published.Updated,
	}, nil
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "golden"
	}
	return prefix
}
