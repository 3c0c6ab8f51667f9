package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/mcdoradca/PIM/internal/domain"
	"github.com/mcdoradca/PIM/internal/normalize"
	"github.com/mcdoradca/PIM/internal/storage"
)

type memoryObjects struct {
	objects   map[string][]byte
	published map[string][]byte
}

func (m *memoryObjects) ReadObject(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (m *memoryObjects) PublishRecord(_ context.Context, filename string, data []byte, _ string) (storage.Published, error) {
	if m.published == nil {
		m.published = map[string][]byte{}
	}
	_, updated := m.published[filename]
	m.published[filename] = data
	id, err := storage.ContentID(data)
	if err != nil {
		return storage.Published{}, err
	}
	return storage.Published{Key: filename, URL: "https://cdn.test/" + filename, ContentID: id, Updated: updated}, nil
}

func TestObjectStoreProcessor(t *testing.T) {
	objects := &memoryObjects{objects: map[string][]byte{"uploads/job-1/source": buildTestPNG(t, 120, 240)}}
	processor := NewProcessor(
		ObjectStoreFetcher{Storage: objects},
		testNormalizer(t),
		ObjectStoreEmitter{Storage: objects, OutputPrefix: "/golden/"},
	)

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-1",
		SKU:        "SER-9",
		SourceType: SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-1/source",
		Spec:       smallSpec(),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Output.Path != "golden/SER-9.jpg" {
		t.Fatalf("unexpected object key %s", result.Output.Path)
	}
	if result.Output.URL != "https://cdn.test/golden/SER-9.jpg" {
		t.Fatalf("unexpected url %s", result.Output.URL)
	}
	if result.Output.ContentID == "" {
		t.Fatal("expected content id")
	}
	if len(objects.published["golden/SER-9.jpg"]) != result.Output.Bytes {
		t.Fatal("published bytes do not match output")
	}
	if result.Padding.Left != 50 || result.Padding.Right != 50 {
		t.Fatalf("unexpected padding %+v", result.Padding)
	}
}

func TestObjectStoreFetcherRejectsLocalFiles(t *testing.T) {
	_, err := ObjectStoreFetcher{Storage: &memoryObjects{}}.Fetch(context.Background(), Request{SourceType: SourceTypeLocalFile})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected unsupported source type, got %v", err)
	}
}

func TestSpecFromOptions(t *testing.T) {
	defaults := normalize.DefaultSpec()
	off := false

	spec := SpecFromOptions(defaults, domain.NormalizationOptions{
		TargetWidth:          1200,
		TargetHeight:         1600,
		Quality:              85,
		ForceWhiteBackground: &off,
		MinWidth:             600,
	})
	if spec.TargetSize != (normalize.Size{Width: 1200, Height: 1600}) {
		t.Fatalf("unexpected target %s", spec.TargetSize)
	}
	if spec.Quality != 85 || spec.ForceWhiteBackground {
		t.Fatalf("unexpected overrides %+v", spec)
	}
	if spec.MinResolution != (normalize.Size{Width: 600, Height: 1000}) {
		t.Fatalf("unexpected min resolution %s", spec.MinResolution)
	}

	if got := SpecFromOptions(defaults, domain.NormalizationOptions{}); got != defaults {
		t.Fatalf("empty options must keep defaults, got %+v", got)
	}
}

func TestGoldenRecordName(t *testing.T) {
	cases := map[string]string{
		"SER-0042":  "SER-0042.jpg",
		" SER 42 ":  "SER_42.jpg",
		"../../etc": "_.._etc.jpg",
		"":          "unknown.jpg",
		"...":       "unknown.jpg",
		"ąę-SKU.v2": "__-SKU.v2.jpg",
	}
	for in, want := range cases {
		if got := GoldenRecordName(in); got != want {
			t.Fatalf("GoldenRecordName(%q) = %q, want %q", in, got, want)
		}
	}
}
