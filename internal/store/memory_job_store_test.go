package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcdoradca/PIM/internal/domain"
)

var (
	_ JobStore   = (*MemoryJobStore)(nil)
	_ UsageStore = (*MemoryJobStore)(nil)
	_ JobStore   = (*PostgresJobStore)(nil)
	_ UsageStore = (*PostgresJobStore)(nil)
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()
	created := time.Now().UTC().Add(-time.Minute)

	job := domain.Job{ID: "job-1", SKU: "SER-1", Status: domain.JobStatusCreated, CreatedAt: created, UpdatedAt: created}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, job); !errors.Is(err, ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}

	queued, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusQueued)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if queued.Status != domain.JobStatusQueued || !queued.UpdatedAt.After(created) {
		t.Fatalf("unexpected job after update: %+v", queued)
	}

	done, err := s.Complete(ctx, "job-1", JobOutcome{
		Status:    domain.JobStatusSucceeded,
		OutputKey: "golden/SER-1.jpg",
		PublicURL: "https://cdn.test/golden/SER-1.jpg",
		ContentID: "bafkrei",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.Finished() || done.OutputKey != "golden/SER-1.jpg" || done.ContentID != "bafkrei" {
		t.Fatalf("unexpected completed job: %+v", done)
	}

	got, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.PublicURL != done.PublicURL {
		t.Fatalf("expected persisted public url, got %q", got.PublicURL)
	}

	if _, err := s.UpdateStatus(ctx, "missing", domain.JobStatusQueued); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("expected missing job")
	}
}

func TestMemoryUsageStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sku := "SER-A"
			if i%2 == 1 {
				sku = "SER-B"
			}
			if err := s.RecordUsage(ctx, domain.UsageLog{JobID: "job", SKU: sku, PixelsProcessed: 100}); err != nil {
				t.Errorf("record usage: %v", err)
			}
		}(i)
	}
	wg.Wait()

	logs, err := s.UsageBySKU(ctx, "SER-A")
	if err != nil {
		t.Fatalf("usage by sku: %v", err)
	}
	if len(logs) != 10 {
		t.Fatalf("expected 10 usage logs, got %d", len(logs))
	}
	if logs[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be stamped")
	}
}
