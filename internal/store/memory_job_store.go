package store

import (
	"context"
	"sync"
	"time"

	"github.com/mcdoradca/PIM/internal/domain"
)

type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]domain.Job
	usage []domain.UsageLog
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.Job),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobExists
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, id, status string) (domain.Job, error) {
	return s.update(id, func(job *domain.Job) {
		job.Status = status
	})
}

func (s *MemoryJobStore) Complete(_ context.Context, id string, outcome JobOutcome) (domain.Job, error) {
	return s.update(id, func(job *domain.Job) {
		job.Status = outcome.Status
		job.OutputKey = outcome.OutputKey
		job.PublicURL = outcome.PublicURL
		job.ContentID = outcome.ContentID
		job.FailureReason = outcome.FailureReason
	})
}

func (s *MemoryJobStore) update(id string, apply func(*domain.Job)) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	apply(&job)
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryJobStore) RecordUsage(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	s.usage = append(s.usage, usage)
	return nil
}

func (s *MemoryJobStore) UsageBySKU(_ context.Context, sku string) ([]domain.UsageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.UsageLog
	for _, u := range s.usage {
		if u.SKU == sku {
			out = append(out, u)
		}
	}
	return out, nil
}
