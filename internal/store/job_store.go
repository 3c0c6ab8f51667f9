package store

import (
	"context"
	"errors"

	"github.com/mcdoradca/PIM/internal/domain"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

// JobOutcome is the terminal state written when a job finishes.
type JobOutcome struct {
	Status        string
	OutputKey     string
	PublicURL     string
	ContentID     string
	FailureReason string
}

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	Complete(ctx context.Context, id string, outcome JobOutcome) (domain.Job, error)
}

type UsageStore interface {
	RecordUsage(ctx context.Context, usage domain.UsageLog) error
	UsageBySKU(ctx context.Context, sku string) ([]domain.UsageLog, error)
}
