package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mcdoradca/PIM/internal/domain"
	"github.com/mcdoradca/PIM/internal/webhook"
)

const (
	TypeNormalizeImage = "image:normalize"
	TypeDeliverWebhook = "webhook:deliver"
)

type NormalizeImagePayload struct {
	JobID       string                      `json:"job_id"`
	SKU         string                      `json:"sku"`
	EAN         string                      `json:"ean,omitempty"`
	SourceType  string                      `json:"source_type"`
	WebhookURL  string                      `json:"webhook_url,omitempty"`
	ObjectKey   string                      `json:"object_key"`
	Options     domain.NormalizationOptions `json:"options"`
	RequestedAt time.Time                   `json:"requested_at"`
}

func PayloadFromJob(job domain.Job) NormalizeImagePayload {
	return NormalizeImagePayload{
		JobID:       job.ID,
		SKU:         job.SKU,
		EAN:         job.EAN,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		Options:     job.Options,
		RequestedAt: time.Now().UTC(),
	}
}

func NewNormalizeImageTask(payload NormalizeImagePayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.JobID) == "" {
		return nil, errors.New("job_id is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal normalize payload: %w", err)
	}
	return asynq.NewTask(TypeNormalizeImage, body), nil
}

func ParseNormalizeImagePayload(task *asynq.Task) (NormalizeImagePayload, error) {
	var payload NormalizeImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NormalizeImagePayload{}, fmt.Errorf("unmarshal normalize payload: %w", err)
	}
	return payload, nil
}

// DeliverWebhookPayload is a job event whose first delivery failed after the
// job outcome was already stored.
type DeliverWebhookPayload struct {
	JobID    string           `json:"job_id"`
	Endpoint string           `json:"endpoint"`
	Event    string           `json:"event"`
	Body     webhook.JobEvent `json:"body"`
}

func NewDeliverWebhookTask(payload DeliverWebhookPayload) (*asynq.Task, error) {
	switch {
	case strings.TrimSpace(payload.JobID) == "":
		return nil, errors.New("job_id is required")
	case strings.TrimSpace(payload.Endpoint) == "":
		return nil, errors.New("endpoint is required")
	case strings.TrimSpace(payload.Event) == "":
		return nil, errors.New("event is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}
	return asynq.NewTask(TypeDeliverWebhook, body), nil
}

func ParseDeliverWebhookPayload(task *asynq.Task) (DeliverWebhookPayload, error) {
	var payload DeliverWebhookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DeliverWebhookPayload{}, fmt.Errorf("unmarshal webhook payload: %w", err)
	}
	return payload, nil
}
