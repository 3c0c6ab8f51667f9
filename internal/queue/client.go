package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// ErrAlreadyQueued is returned when a task for the same job is still pending.
var ErrAlreadyQueued = errors.New("job already queued")

type Options struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

type Client struct {
	client *asynq.Client
	opts   Options
}

func NewClient(redisOpt asynq.RedisClientOpt, opts Options) *Client {
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Client{
		client: asynq.NewClient(redisOpt),
		opts:   opts,
	}
}

// EnqueueNormalizeImage schedules one job. The job ID doubles as the task ID
// so a job cannot be queued twice while a task for it is retained.
func (c *Client) EnqueueNormalizeImage(ctx context.Context, payload NormalizeImagePayload) (*asynq.TaskInfo, error) {
	task, err := NewNormalizeImageTask(payload)
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.opts.Queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(c.opts.MaxRetry),
		asynq.Timeout(c.opts.Timeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, ErrAlreadyQueued
	}
	return info, err
}

// EnqueueWebhook schedules a redelivery of one job event. At most one task
// per job and event is retained.
func (c *Client) EnqueueWebhook(ctx context.Context, payload DeliverWebhookPayload) (*asynq.TaskInfo, error) {
	task, err := NewDeliverWebhookTask(payload)
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.opts.Queue),
		asynq.TaskID(payload.JobID+":"+payload.Event),
		asynq.MaxRetry(c.opts.MaxRetry),
		asynq.Timeout(c.opts.Timeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, ErrAlreadyQueued
	}
	return info, err
}

func (c *Client) Close() error {
	return c.client.Close()
}
