package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcdoradca/PIM/internal/config"
	"github.com/mcdoradca/PIM/internal/domain"
	"github.com/mcdoradca/PIM/internal/normalize"
	"github.com/mcdoradca/PIM/internal/pipeline"
	"github.com/mcdoradca/PIM/internal/queue"
	"github.com/mcdoradca/PIM/internal/storage"
	"github.com/mcdoradca/PIM/internal/store"
	"github.com/mcdoradca/PIM/internal/webhook"
)

const failureReasonProcessing = "image processing failed due to technical error"

type Server struct {
	logger          logrus.FieldLogger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  *pipeline.Processor
	objectProcessor *pipeline.Processor
	defaults        normalize.Spec
	webhookClient   webhookSender
	redelivery      webhookEnqueuer
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

// webhookEnqueuer schedules a failed job event as its own retried task.
type webhookEnqueuer interface {
	EnqueueWebhook(ctx context.Context, payload queue.DeliverWebhookPayload) (*asynq.TaskInfo, error)
}

type Dependencies struct {
	Storage *storage.Client
	Webhook *webhook.Client
	// WebhookQueue receives redeliveries; without it a failed event is dropped.
	WebhookQueue *queue.Client
	JobStore   store.JobStore
	UsageStore store.UsageStore
	Normalizer *normalize.Normalizer
	// Defaults apply before per-job overrides.
	Defaults     normalize.Spec
	OutputPrefix string
}

func NewServer(logger logrus.FieldLogger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Dependencies) (*Server, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if deps.Normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if err := deps.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default normalization spec: %w", err)
	}

	usageStore := deps.UsageStore
	if usageStore == nil {
		if jobAndUsageStore, ok := deps.JobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	localProcessor := pipeline.NewLocalProcessor(workerCfg.LocalOutputDir, deps.Normalizer)
	objectProcessor := pipeline.NewProcessor(
		pipeline.ObjectStoreFetcher{Storage: deps.Storage},
		deps.Normalizer,
		pipeline.ObjectStoreEmitter{Storage: deps.Storage, OutputPrefix: deps.OutputPrefix},
	)

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				Logger:   logger,
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.WithFields(logrus.Fields{
						"type":      task.Type(),
						"retry":     retried,
						"max_retry": maxRetry,
					}).WithError(err).Error("task failed")
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		localProcessor:  localProcessor,
		objectProcessor: objectProcessor,
		defaults:        deps.Defaults,
		jobStore:        deps.JobStore,
		usageStore:      usageStore,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("pim/worker"),
	}
	if deps.Webhook != nil {
		s.webhookClient = deps.Webhook
	}
	if deps.WebhookQueue != nil {
		s.redelivery = deps.WebhookQueue
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeNormalizeImage, s.handleNormalizeImage)
	mux.HandleFunc(queue.TypeDeliverWebhook, s.handleDeliverWebhook)
	return s.server.Run(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleNormalizeImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseNormalizeImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.normalize_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.sku", payload.SKU),
		attribute.String("job.source_type", payload.SourceType),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	log := s.logger.WithFields(logrus.Fields{
		"job_id":      payload.JobID,
		"sku":         payload.SKU,
		"source_type": payload.SourceType,
	})
	log.WithField("object_key", payload.ObjectKey).Info("normalizing")

	s.updateJobStatus(ctx, log, payload.JobID, domain.JobStatusProcessing)

	spec := pipeline.SpecFromOptions(s.defaults, payload.Options)
	request := pipeline.Request{
		JobID:      payload.JobID,
		SKU:        payload.SKU,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		Spec:       spec,
	}
	processor := s.processorFor(payload.SourceType)

	source, err := processor.Fetch(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		s.finishFailed(ctx, log, payload, err.Error())
		if errors.Is(err, pipeline.ErrUnsupportedSourceType) {
			return fmt.Errorf("fetch source: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("fetch source: %w", err)
	}

	if payload.Options.EnforceQualityGate {
		probe, err := normalize.ProbeImage(source)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "unreadable source")
			s.finishFailed(ctx, log, payload, failureReasonProcessing)
			log.WithError(err).Error("quality gate could not read source")
			return fmt.Errorf("probe source: %v: %w", err, asynq.SkipRetry)
		}
		if !normalize.ValidateSize(log, probe.Size, spec.MinResolution) {
			outcome = domain.JobStatusRejected
			reason := fmt.Sprintf("image %s is below the minimum resolution %s", probe.Size, spec.MinResolution)
			s.complete(ctx, log, payload.JobID, store.JobOutcome{Status: domain.JobStatusRejected, FailureReason: reason})
			span.SetStatus(codes.Ok, "rejected by quality gate")
			s.dispatchWebhook(ctx, log, payload, webhook.EventJobRejected, webhook.JobEvent{
				JobID:     payload.JobID,
				SKU:       payload.SKU,
				EAN:       payload.EAN,
				Status:    domain.JobStatusRejected,
				Reason:    reason,
				Timestamp: time.Now().UTC(),
			})
			return nil
		}
	}

	result, err := processor.ProcessBytes(ctx, request, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		if errors.Is(err, normalize.ErrProcessing) || errors.Is(err, normalize.ErrInvalidSpec) {
			s.finishFailed(ctx, log, payload, failureReasonProcessing)
			return fmt.Errorf("run pipeline: %v: %w", err, asynq.SkipRetry)
		}
		s.finishFailed(ctx, log, payload, err.Error())
		return fmt.Errorf("run pipeline: %w", err)
	}

	if result.Output.Updated {
		s.metrics.goldenRecordsTotal.WithLabelValues("updated").Inc()
	} else {
		s.metrics.goldenRecordsTotal.WithLabelValues("created").Inc()
	}
	log.WithFields(logrus.Fields{
		"output":  result.Output.Path,
		"bytes":   result.Output.Bytes,
		"updated": result.Output.Updated,
	}).Info("golden record published")

	s.complete(ctx, log, payload.JobID, store.JobOutcome{
		Status:    domain.JobStatusSucceeded,
		OutputKey: result.Output.Path,
		PublicURL: result.Output.URL,
		ContentID: result.Output.ContentID,
	})
	s.recordUsage(ctx, log, payload, result, time.Since(startedAt))

	// The outcome is stored. Delivery failures must not re-run the job.
	s.dispatchWebhook(ctx, log, payload, webhook.EventJobSucceeded, webhook.JobEvent{
		JobID:     payload.JobID,
		SKU:       payload.SKU,
		EAN:       payload.EAN,
		Status:    domain.JobStatusSucceeded,
		PublicURL: result.Output.URL,
		ContentID: result.Output.ContentID,
		Timestamp: time.Now().UTC(),
	})

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "normalized")
	return nil
}

// handleDeliverWebhook retries a single job event. A send failure is returned
// as is so asynq backs off and tries again.
func (s *Server) handleDeliverWebhook(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseDeliverWebhookPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	if s.webhookClient == nil {
		return fmt.Errorf("webhook client not configured: %w", asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.deliver_webhook", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("webhook.event", payload.Event),
	)
	defer span.End()

	if err := s.webhookClient.Send(ctx, payload.Endpoint, payload.Event, payload.Body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook redelivery failed")
		return fmt.Errorf("redeliver webhook: %w", err)
	}
	s.metrics.webhookDeliveries.WithLabelValues("delivered").Inc()
	s.logger.WithFields(logrus.Fields{
		"job_id": payload.JobID,
		"event":  payload.Event,
	}).Info("webhook redelivered")
	return nil
}

func (s *Server) processorFor(sourceType string) *pipeline.Processor {
	if sourceType == domain.SourceTypeLocalFile {
		return s.localProcessor
	}
	return s.objectProcessor
}

func (s *Server) finishFailed(ctx context.Context, log logrus.FieldLogger, payload queue.NormalizeImagePayload, reason string) {
	s.complete(ctx, log, payload.JobID, store.JobOutcome{Status: domain.JobStatusFailed, FailureReason: reason})
	s.dispatchWebhook(ctx, log, payload, webhook.EventJobFailed, webhook.JobEvent{
		JobID:     payload.JobID,
		SKU:       payload.SKU,
		EAN:       payload.EAN,
		Status:    domain.JobStatusFailed,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) updateJobStatus(ctx context.Context, log logrus.FieldLogger, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		log.WithError(err).WithField("status", status).Warn("job status update failed")
	}
}

func (s *Server) complete(ctx context.Context, log logrus.FieldLogger, jobID string, outcome store.JobOutcome) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.Complete(ctx, jobID, outcome); err != nil {
		log.WithError(err).WithField("status", outcome.Status).Warn("job completion update failed")
	}
}

// dispatchWebhook makes one delivery attempt inline and queues a redelivery
// task when it fails.
func (s *Server) dispatchWebhook(ctx context.Context, log logrus.FieldLogger, payload queue.NormalizeImagePayload, event string, body webhook.JobEvent) {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return
	}

	err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body)
	if err == nil {
		s.metrics.webhookDeliveries.WithLabelValues("delivered").Inc()
		return
	}
	log = log.WithField("event", event)
	log.WithError(err).Warn("webhook delivery failed")

	if s.redelivery == nil {
		s.metrics.webhookDeliveries.WithLabelValues("dropped").Inc()
		return
	}
	_, err = s.redelivery.EnqueueWebhook(ctx, queue.DeliverWebhookPayload{
		JobID:    payload.JobID,
		Endpoint: payload.WebhookURL,
		Event:    event,
		Body:     body,
	})
	if err != nil && !errors.Is(err, queue.ErrAlreadyQueued) {
		s.metrics.webhookDeliveries.WithLabelValues("dropped").Inc()
		log.WithError(err).Error("webhook redelivery could not be queued")
		return
	}
	s.metrics.webhookDeliveries.WithLabelValues("queued").Inc()
}

func (s *Server) recordUsage(ctx context.Context, log logrus.FieldLogger, payload queue.NormalizeImagePayload, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	computeTimeMS := max(computeDuration.Milliseconds(), 1)
	usage := domain.UsageLog{
		JobID:           payload.JobID,
		SKU:             payload.SKU,
		PixelsProcessed: int64(result.SourceSize.Width) * int64(result.SourceSize.Height),
		BytesIn:         int64(result.SourceBytes),
		BytesOut:        int64(result.Output.Bytes),
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.RecordUsage(ctx, usage); err != nil {
		log.WithError(err).Warn("usage log write failed")
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(usage.PixelsProcessed))
	s.metrics.bytesInTotal.Add(float64(usage.BytesIn))
	s.metrics.bytesOutTotal.Add(float64(usage.BytesOut))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}
