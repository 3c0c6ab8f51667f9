package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcdoradca/PIM/internal/domain"
	"github.com/mcdoradca/PIM/internal/id"
	"github.com/mcdoradca/PIM/internal/normalize"
	"github.com/mcdoradca/PIM/internal/queue"
	"github.com/mcdoradca/PIM/internal/store"
)

const defaultMaxUploadBytes = 64 << 20

type Server struct {
	logger          logrus.FieldLogger
	queueClient     queueEnqueuer
	jobStore        store.JobStore
	storage         objectStorage
	normalizer      *normalize.Normalizer
	defaults        normalize.Spec
	presignTTL      time.Duration
	maxUploadBytes  int64
	maxSourcePixels int64
	rateLimiter     RateLimiter
	metrics         *metrics
	tracer          trace.Tracer
	mux             *http.ServeMux
	handler         http.Handler
}

type queueEnqueuer interface {
	EnqueueNormalizeImage(ctx context.Context, payload queue.NormalizeImagePayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type Options struct {
	Queue       queueEnqueuer
	JobStore    store.JobStore
	Storage     objectStorage
	Normalizer  *normalize.Normalizer
	Defaults    normalize.Spec
	RateLimiter RateLimiter
	PresignTTL  time.Duration
	// MaxUploadBytes bounds image bodies on the synchronous endpoints.
	MaxUploadBytes int64
	// MaxSourcePixels bounds the declared dimensions of a synchronous upload.
	MaxSourcePixels int64
}

func NewServer(logger logrus.FieldLogger, opts Options) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.MaxSourcePixels <= 0 {
		opts.MaxSourcePixels = normalize.DefaultMaxSourcePixels
	}
	if opts.Storage == nil {
		opts.Storage = unavailableObjectStorage{}
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.NewNormalizer(logger, nil)
	}
	if opts.Defaults == (normalize.Spec{}) {
		opts.Defaults = normalize.DefaultSpec()
	}

	s := &Server{
		logger:          logger.WithField("component", "api"),
		queueClient:     opts.Queue,
		jobStore:        opts.JobStore,
		storage:         opts.Storage,
		normalizer:      opts.Normalizer,
		defaults:        opts.Defaults,
		presignTTL:      opts.PresignTTL,
		maxUploadBytes:  opts.MaxUploadBytes,
		maxSourcePixels: opts.MaxSourcePixels,
		rateLimiter:     opts.RateLimiter,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("pim/api"),
		mux:             http.NewServeMux(),
	}
	s.routes()
	s.handler = s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("POST /v1/jobs/{id}/start", s.handleStartJob)
	s.mux.HandleFunc("POST /v1/quality-check", s.handleQualityCheck)
	s.mux.HandleFunc("POST /v1/normalize", s.handleNormalize)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type jobResponse struct {
	JobID         string                      `json:"job_id"`
	SKU           string                      `json:"sku"`
	EAN           string                      `json:"ean,omitempty"`
	Status        string                      `json:"status"`
	SourceType    string                      `json:"source_type"`
	ObjectKey     string                      `json:"object_key"`
	Options       domain.NormalizationOptions `json:"options"`
	OutputKey     string                      `json:"output_key,omitempty"`
	PublicURL     string                      `json:"public_url,omitempty"`
	ContentID     string                      `json:"content_id,omitempty"`
	FailureReason string                      `json:"failure_reason,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

func newJobResponse(job domain.Job) jobResponse {
	return jobResponse{
		JobID:         job.ID,
		SKU:           job.SKU,
		EAN:           job.EAN,
		Status:        job.Status,
		SourceType:    job.SourceType,
		ObjectKey:     job.ObjectKey,
		Options:       job.Options,
		OutputKey:     job.OutputKey,
		PublicURL:     job.PublicURL,
		ContentID:     job.ContentID,
		FailureReason: job.FailureReason,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	jobID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""
	log := s.logger.WithFields(logrus.Fields{"job_id": jobID, "sku": req.SKU})

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = fmt.Sprintf("uploads/%s/source", jobID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			log.WithError(err).Error("generate presigned url failed")
			writeError(w, http.StatusInternalServerError, "failed to generate upload URL")
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.Job{
		ID:         jobID,
		SKU:        strings.TrimSpace(req.SKU),
		EAN:        strings.TrimSpace(req.EAN),
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		WebhookURL: req.WebhookURL,
		ObjectKey:  objectKey,
		Options:    req.Options,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		log.WithError(err).Error("create job failed")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"sku":    job.SKU,
		"status": job.Status,
		"upload": map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url": fmt.Sprintf("/v1/jobs/%s/start", job.ID),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	log := s.logger.WithFields(logrus.Fields{"job_id": job.ID, "sku": job.SKU})

	if job.Finished() {
		writeError(w, http.StatusConflict, fmt.Sprintf("job already %s", job.Status))
		return
	}
	if err := s.verifySourceExists(r.Context(), job); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	taskInfo, err := s.queueClient.EnqueueNormalizeImage(r.Context(), queue.PayloadFromJob(job))
	if errors.Is(err, queue.ErrAlreadyQueued) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		log.WithError(err).Error("enqueue failed")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		log.WithError(err).Warn("update status failed")
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (domain.Job, bool) {
	jobID := strings.TrimSpace(r.PathValue("id"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return domain.Job{}, false
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.WithField("job_id", jobID).WithError(err).Error("fetch job failed")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return domain.Job{}, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return domain.Job{}, false
	}
	return job, true
}

func (s *Server) verifySourceExists(ctx context.Context, job domain.Job) error {
	switch job.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := os.Stat(job.ObjectKey); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source object is missing: %s", job.ObjectKey)
			}
			return fmt.Errorf("source object check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, job.ObjectKey)
		if err != nil {
			return fmt.Errorf("source object check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source object is missing: %s", job.ObjectKey)
		}
		return nil
	}
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
