package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mcdoradca/PIM/internal/bootstrap"
	"github.com/mcdoradca/PIM/internal/config"
	"github.com/mcdoradca/PIM/internal/logging"
	"github.com/mcdoradca/PIM/internal/normalize"
	"github.com/mcdoradca/PIM/internal/queue"
	"github.com/mcdoradca/PIM/internal/storage"
	"github.com/mcdoradca/PIM/internal/webhook"
	"github.com/mcdoradca/PIM/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New("pim-worker", logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		logrus.WithError(err).Fatal("configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := bootstrap.SetupTracing(ctx, cfg.Tracing, "pim-worker", logger)
	if err != nil {
		logger.WithError(err).Fatal("configure tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	if err := normalize.Startup(); err != nil {
		logger.WithError(err).Fatal("start image runtime")
	}
	defer normalize.Shutdown()

	normalizer, err := bootstrap.NewNormalizer(cfg.Profiles, logger, normalize.WithMaxSourcePixels(int64(cfg.Normalize.MaxSourcePixels)))
	if err != nil {
		logger.WithError(err).Fatal("configure normalizer")
	}

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint:      cfg.Storage.Endpoint,
		Access:        cfg.Storage.AccessKey,
		Secret:        cfg.Storage.SecretKey,
		Bucket:        cfg.Storage.Bucket,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		PresignGetTTL: cfg.Storage.PresignGetTTL,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("configure storage")
	}
	if cfg.Storage.EnsureBucket {
		if err := storageClient.EnsureBucket(ctx); err != nil {
			logger.WithError(err).Fatal("ensure bucket")
		}
	}
	if cfg.Storage.PublicReadable {
		if err := storageClient.AllowPublicRead(ctx, cfg.Storage.PublishPrefix); err != nil {
			logger.WithError(err).Fatal("set public read policy")
		}
	}

	jobStore, closeStore, err := bootstrap.OpenJobStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("open job store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithError(err).Warn("job store close failed")
		}
	}()

	webhookQueue := queue.NewClient(cfg.Queue.RedisClientOpt(), queue.Options{
		Queue:    cfg.Queue.Name,
		MaxRetry: cfg.Queue.MaxRetry,
		Timeout:  cfg.Queue.TaskTimeout,
	})
	defer func() {
		if err := webhookQueue.Close(); err != nil {
			logger.WithError(err).Warn("webhook queue close failed")
		}
	}()

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, worker.Dependencies{
		Storage:      storageClient,
		WebhookQueue: webhookQueue,
		Webhook: webhook.NewClient(webhook.Config{
			SigningSecret: cfg.Webhook.Secret,
			Timeout:       cfg.Webhook.Timeout,
			MaxAttempts:   cfg.Webhook.MaxRetries + 1,
		}),
		JobStore:     jobStore,
		UsageStore:   jobStore,
		Normalizer:   normalizer,
		Defaults:     bootstrap.DefaultSpec(cfg.Normalize),
		OutputPrefix: cfg.Storage.PublishPrefix,
	})
	if err != nil {
		logger.WithError(err).Fatal("configure worker")
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.WithField("addr", cfg.Worker.MetricsAddr).Info("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server failed")
		}
	}()

	logger.WithFields(logrus.Fields{
		"concurrency":     cfg.Worker.Concurrency,
		"max_active_jobs": cfg.Worker.MaxActiveJobs,
		"queue":           cfg.Queue.Name,
		"redis":           cfg.Queue.RedisAddr,
	}).Info("starting worker")

	// Run blocks until asynq sees SIGTERM or SIGINT.
	if err := srv.Run(); err != nil {
		logger.WithError(err).Error("worker failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("metrics shutdown failed")
	}
}
