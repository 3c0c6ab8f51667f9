package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mcdoradca/PIM/internal/api"
	"github.com/mcdoradca/PIM/internal/bootstrap"
	"github.com/mcdoradca/PIM/internal/config"
	"github.com/mcdoradca/PIM/internal/logging"
	"github.com/mcdoradca/PIM/internal/normalize"
	"github.com/mcdoradca/PIM/internal/queue"
	"github.com/mcdoradca/PIM/internal/ratelimit"
	"github.com/mcdoradca/PIM/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New("pim-api", logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		logrus.WithError(err).Fatal("configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := bootstrap.SetupTracing(ctx, cfg.Tracing, "pim-api", logger)
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
	defaults := bootstrap.DefaultSpec(cfg.Normalize)
	if err := defaults.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid normalization defaults")
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

	jobStore, closeStore, err := bootstrap.OpenJobStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("open job store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithError(err).Warn("job store close failed")
		}
	}()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), queue.Options{
		Queue:    cfg.Queue.Name,
		MaxRetry: cfg.Queue.MaxRetry,
		Timeout:  cfg.Queue.TaskTimeout,
	})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.WithError(err).Warn("queue client close failed")
		}
	}()

	opts := api.Options{
		Queue:           queueClient,
		JobStore:        jobStore,
		Storage:         storageClient,
		Normalizer:      normalizer,
		Defaults:        defaults,
		PresignTTL:      cfg.API.UploadURLTTL,
		MaxUploadBytes:  cfg.API.MaxUploadBytes,
		MaxSourcePixels: int64(cfg.Normalize.MaxSourcePixels),
	}

	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, ratelimit.Limits{
			Capacity:        cfg.RateLimit.Capacity,
			RefillPerSecond: cfg.RateLimit.Refill,
			KeyPrefix:       cfg.RateLimit.Prefix,
		})
		if err != nil {
			logger.WithError(err).Fatal("configure rate limiter")
		}
		opts.RateLimiter = limiter
	}

	app := api.NewServer(logger, opts)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.API.Addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
}
