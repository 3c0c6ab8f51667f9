// Package bootstrap turns a loaded Config into the shared runtime pieces the
// binaries need: the default spec, the normalizer with its press profile,
// the job store and tracing.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mcdoradca/PIM/internal/config"
	"github.com/mcdoradca/PIM/internal/icc"
	"github.com/mcdoradca/PIM/internal/normalize"
	"github.com/mcdoradca/PIM/internal/store"
	"github.com/mcdoradca/PIM/internal/telemetry"
)

// JobStore is the persistence surface shared by the API and the worker.
type JobStore interface {
	store.JobStore
	store.UsageStore
}

// DefaultSpec maps the configured normalization defaults onto a Spec.
func DefaultSpec(cfg config.NormalizeConfig) normalize.Spec {
	spec := normalize.DefaultSpec()
	spec.TargetSize = normalize.Size{Width: cfg.TargetWidth, Height: cfg.TargetHeight}
	spec.Quality = cfg.Quality
	spec.ForceWhiteBackground = cfg.ForceWhiteBackground
	spec.MinResolution = normalize.Size{Width: cfg.MinWidth, Height: cfg.MinHeight}
	spec.MaxTargetPixels = int64(cfg.MaxTargetPixels)
	return spec
}

// NewNormalizer loads the shared CMYK transform. A missing or unreadable
// profile is logged and the service starts anyway; CMYK sources then fail
// with a color profile error.
func NewNormalizer(cfg config.ProfileConfig, logger logrus.FieldLogger, opts ...normalize.Option) (*normalize.Normalizer, error) {
	intent, err := icc.ParseIntent(cfg.Intent)
	if err != nil {
		return nil, err
	}

	var transform *icc.Transform
	if cfg.CMYKPath != "" {
		transform, err = icc.SharedTransform(cfg.CMYKPath, cfg.RGBPath, intent)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"profile": cfg.CMYKPath,
				"intent":  intent.String(),
			}).WithError(err).Warn("cmyk profile unavailable, cmyk sources will be rejected")
			transform = nil
		} else {
			logger.WithField("transform", transform.String()).Info("loaded cmyk transform")
		}
	}
	return normalize.NewNormalizer(logger, transform, opts...), nil
}

// OpenJobStore returns Postgres when a DSN is configured and the in-memory
// store otherwise. The returned close func is never nil.
func OpenJobStore(ctx context.Context, cfg config.DatabaseConfig, logger logrus.FieldLogger) (JobStore, func() error, error) {
	if cfg.DSN == "" {
		logger.Warn("POSTGRES_DSN not set, jobs are kept in memory")
		return store.NewMemoryJobStore(), func() error { return nil }, nil
	}

	pg, err := store.NewPostgresJobStore(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return pg, pg.Close, nil
}

func SetupTracing(ctx context.Context, cfg config.TracingConfig, service string, logger logrus.FieldLogger) (telemetry.ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	return telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  service,
		Exporter:     cfg.Exporter,
		OTLPEndpoint: cfg.Endpoint,
		OTLPInsecure: cfg.Insecure,
		SampleRatio:  cfg.SampleRatio,
	}, logger)
}
