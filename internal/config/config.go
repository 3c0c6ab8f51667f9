package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Profiles  ProfileConfig
	Normalize NormalizeConfig
	Log       LogConfig
	Tracing   TracingConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
}

type APIConfig struct {
	Addr string
	// MaxUploadBytes bounds the body of synchronous normalize requests.
	MaxUploadBytes int64
	UploadURLTTL   time.Duration
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
	MaxRetry      int
	TaskTimeout   time.Duration
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency    int
	MaxActiveJobs  int
	LocalOutputDir string
	MetricsAddr    string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL, when set, is used to build golden-record URLs instead
	// of presigned GET links.
	PublicBaseURL  string
	PublishPrefix  string
	PresignGetTTL  time.Duration
	EnsureBucket   bool
	PublicReadable bool
}

type DatabaseConfig struct {
	DSN string
}

type ProfileConfig struct {
	CMYKPath string
	RGBPath  string
	Intent   string
}

type NormalizeConfig struct {
	TargetWidth          int
	TargetHeight         int
	Quality              int
	ForceWhiteBackground bool
	MinWidth             int
	MinHeight            int
	// MaxTargetPixels caps the golden record canvas of any single job.
	MaxTargetPixels int
	// MaxSourcePixels caps the declared size of a source before decoding.
	MaxSourcePixels int
}

type LogConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled     bool
	Exporter    string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type RateLimitConfig struct {
	Enabled  bool
	Capacity int
	Refill   float64
	Prefix   string
}

type WebhookConfig struct {
	Secret     string
	Timeout    time.Duration
	MaxRetries int
}

func Load() Config {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	return Config{
		API: APIConfig{
			Addr:           env("PIM_API_ADDR", ":8080"),
			MaxUploadBytes: int64(envInt("PIM_API_MAX_UPLOAD_BYTES", 64<<20)),
			UploadURLTTL:   envDuration("PIM_API_UPLOAD_URL_TTL", 15*time.Minute),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
			MaxRetry:      envInt("ASYNC_MAX_RETRY", 5),
			TaskTimeout:   envDuration("ASYNC_TASK_TIMEOUT", 2*time.Minute),
		},
		Worker: WorkerConfig{
			Concurrency:    envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveJobs:  envInt("WORKER_MAX_ACTIVE_JOBS", defaultWorkerSlots),
			LocalOutputDir: env("WORKER_LOCAL_OUTPUT_DIR", "./.pim-output"),
			MetricsAddr:    env("WORKER_METRICS_ADDR", ":9091"),
		},
		Storage: StorageConfig{
			Endpoint:       env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:      env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:      env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:         env("MINIO_BUCKET", "pim-assets"),
			UseSSL:         envBool("MINIO_USE_SSL", false),
			PublicBaseURL:  env("PIM_PUBLIC_BASE_URL", ""),
			PublishPrefix:  env("PIM_PUBLISH_PREFIX", "golden"),
			PresignGetTTL:  envDuration("PIM_PRESIGN_GET_TTL", 7*24*time.Hour),
			EnsureBucket:   envBool("MINIO_ENSURE_BUCKET", true),
			PublicReadable: envBool("PIM_PUBLIC_READABLE", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Profiles: ProfileConfig{
			CMYKPath: env("PIM_CMYK_PROFILE", "./profiles/USWebCoatedSWOP.icc"),
			RGBPath:  env("PIM_RGB_PROFILE", ""),
			Intent:   env("PIM_RENDERING_INTENT", "perceptual"),
		},
		Normalize: NormalizeConfig{
			TargetWidth:          envInt("PIM_TARGET_WIDTH", 2500),
			TargetHeight:         envInt("PIM_TARGET_HEIGHT", 2500),
			Quality:              envInt("PIM_JPEG_QUALITY", 92),
			ForceWhiteBackground: envBool("PIM_FORCE_WHITE_BACKGROUND", true),
			MinWidth:             envInt("PIM_MIN_WIDTH", 1000),
			MinHeight:            envInt("PIM_MIN_HEIGHT", 1000),
			MaxTargetPixels:      envInt("PIM_MAX_TARGET_PIXELS", 64_000_000),
			MaxSourcePixels:      envInt("PIM_MAX_SOURCE_PIXELS", 100_000_000),
		},
		Log: LogConfig{
			Level:  env("PIM_LOG_LEVEL", "info"),
			Format: env("PIM_LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:     envBool("OTEL_TRACING_ENABLED", false),
			Exporter:    env("OTEL_TRACES_EXPORTER", "otlp"),
			Endpoint:    env("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio: envFloat("OTEL_TRACES_SAMPLER_RATIO", 1),
		},
		RateLimit: RateLimitConfig{
			Enabled:  envBool("PIM_RATE_LIMIT_ENABLED", true),
			Capacity: envInt("PIM_RATE_LIMIT_CAPACITY", 30),
			Refill:   envFloat("PIM_RATE_LIMIT_REFILL_PER_SEC", 1),
			Prefix:   env("PIM_RATE_LIMIT_PREFIX", "pim:ratelimit"),
		},
		Webhook: WebhookConfig{
			Secret:     env("PIM_WEBHOOK_SECRET", ""),
			Timeout:    envDuration("PIM_WEBHOOK_TIMEOUT", 5*time.Second),
			MaxRetries: envInt("PIM_WEBHOOK_MAX_RETRIES", 3),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
