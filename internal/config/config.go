package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/ledger"
	"github.com/abdul-hamid-achik/vodcoach/internal/storage"
	"github.com/joho/godotenv"
)

const (
	QueueUploads    = "uploads"
	QueueModeration = "moderation"
	QueueTranscode  = "transcode"
	QueueBilling    = "billing"
	QueueScheduled  = "scheduled"
)

// QueueNames lists the logical queues in boot order.
var QueueNames = []string{QueueUploads, QueueModeration, QueueTranscode, QueueBilling, QueueScheduled}

type Config struct {
	Environment string
	LogLevel    string
	InstanceID  string

	DatabaseURL string
	RedisURL    string

	AWSRegion string

	StorageBackend string
	Bucket         string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool

	QueueBackend   string
	AMQPURL        string
	AMQPRetryDelay time.Duration
	QueueURLs      map[string]string

	PollWait          time.Duration
	PollBatchSize     int
	SkipCooldown      time.Duration
	ErrorCooldown     time.Duration
	HandlerTimeout    time.Duration
	LedgerTTL         time.Duration
	LedgerPendingTTL  time.Duration
	SupervisorBackoff time.Duration

	// Recordings still created after ExpiryMaxAge are expired by cmd/cleanup.
	ExpiryMaxAge    time.Duration
	ExpiryBatchSize int

	// Stripe configuration
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration

	// Moderation / transcoding collaborators
	ModerationMinConfidence float64
	ModerationSNSTopicARN   string
	ModerationRoleARN       string
	MediaConvertRoleARN     string
	MediaConvertEndpoint    string
	ImageProcessorFunction  string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	MetricsPort  string
	OTLPEndpoint string
	TraceEnabled bool
	TraceSample  float64
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.InstanceID = os.Getenv("INSTANCE_ID")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.RedisURL = getEnvString("REDIS_URL", "redis://localhost:6379/0")

	cfg.AWSRegion = getEnvString("AWS_REGION", "us-east-1")

	cfg.StorageBackend = getEnvString("STORAGE_BACKEND", "s3")
	cfg.Bucket = os.Getenv("S3_BUCKET")
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required")
	}

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)

	cfg.QueueBackend = getEnvString("QUEUE_BACKEND", "sqs")
	cfg.AMQPURL = os.Getenv("AMQP_URL")
	cfg.AMQPRetryDelay, err = getEnvDuration("AMQP_RETRY_DELAY", "30s")
	if err != nil {
		return nil, fmt.Errorf("invalid AMQP_RETRY_DELAY: %w", err)
	}
	cfg.QueueURLs = make(map[string]string, len(QueueNames))
	for _, name := range QueueNames {
		if url := os.Getenv("QUEUE_URL_" + strings.ToUpper(name)); url != "" {
			cfg.QueueURLs[name] = url
		}
	}

	cfg.PollWait, err = getEnvDuration("POLL_WAIT", "20s")
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_WAIT: %w", err)
	}
	cfg.PollBatchSize = getEnvInt("POLL_BATCH_SIZE", 10)
	cfg.SkipCooldown, err = getEnvDuration("POLL_SKIP_COOLDOWN", "1s")
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_SKIP_COOLDOWN: %w", err)
	}
	cfg.ErrorCooldown, err = getEnvDuration("POLL_ERROR_COOLDOWN", "5s")
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_ERROR_COOLDOWN: %w", err)
	}
	cfg.HandlerTimeout, err = getEnvDuration("HANDLER_TIMEOUT", "5m")
	if err != nil {
		return nil, fmt.Errorf("invalid HANDLER_TIMEOUT: %w", err)
	}
	cfg.LedgerTTL, err = getEnvDuration("LEDGER_TTL", "24h")
	if err != nil {
		return nil, fmt.Errorf("invalid LEDGER_TTL: %w", err)
	}
	cfg.LedgerPendingTTL, err = getEnvDuration("LEDGER_PENDING_TTL", "10m")
	if err != nil {
		return nil, fmt.Errorf("invalid LEDGER_PENDING_TTL: %w", err)
	}
	cfg.SupervisorBackoff, err = getEnvDuration("SUPERVISOR_BACKOFF", "15s")
	if err != nil {
		return nil, fmt.Errorf("invalid SUPERVISOR_BACKOFF: %w", err)
	}

	cfg.ExpiryMaxAge, err = getEnvDuration("EXPIRY_MAX_AGE", "24h")
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRY_MAX_AGE: %w", err)
	}
	cfg.ExpiryBatchSize = getEnvInt("EXPIRY_BATCH_SIZE", 500)

	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.StripeWebhookTolerance, err = getEnvDuration("STRIPE_WEBHOOK_TOLERANCE", "0s")
	if err != nil {
		return nil, fmt.Errorf("invalid STRIPE_WEBHOOK_TOLERANCE: %w", err)
	}

	cfg.ModerationMinConfidence = getEnvFloat("MODERATION_MIN_CONFIDENCE", 60)
	cfg.ModerationSNSTopicARN = os.Getenv("MODERATION_SNS_TOPIC_ARN")
	cfg.ModerationRoleARN = os.Getenv("MODERATION_ROLE_ARN")
	cfg.MediaConvertRoleARN = os.Getenv("MEDIACONVERT_ROLE_ARN")
	cfg.MediaConvertEndpoint = os.Getenv("MEDIACONVERT_ENDPOINT")
	cfg.ImageProcessorFunction = getEnvString("IMAGE_PROCESSOR_FUNCTION", "avatar-processor")

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")

	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.OTLPEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	cfg.TraceEnabled = getEnvBool("OTEL_ENABLED", false)
	cfg.TraceSample = getEnvFloat("OTEL_SAMPLE_RATE", 1.0)

	return cfg, nil
}

// StorageConfig is the object storage section of the configuration.
func (c *Config) StorageConfig() *storage.Config {
	return &storage.Config{
		Backend:   c.StorageBackend,
		Endpoint:  c.MinIOEndpoint,
		AccessKey: c.MinIOAccessKey,
		SecretKey: c.MinIOSecretKey,
		Bucket:    c.Bucket,
		UseSSL:    c.MinIOUseSSL,
		Region:    c.AWSRegion,
	}
}

// ProcessorConfig configures the avatar processor function, which needs only
// object storage.
type ProcessorConfig struct {
	Environment  string
	LogLevel     string
	AWSRegion    string
	MaxFileSize  int64
	MaxDimension int
	Storage      *storage.Config
}

func LoadProcessor() (*ProcessorConfig, error) {
	_ = godotenv.Load()

	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required")
	}
	region := getEnvString("AWS_REGION", "us-east-1")

	cfg := &ProcessorConfig{
		Environment:  getEnvString("ENVIRONMENT", "development"),
		LogLevel:     getEnvString("LOG_LEVEL", "info"),
		AWSRegion:    region,
		MaxFileSize:  int64(getEnvInt("AVATAR_MAX_FILE_SIZE", 20*1024*1024)),
		MaxDimension: getEnvInt("AVATAR_MAX_DIMENSION", 8192),
		Storage: &storage.Config{
			Backend:   getEnvString("STORAGE_BACKEND", "s3"),
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    bucket,
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			Region:    region,
		},
	}
	if cfg.Storage.Backend == "minio" && cfg.Storage.Endpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required for the minio storage backend")
	}
	return cfg, nil
}

// IsProduction reports whether ignorable handler failures must be escalated.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Environment) {
	case "production", "prod":
		return true
	}
	return false
}

// QueueURL returns the transport address of a logical queue.
func (c *Config) QueueURL(name string) (string, bool) {
	url, ok := c.QueueURLs[name]
	return url, ok
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "s3":
	case "minio":
		if c.MinIOEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required for the minio storage backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %q", c.StorageBackend)
	}

	switch c.QueueBackend {
	case "sqs":
	case "amqp":
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required for the amqp queue backend")
		}
	default:
		return fmt.Errorf("invalid queue backend: %q", c.QueueBackend)
	}

	if len(c.QueueURLs) == 0 {
		return fmt.Errorf("at least one QUEUE_URL_<NAME> is required")
	}

	if c.PollBatchSize < 1 || c.PollBatchSize > 10 {
		return fmt.Errorf("invalid poll batch size: %d", c.PollBatchSize)
	}

	if c.PollWait < 0 || c.PollWait > 20*time.Second {
		return fmt.Errorf("invalid poll wait: %s", c.PollWait)
	}

	// A pending claim must outlive the attempt holding it.
	if c.HandlerTimeout > 0 && c.LedgerPendingTTL <= c.HandlerTimeout {
		return fmt.Errorf("LEDGER_PENDING_TTL (%s) must exceed HANDLER_TIMEOUT (%s)", c.LedgerPendingTTL, c.HandlerTimeout)
	}

	if _, ok := c.QueueURLs[QueueBilling]; ok && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when the billing queue is configured")
	}

	return nil
}

// LedgerTTLs is the claim lifetime policy shared by the worker and pipelinectl.
func (c *Config) LedgerTTLs() ledger.TTLs {
	return ledger.TTLs{Pending: c.LedgerPendingTTL, Done: c.LedgerTTL}
}
