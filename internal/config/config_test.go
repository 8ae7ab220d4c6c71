package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/vodcoach")
	t.Setenv("S3_BUCKET", "media")
	t.Setenv("QUEUE_URL_UPLOADS", "https://sqs.us-east-1.amazonaws.com/1/uploads")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.PollWait != 20*time.Second {
		t.Errorf("PollWait = %v, want 20s", cfg.PollWait)
	}
	if cfg.PollBatchSize != 10 {
		t.Errorf("PollBatchSize = %d, want 10", cfg.PollBatchSize)
	}
	if cfg.StorageBackend != "s3" || cfg.QueueBackend != "sqs" {
		t.Errorf("backends = %s/%s, want s3/sqs", cfg.StorageBackend, cfg.QueueBackend)
	}
	if url, ok := cfg.QueueURL(QueueUploads); !ok || url == "" {
		t.Error("QueueURL(uploads) missing")
	}
	if _, ok := cfg.QueueURL(QueueBilling); ok {
		t.Error("QueueURL(billing) should be absent")
	}
	if got := cfg.LedgerTTLs(); got.Pending != 10*time.Minute || got.Done != 24*time.Hour {
		t.Errorf("LedgerTTLs() = %+v, want 10m pending / 24h done", got)
	}
	if cfg.AMQPRetryDelay != 30*time.Second {
		t.Errorf("AMQPRetryDelay = %v, want 30s", cfg.AMQPRetryDelay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("S3_BUCKET", "media")

	if _, err := Load(); err == nil {
		t.Error("Load() without DATABASE_URL should fail")
	}
}

func TestIsProduction(t *testing.T) {
	tests := map[string]bool{
		"production":  true,
		"PROD":        true,
		"staging":     false,
		"development": false,
	}
	for env, want := range tests {
		cfg := &Config{Environment: env}
		if got := cfg.IsProduction(); got != want {
			t.Errorf("IsProduction(%q) = %v, want %v", env, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StorageBackend: "s3",
			QueueBackend:   "sqs",
			QueueURLs:      map[string]string{QueueUploads: "u"},
			PollBatchSize:  10,
			PollWait:       20 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown storage", func(c *Config) { c.StorageBackend = "gcs" }, true},
		{"minio without endpoint", func(c *Config) { c.StorageBackend = "minio" }, true},
		{"amqp without url", func(c *Config) { c.QueueBackend = "amqp" }, true},
		{"no queues", func(c *Config) { c.QueueURLs = map[string]string{} }, true},
		{"batch too large", func(c *Config) { c.PollBatchSize = 11 }, true},
		{"wait too long", func(c *Config) { c.PollWait = 21 * time.Second }, true},
		{"billing without secret", func(c *Config) { c.QueueURLs[QueueBilling] = "b" }, true},
		{"billing with secret", func(c *Config) {
			c.QueueURLs[QueueBilling] = "b"
			c.StripeWebhookSecret = "whsec_x"
		}, false},
		{"pending claim shorter than handler", func(c *Config) {
			c.HandlerTimeout = 5 * time.Minute
			c.LedgerPendingTTL = 5 * time.Minute
		}, true},
		{"pending claim outlives handler", func(c *Config) {
			c.HandlerTimeout = 5 * time.Minute
			c.LedgerPendingTTL = 10 * time.Minute
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadProcessor(t *testing.T) {
	t.Setenv("S3_BUCKET", "media")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("AVATAR_MAX_DIMENSION", "4096")

	cfg, err := LoadProcessor()
	if err != nil {
		t.Fatalf("LoadProcessor() error = %v", err)
	}
	if cfg.Storage.Bucket != "media" || cfg.Storage.Backend != "s3" {
		t.Errorf("storage = %s/%s, want s3/media", cfg.Storage.Backend, cfg.Storage.Bucket)
	}
	if cfg.MaxDimension != 4096 {
		t.Errorf("MaxDimension = %d, want 4096", cfg.MaxDimension)
	}
	if cfg.MaxFileSize != 20*1024*1024 {
		t.Errorf("MaxFileSize = %d, want 20MiB", cfg.MaxFileSize)
	}
}

func TestLoadProcessor_MinIORequiresEndpoint(t *testing.T) {
	t.Setenv("S3_BUCKET", "media")
	t.Setenv("STORAGE_BACKEND", "minio")
	t.Setenv("MINIO_ENDPOINT", "")

	if _, err := LoadProcessor(); err == nil {
		t.Error("LoadProcessor() with minio and no endpoint should fail")
	}
}

func TestStorageConfig(t *testing.T) {
	cfg := &Config{StorageBackend: "minio", MinIOEndpoint: "localhost:9000", Bucket: "media", AWSRegion: "eu-west-1"}

	sc := cfg.StorageConfig()
	if sc.Backend != "minio" || sc.Endpoint != "localhost:9000" || sc.Bucket != "media" || sc.Region != "eu-west-1" {
		t.Errorf("StorageConfig() = %+v", sc)
	}
}
