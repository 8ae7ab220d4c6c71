package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/config"
	"github.com/abdul-hamid-achik/vodcoach/internal/db"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/abdul-hamid-achik/vodcoach/internal/queue"
	"github.com/abdul-hamid-achik/vodcoach/internal/worker"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	if err := run(); err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()

	target, ok := cfg.QueueURL(config.QueueScheduled)
	if !ok {
		return fmt.Errorf("QUEUE_URL_SCHEDULED is required")
	}

	log.Info("starting expiry sweep", "max_age", cfg.ExpiryMaxAge.String())
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	log.Info("connecting to database")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("database connected")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}
	conn, err := queue.Dial(queue.DialConfig{Backend: cfg.QueueBackend, AWS: awsCfg, AMQPURL: cfg.AMQPURL, AMQPRetryDelay: cfg.AMQPRetryDelay}, config.QueueScheduled, target)
	if err != nil {
		return fmt.Errorf("failed to open scheduled queue: %w", err)
	}
	defer func() { _ = conn.Close() }()

	stats, err := worker.RunExpirySweep(logger.WithLogger(ctx, log), &worker.ExpiryDependencies{
		Queries:   db.New(pool),
		Scheduled: conn,
		MaxAge:    cfg.ExpiryMaxAge,
		BatchSize: int32(cfg.ExpiryBatchSize),
	})
	if err != nil {
		return fmt.Errorf("expiry sweep failed: %w", err)
	}

	log.Info("cleanup completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"enqueued", stats.Enqueued,
		"publish_errors", stats.PublishErrors,
	)
	return nil
}
