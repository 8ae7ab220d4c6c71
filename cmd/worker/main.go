package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/affinity"
	"github.com/abdul-hamid-achik/vodcoach/internal/billing"
	"github.com/abdul-hamid-achik/vodcoach/internal/config"
	"github.com/abdul-hamid-achik/vodcoach/internal/db"
	"github.com/abdul-hamid-achik/vodcoach/internal/health"
	"github.com/abdul-hamid-achik/vodcoach/internal/imageproc"
	"github.com/abdul-hamid-achik/vodcoach/internal/ledger"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/abdul-hamid-achik/vodcoach/internal/metrics"
	"github.com/abdul-hamid-achik/vodcoach/internal/moderation"
	"github.com/abdul-hamid-achik/vodcoach/internal/queue"
	"github.com/abdul-hamid-achik/vodcoach/internal/report"
	"github.com/abdul-hamid-achik/vodcoach/internal/storage"
	"github.com/abdul-hamid-achik/vodcoach/internal/supervisor"
	"github.com/abdul-hamid-achik/vodcoach/internal/tracing"
	"github.com/abdul-hamid-achik/vodcoach/internal/transcode"
	"github.com/abdul-hamid-achik/vodcoach/internal/transcribe"
	"github.com/abdul-hamid-achik/vodcoach/internal/worker"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default().With("instance", cfg.InstanceID)
	log.Info("configuration loaded", "environment", cfg.Environment, "production", cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "vodcoach-worker",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Instance:       cfg.InstanceID,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TraceEnabled,
		SampleRate:     cfg.TraceSample,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

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

	log.Info("connecting to redis")
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}

	log.Info("connecting to object storage", "backend", cfg.StorageBackend, "bucket", cfg.Bucket)
	store, err := storage.Open(ctx, cfg.StorageConfig(), awsCfg)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	instrumentedStore := metrics.NewInstrumentedStorage(store)

	metrics.SetAppInfo(version, cfg.Environment, "worker", cfg.InstanceID)
	filter := affinity.New(instrumentedStore, cfg.InstanceID)

	deps := &worker.Dependencies{
		Queries: db.New(pool),
		Storage: instrumentedStore,
		Moderation: moderation.New(awsCfg, moderation.Config{
			MinConfidence: float32(cfg.ModerationMinConfidence),
			SNSTopicARN:   cfg.ModerationSNSTopicARN,
			RoleARN:       cfg.ModerationRoleARN,
		}),
		Transcoder:     transcode.New(awsCfg, cfg.MediaConvertEndpoint),
		ImageProcessor: imageproc.New(awsCfg, cfg.ImageProcessorFunction),
		Transcriber:    transcribe.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL),
		Ledger:         ledger.NewRedisLedger(redisClient, cfg.LedgerTTLs()),
		Affinity:       filter,
		Reporter:       report.NewWriterReporter(os.Stderr, cfg.InstanceID),

		Bucket:           cfg.Bucket,
		Production:       cfg.IsProduction(),
		Instance:         cfg.InstanceID,
		MediaConvertRole: cfg.MediaConvertRoleARN,
		Billing: billing.Config{
			Secret:     cfg.StripeWebhookSecret,
			Tolerance:  cfg.StripeWebhookTolerance,
			Production: cfg.IsProduction(),
		},
	}
	table := worker.NewTable(deps)

	tree := supervisor.NewTree(log, supervisor.TreeConfig{FailureBackoff: cfg.SupervisorBackoff})
	collector := metrics.NewPipelineCollector()
	dialCfg := queue.DialConfig{Backend: cfg.QueueBackend, AWS: awsCfg, AMQPURL: cfg.AMQPURL, AMQPRetryDelay: cfg.AMQPRetryDelay}

	for _, name := range config.QueueNames {
		target, ok := cfg.QueueURL(name)
		if !ok {
			log.Info("queue not configured, skipping", "queue", name)
			continue
		}
		handler, err := table.Handler(name)
		if err != nil {
			return err
		}
		conn, err := queue.Dial(dialCfg, name, target)
		if err != nil {
			return fmt.Errorf("failed to open queue %s: %w", name, err)
		}
		defer func() { _ = conn.Close() }()

		poller := queue.NewPoller(pollerConfig(cfg, name), conn, handler, filter, deps.Reporter,
			queue.WithMetrics(collector),
		)
		tree.AddPoller(supervisor.NewPollerService(poller))
		log.Info("poller registered", "queue", name, "handler", handler.Name())
	}

	checker := health.NewChecker(cfg.InstanceID).
		WithDatabase(pool).
		WithLedger(redisClient).
		WithStorage(store).
		WithExtra(func() map[string]any {
			return map[string]any{"handle_latency_p95_ms": collector.LatencyP95()}
		})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", health.LivenessHandler())
	mux.HandleFunc("/ready", health.ReadinessHandler(checker))

	server := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	tree.AddOps(supervisor.NewHTTPServerService(server, 10*time.Second))

	log.Info("worker started", "metrics_port", cfg.MetricsPort)
	if err := tree.Serve(logger.WithLogger(ctx, log)); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor stopped: %w", err)
	}
	log.Info("worker stopped")
	return nil
}

func pollerConfig(cfg *config.Config, name string) queue.Config {
	pc := queue.DefaultConfig(name)
	pc.Production = cfg.IsProduction()
	pc.Wait = cfg.PollWait
	pc.BatchSize = cfg.PollBatchSize
	pc.SkipCooldown = cfg.SkipCooldown
	pc.ErrorCooldown = cfg.ErrorCooldown
	pc.HandlerTimeout = cfg.HandlerTimeout
	return pc
}
