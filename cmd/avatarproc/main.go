package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/abdul-hamid-achik/vodcoach/internal/avatarproc"
	"github.com/abdul-hamid-achik/vodcoach/internal/config"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/abdul-hamid-achik/vodcoach/internal/processor"
	imageproc "github.com/abdul-hamid-achik/vodcoach/internal/processor/image"
	"github.com/abdul-hamid-achik/vodcoach/internal/storage"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

func main() {
	handler, err := setup(context.Background())
	if err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
	lambda.Start(handler)
}

func setup(ctx context.Context) (func(context.Context, events.S3Event) error, error) {
	cfg, err := config.LoadProcessor()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default().With("function", "avatar-processor")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Storage, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	procCfg := processor.DefaultConfig()
	procCfg.MaxFileSize = cfg.MaxFileSize
	procCfg.MaxDimension = cfg.MaxDimension
	h := avatarproc.New(store, imageproc.NewResizeProcessor(procCfg))

	log.Info("avatar processor ready", "bucket", cfg.Storage.Bucket, "backend", cfg.Storage.Backend)
	return func(ctx context.Context, event events.S3Event) error {
		return h.HandleS3Event(logger.WithLogger(ctx, log), event)
	}, nil
}
